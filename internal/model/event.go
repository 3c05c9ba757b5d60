package model

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

var (
	// ErrUnknownLayer is returned when a layer name is not one of the five strata
	ErrUnknownLayer = errors.New("unknown layer")
	// ErrUnknownRelationKind is returned for relation kinds outside the closed set
	ErrUnknownRelationKind = errors.New("unknown relation kind")
	// ErrInvalidWeight is returned when a relation weight falls outside [0,1]
	ErrInvalidWeight = errors.New("relation weight must be in [0,1]")
)

// Layer is one of the five ordered strata, from physical to metasystemic
type Layer int

const (
	LayerPhysical      Layer = iota // Matter, energy, geology
	LayerBiological                 // Life, ecosystems, genetic information
	LayerCultural                   // Language, art, ritual
	LayerTechnoEconomic             // Markets, infrastructure, networks
	LayerMetasystemic               // Global systems, climate, geopolitics
)

var layerNames = [...]string{
	"L0_PHYSICAL",
	"L1_BIOLOGICAL",
	"L2_CULTURAL",
	"L3_TECHNO_ECONOMIC",
	"L4_METASYSTEMIC",
}

func (l Layer) String() string {
	if l < LayerPhysical || l > LayerMetasystemic {
		return fmt.Sprintf("Layer(%d)", int(l))
	}
	return layerNames[l]
}

// ParseLayer accepts the canonical names ("L2_CULTURAL"), the bare names
// ("cultural") and the ordinal prefix ("L2").
func ParseLayer(s string) (Layer, error) {
	up := strings.ToUpper(strings.TrimSpace(s))
	for i, name := range layerNames {
		short := name[:2]
		bare := name[3:]
		if up == name || up == short || up == bare {
			return Layer(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownLayer, s)
}

// MarshalText renders the canonical layer name
func (l Layer) MarshalText() ([]byte, error) {
	if l < LayerPhysical || l > LayerMetasystemic {
		return nil, fmt.Errorf("%w: %d", ErrUnknownLayer, int(l))
	}
	return []byte(l.String()), nil
}

// UnmarshalText parses a layer name
func (l *Layer) UnmarshalText(text []byte) error {
	parsed, err := ParseLayer(string(text))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// Event is a discrete occurrence in time. Events are never mutated after they
// enter a causal graph; use graph.ReplaceEvent to swap one out.
type Event struct {
	ID           string        `json:"id" yaml:"id"`
	Kind         string        `json:"kind" yaml:"kind"`
	Layer        Layer         `json:"layer" yaml:"layer"`
	Timestamp    TemporalValue `json:"timestamp" yaml:"timestamp"`
	Participants []string      `json:"participants,omitempty" yaml:"participants,omitempty"`   // Entity ids
	EvidenceRefs []string      `json:"evidence_refs,omitempty" yaml:"evidence_refs,omitempty"` // Trace ids
}

// Clone returns a deep copy of the event
func (e Event) Clone() Event {
	e.Participants = cloneStrings(e.Participants)
	e.EvidenceRefs = cloneStrings(e.EvidenceRefs)
	return e
}

// RelationKind is the closed set of causal interaction types
type RelationKind string

const (
	RelationInfluences  RelationKind = "INFLUENCES"
	RelationTransforms  RelationKind = "TRANSFORMS"
	RelationDependsOn   RelationKind = "DEPENDS_ON"
	RelationEmergesFrom RelationKind = "EMERGES_FROM"
	RelationDestroys    RelationKind = "DESTROYS"
)

// ParseRelationKind is case-insensitive and accepts spaces or hyphens for underscores
func ParseRelationKind(s string) (RelationKind, error) {
	norm := strings.ToUpper(strings.TrimSpace(s))
	norm = strings.NewReplacer(" ", "_", "-", "_").Replace(norm)
	switch k := RelationKind(norm); k {
	case RelationInfluences, RelationTransforms, RelationDependsOn, RelationEmergesFrom, RelationDestroys:
		return k, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownRelationKind, s)
}

// UnmarshalText parses and validates a relation kind
func (k *RelationKind) UnmarshalText(text []byte) error {
	parsed, err := ParseRelationKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Relation is a directed causal edge between two events
type Relation struct {
	SourceID     string       `json:"source_id" yaml:"source_id"`
	TargetID     string       `json:"target_id" yaml:"target_id"`
	Kind         RelationKind `json:"kind" yaml:"kind"`
	Weight       float64      `json:"weight" yaml:"weight"`                                   // Strength/plausibility, not a probability of existence
	EvidenceRefs []string     `json:"evidence_refs,omitempty" yaml:"evidence_refs,omitempty"` // Traces supporting the causal claim itself
}

// Validate checks the relation kind and weight range
func (r Relation) Validate() error {
	if _, err := ParseRelationKind(string(r.Kind)); err != nil {
		return err
	}
	if math.IsNaN(r.Weight) || r.Weight < 0 || r.Weight > 1 {
		return fmt.Errorf("%w: %v", ErrInvalidWeight, r.Weight)
	}
	return nil
}

func (r Relation) String() string {
	return fmt.Sprintf("%s -%s-> %s", r.SourceID, r.Kind, r.TargetID)
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}
