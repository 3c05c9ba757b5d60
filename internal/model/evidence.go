package model

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// ErrInvalidConfidence marks a trace whose confidence is outside [0,1]
var ErrInvalidConfidence = errors.New("trace confidence outside [0,1]")

// Trace is an atomic piece of evidence. The core only reads its identity,
// substrate and confidence; Data is carried through untouched.
type Trace struct {
	ID         string         `json:"id" yaml:"id"`
	Type       Substrate      `json:"type" yaml:"type"`
	Confidence float64        `json:"confidence" yaml:"confidence"` // 0..1
	Data       map[string]any `json:"data,omitempty" yaml:"data,omitempty"`
}

// Validate checks the trace confidence. Out-of-range values are never clamped.
func (t Trace) Validate() error {
	if math.IsNaN(t.Confidence) || t.Confidence < 0 || t.Confidence > 1 {
		return fmt.Errorf("%w: trace %q has %v", ErrInvalidConfidence, t.ID, t.Confidence)
	}
	return nil
}

// Substrate classifies the physical or documentary medium a trace came from.
// Two traces count as independent only if their substrates differ.
type Substrate string

const (
	SubstrateUnknown       Substrate = "unknown"
	SubstrateRadiometric   Substrate = "radiometric"   // C14, K-Ar, U-Pb dating
	SubstrateStratigraphic Substrate = "stratigraphic" // Layer sequence, sediment cores
	SubstrateTextual       Substrate = "textual"       // Written records, inscriptions
	SubstrateArtifact      Substrate = "artifact"      // Material culture
	SubstrateGenetic       Substrate = "genetic"       // aDNA, phylogenetics
	SubstrateLinguistic    Substrate = "linguistic"    // Language reconstruction
	SubstrateIsotopic      Substrate = "isotopic"      // Stable isotope ratios (diet, climate)
	SubstrateEnvironmental Substrate = "environmental" // Pollen, ice cores, tree rings

	// extensionPrefix marks substrates outside the closed set
	extensionPrefix = "ext:"
)

var knownSubstrates = map[Substrate]bool{
	SubstrateUnknown:       true,
	SubstrateRadiometric:   true,
	SubstrateStratigraphic: true,
	SubstrateTextual:       true,
	SubstrateArtifact:      true,
	SubstrateGenetic:       true,
	SubstrateLinguistic:    true,
	SubstrateIsotopic:      true,
	SubstrateEnvironmental: true,
}

// substrateAliases folds common spellings onto the closed set
var substrateAliases = map[string]Substrate{
	"carbon_14":        SubstrateRadiometric,
	"c14":              SubstrateRadiometric,
	"c_14":             SubstrateRadiometric,
	"radiocarbon":      SubstrateRadiometric,
	"isotope_dating":   SubstrateRadiometric,
	"strata":           SubstrateStratigraphic,
	"stratigraphy":     SubstrateStratigraphic,
	"textual_record":   SubstrateTextual,
	"text":             SubstrateTextual,
	"document":         SubstrateTextual,
	"inscription":      SubstrateTextual,
	"archaeological":   SubstrateArtifact,
	"material":         SubstrateArtifact,
	"dna":              SubstrateGenetic,
	"adna":             SubstrateGenetic,
	"phylogenetic":     SubstrateGenetic,
	"language":         SubstrateLinguistic,
	"stable_isotope":   SubstrateIsotopic,
	"pollen":           SubstrateEnvironmental,
	"ice_core":         SubstrateEnvironmental,
	"dendrochronology": SubstrateEnvironmental,
	"":                 SubstrateUnknown,
}

// ParseSubstrate normalises a free-form trace type. Case, surrounding space,
// hyphens and inner spaces do not matter. Types outside the closed set are kept
// in the "ext:" extension slot so they still count as a distinct substrate.
func ParseSubstrate(s string) Substrate {
	norm := strings.ToLower(strings.TrimSpace(s))
	norm = strings.TrimPrefix(norm, extensionPrefix)
	norm = strings.NewReplacer("-", "_", " ", "_").Replace(norm)
	if alias, ok := substrateAliases[norm]; ok {
		return alias
	}
	if knownSubstrates[Substrate(norm)] {
		return Substrate(norm)
	}
	return Substrate(extensionPrefix + norm)
}

// IsExtension reports whether the substrate lives outside the closed set
func (s Substrate) IsExtension() bool {
	return strings.HasPrefix(string(s), extensionPrefix)
}

// UnmarshalText normalises the substrate on decode
func (s *Substrate) UnmarshalText(text []byte) error {
	*s = ParseSubstrate(string(text))
	return nil
}

// TraceLookup resolves trace ids. A missing id is reported with ok == false.
type TraceLookup interface {
	Lookup(id string) (Trace, bool)
}

// TraceIndex is an in-memory TraceLookup keyed by trace id
type TraceIndex map[string]Trace

// NewTraceIndex indexes traces by id; later duplicates replace earlier ones
func NewTraceIndex(traces []Trace) TraceIndex {
	idx := make(TraceIndex, len(traces))
	for _, t := range traces {
		idx[t.ID] = t
	}
	return idx
}

// Lookup implements TraceLookup
func (idx TraceIndex) Lookup(id string) (Trace, bool) {
	t, ok := idx[id]
	return t, ok
}

// LookupFunc adapts a function to TraceLookup
type LookupFunc func(id string) (Trace, bool)

// Lookup implements TraceLookup
func (f LookupFunc) Lookup(id string) (Trace, bool) {
	return f(id)
}
