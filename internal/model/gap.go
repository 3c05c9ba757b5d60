package model

import (
	"fmt"
	"strings"
)

// GapKind classifies an epistemic gap
type GapKind string

const (
	GapTemporal   GapKind = "TEMPORAL"   // Missing time period
	GapCausal     GapKind = "CAUSAL"     // Missing or rejected causal link
	GapEvidential GapKind = "EVIDENTIAL" // Missing evidence
	GapSpatial    GapKind = "SPATIAL"    // Missing location data
)

// ParseGapKind is case-insensitive
func ParseGapKind(s string) (GapKind, error) {
	switch k := GapKind(strings.ToUpper(strings.TrimSpace(s))); k {
	case GapTemporal, GapCausal, GapEvidential, GapSpatial:
		return k, nil
	}
	return "", fmt.Errorf("unknown gap kind: %q", s)
}

// UnmarshalText parses and validates a gap kind
func (k *GapKind) UnmarshalText(text []byte) error {
	parsed, err := ParseGapKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Gap is a region of the reconstruction that no claim can cover
type Gap struct {
	ID          string     `json:"id" yaml:"id"`
	Kind        GapKind    `json:"kind" yaml:"kind"`
	Description string     `json:"description" yaml:"description"`
	Affected    []string   `json:"affected,omitempty" yaml:"affected,omitempty"` // Entity, event or claim ids
	TimeRange   *TimeRange `json:"time_range,omitempty" yaml:"time_range,omitempty"`
}

// VoidType tags rendered gaps in output
const VoidType = "EPISTEMIC_VOID"

// VoidMessage is the fixed human-readable text of every rendered void
const VoidMessage = "Insufficient evidence for reconstruction in this region"

// Void is the rendered, explicit form of a Gap
type Void struct {
	Type        string     `json:"type"`
	GapID       string     `json:"gap_id"`
	GapKind     GapKind    `json:"gap_kind"`
	Description string     `json:"description"`
	Message     string     `json:"message"`
	Affected    []string   `json:"affected,omitempty"`
	TimeRange   *TimeRange `json:"time_range,omitempty"`
}
