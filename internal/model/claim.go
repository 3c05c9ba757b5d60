package model

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownLabel is returned when an epistemic label is not one of the three tiers
var ErrUnknownLabel = errors.New("unknown epistemic label")

// Label is the epistemic confidence tier of a claim
type Label string

const (
	LabelNone        Label = ""            // No label (rejected, or none supplied by the caller)
	LabelSpeculative Label = "SPECULATIVE" // Weak, singular or low-confidence evidence
	LabelPlausible   Label = "PLAUSIBLE"   // At least one trace with reasonable confidence
	LabelVerified    Label = "VERIFIED"    // Multiple independent substrates, high confidence
)

// Rank orders labels by strength; LabelNone ranks lowest
func (l Label) Rank() int {
	switch l {
	case LabelSpeculative:
		return 1
	case LabelPlausible:
		return 2
	case LabelVerified:
		return 3
	default:
		return 0
	}
}

// ParseLabel is case-insensitive; an empty string yields LabelNone
func ParseLabel(s string) (Label, error) {
	switch l := Label(strings.ToUpper(strings.TrimSpace(s))); l {
	case LabelNone, LabelSpeculative, LabelPlausible, LabelVerified:
		return l, nil
	}
	return LabelNone, fmt.Errorf("%w: %q", ErrUnknownLabel, s)
}

// UnmarshalText parses and validates a label
func (l *Label) UnmarshalText(text []byte) error {
	parsed, err := ParseLabel(string(text))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// Claim is an assertion about the past that needs trace support. Label is
// what the caller asserted, if anything; the labeler decides the real tier.
type Claim struct {
	ID              string   `json:"id" yaml:"id"`
	Statement       string   `json:"statement,omitempty" yaml:"statement,omitempty"`
	SubjectID       string   `json:"subject_id,omitempty" yaml:"subject_id,omitempty"`
	ObjectID        string   `json:"object_id,omitempty" yaml:"object_id,omitempty"`
	EvidenceRefs    []string `json:"evidence_refs,omitempty" yaml:"evidence_refs,omitempty"`
	Label           Label    `json:"label,omitempty" yaml:"label,omitempty"`
	InferredFromGap bool     `json:"inferred_from_gap,omitempty" yaml:"inferred_from_gap,omitempty"`
}

// EvidenceStrength carries the numeric side of a labeling decision
type EvidenceStrength struct {
	AvgConfidence    float64 `json:"avg_confidence"`
	SupportPosterior float64 `json:"support_posterior"` // P(supported | traces)
	SupportEntropy   float64 `json:"support_entropy"`   // bits, over {supported, unsupported}
}

// LabelingResult is the outcome of labeling a single claim. A rejected claim
// has no assigned label and no strength.
type LabelingResult struct {
	ClaimID       string            `json:"claim_id"`
	Rejected      bool              `json:"rejected"`
	OriginalLabel Label             `json:"original_label,omitempty"`
	AssignedLabel Label             `json:"assigned_label,omitempty"`
	LabelChanged  bool              `json:"label_changed"`
	Reasoning     string            `json:"reasoning"`
	EvidenceCount int               `json:"evidence_count"`
	EvidenceTypes []string          `json:"evidence_types,omitempty"`
	Strength      *EvidenceStrength `json:"strength,omitempty"`
	Violations    []Violation       `json:"violations,omitempty"`
}

// ViolationKind classifies epistemic problems found while labeling
type ViolationKind string

const (
	ViolationDanglingEvidence      ViolationKind = "dangling_evidence"      // Referenced trace does not resolve
	ViolationFabrication           ViolationKind = "fabrication"            // No resolvable trace at all
	ViolationConfidenceCalibration ViolationKind = "confidence_calibration" // Caller label exceeds evidence
	ViolationInvalidConfidence     ViolationKind = "invalid_confidence"     // Trace confidence outside [0,1], not counted
)

// Violation is one recorded epistemic problem on a claim
type Violation struct {
	ClaimID string        `json:"claim_id"`
	Kind    ViolationKind `json:"kind"`
	Detail  string        `json:"detail"`
}

func (v Violation) String() string {
	return fmt.Sprintf("%s: %s", v.Kind, v.Detail)
}
