package validate

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/khaaliswooden-max/qal/internal/model"
	"github.com/khaaliswooden-max/qal/internal/score"
)

var (
	// ErrFabrication marks a claim with no resolvable evidence
	ErrFabrication = errors.New("fabrication: claim has no supporting evidence")
	// ErrDanglingEvidence marks a referenced trace id that does not resolve
	ErrDanglingEvidence = errors.New("dangling evidence reference")
	// ErrConfidenceCalibration marks a caller label stronger than its evidence
	ErrConfidenceCalibration = errors.New("confidence calibration violation")
)

// FabricationError is returned for a claim that cites no resolvable trace
type FabricationError struct {
	ClaimID         string
	InferredFromGap bool
	Dangling        []string // Referenced ids that did not resolve
	Invalid         []string // Resolved traces discarded for a malformed confidence
}

func (e *FabricationError) Error() string {
	switch {
	case len(e.Invalid) > 0:
		return fmt.Sprintf("fabrication: claim %s cites no usable trace (invalid confidence: %s)", e.ClaimID, strings.Join(e.Invalid, ", "))
	case len(e.Dangling) > 0:
		return fmt.Sprintf("fabrication: claim %s cites only unresolvable traces (%s)", e.ClaimID, strings.Join(e.Dangling, ", "))
	case e.InferredFromGap:
		return fmt.Sprintf("fabrication: claim %s was inferred from a gap and cites no trace", e.ClaimID)
	default:
		return fmt.Sprintf("fabrication: claim %s cites no trace", e.ClaimID)
	}
}

func (e *FabricationError) Unwrap() error { return ErrFabrication }

// Validator is the single gate that assigns epistemic labels. It resolves
// evidence, rejects unevidenced claims and re-checks caller labels.
type Validator struct {
	scorer *score.Scorer
	logger *zap.Logger
}

// NewValidator creates a validator. A nil logger disables logging.
func NewValidator(scorer *score.Scorer, logger *zap.Logger) *Validator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Validator{scorer: scorer, logger: logger}
}

// LabelClaim resolves the claim's evidence and assigns its label. A claim
// without any resolvable trace is returned as rejected together with a
// *FabricationError; every other problem is recorded as a violation on the
// result.
func (v *Validator) LabelClaim(claim model.Claim, lookup model.TraceLookup) (model.LabelingResult, error) {
	result := model.LabelingResult{
		ClaimID:       claim.ID,
		OriginalLabel: claim.Label,
	}

	supporting, dangling, invalid := resolve(claim.EvidenceRefs, lookup)
	for _, id := range dangling {
		result.Violations = append(result.Violations, model.Violation{
			ClaimID: claim.ID,
			Kind:    model.ViolationDanglingEvidence,
			Detail:  fmt.Sprintf("%s: trace %q not found", ErrDanglingEvidence, id),
		})
	}
	if len(dangling) > 0 {
		v.logger.Debug("dangling evidence",
			zap.String("claim_id", claim.ID),
			zap.Strings("trace_ids", dangling))
	}

	var invalidIDs []string
	for _, bad := range invalid {
		invalidIDs = append(invalidIDs, bad.ID)
		result.Violations = append(result.Violations, model.Violation{
			ClaimID: claim.ID,
			Kind:    model.ViolationInvalidConfidence,
			Detail:  bad.Validate().Error(),
		})
	}
	if len(invalid) > 0 {
		v.logger.Warn("invalid trace confidence",
			zap.String("claim_id", claim.ID),
			zap.Strings("trace_ids", invalidIDs))
	}

	if len(supporting) == 0 {
		ferr := &FabricationError{ClaimID: claim.ID, InferredFromGap: claim.InferredFromGap, Dangling: dangling, Invalid: invalidIDs}
		result.Rejected = true
		result.Reasoning = ferr.Error()
		result.Violations = append(result.Violations, model.Violation{
			ClaimID: claim.ID,
			Kind:    model.ViolationFabrication,
			Detail:  ferr.Error(),
		})
		v.logger.Warn("claim rejected",
			zap.String("claim_id", claim.ID),
			zap.Bool("inferred_from_gap", claim.InferredFromGap),
			zap.Error(ferr))
		return result, ferr
	}

	a, err := v.scorer.Assess(supporting)
	if err != nil {
		return model.LabelingResult{}, fmt.Errorf("label claim %s: %w", claim.ID, err)
	}
	strength := a.Strength

	result.AssignedLabel = a.Label
	result.Reasoning = a.Reasoning
	result.EvidenceCount = a.TraceCount
	result.EvidenceTypes = a.Types
	result.Strength = &strength
	result.LabelChanged = claim.Label != model.LabelNone && claim.Label != a.Label

	if claim.Label.Rank() > a.Label.Rank() {
		detail := fmt.Sprintf("%s: claimed %s but evidence supports %s (%d traces, %d substrates)",
			ErrConfidenceCalibration, claim.Label, a.Label, a.TraceCount, a.IndependentTypes)
		result.Violations = append(result.Violations, model.Violation{
			ClaimID: claim.ID,
			Kind:    model.ViolationConfidenceCalibration,
			Detail:  detail,
		})
		v.logger.Info("label downgraded",
			zap.String("claim_id", claim.ID),
			zap.String("claimed", string(claim.Label)),
			zap.String("assigned", string(a.Label)))
	}
	return result, nil
}

// resolve splits evidence refs into usable traces, dangling ids and traces
// with a malformed confidence. A trace cited twice is counted once.
func resolve(refs []string, lookup model.TraceLookup) (supporting []model.Trace, dangling []string, invalid []model.Trace) {
	seen := make(map[string]bool, len(refs))
	for _, id := range refs {
		if seen[id] {
			continue
		}
		seen[id] = true
		if lookup == nil {
			dangling = append(dangling, id)
			continue
		}
		t, ok := lookup.Lookup(id)
		if !ok {
			dangling = append(dangling, id)
			continue
		}
		if t.Validate() != nil {
			invalid = append(invalid, t)
			continue
		}
		supporting = append(supporting, t)
	}
	return supporting, dangling, invalid
}

// RenderVoid turns a gap into its explicit output record. Gaps without an id
// are given one.
func (v *Validator) RenderVoid(gap model.Gap) model.Void {
	id := gap.ID
	if id == "" {
		id = "gap-" + uuid.NewString()
	}
	return model.Void{
		Type:        model.VoidType,
		GapID:       id,
		GapKind:     gap.Kind,
		Description: gap.Description,
		Message:     model.VoidMessage,
		Affected:    append([]string(nil), gap.Affected...),
		TimeRange:   gap.TimeRange,
	}
}

// RejectionGap describes the evidential hole left by a rejected claim
func RejectionGap(claim model.Claim) model.Gap {
	desc := fmt.Sprintf("Claim %s has no resolvable supporting trace", claim.ID)
	if claim.InferredFromGap {
		desc = fmt.Sprintf("Claim %s was inferred from a gap in the record and has no supporting trace", claim.ID)
	}
	affected := []string{claim.ID}
	for _, id := range []string{claim.SubjectID, claim.ObjectID} {
		if id != "" {
			affected = append(affected, id)
		}
	}
	return model.Gap{
		ID:          "gap-evidential-" + claim.ID,
		Kind:        model.GapEvidential,
		Description: desc,
		Affected:    affected,
	}
}
