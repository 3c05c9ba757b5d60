package validate

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/khaaliswooden-max/qal/internal/model"
	"github.com/khaaliswooden-max/qal/internal/score"
)

func newTestValidator(logger *zap.Logger) *Validator {
	cfg := model.DefaultConfig()
	return NewValidator(score.NewScorer(cfg.Labeling, cfg.Belief.Epsilon), logger)
}

func testTraces() model.TraceIndex {
	return model.NewTraceIndex([]model.Trace{
		{ID: "c14-a", Type: model.SubstrateRadiometric, Confidence: 0.9},
		{ID: "c14-b", Type: model.SubstrateRadiometric, Confidence: 0.8},
		{ID: "tablet", Type: model.SubstrateTextual, Confidence: 0.85},
		{ID: "sherd", Type: model.SubstrateArtifact, Confidence: 0.3},
	})
}

func TestLabelClaim_Verified(t *testing.T) {
	v := newTestValidator(nil)
	res, err := v.LabelClaim(model.Claim{
		ID:           "c1",
		EvidenceRefs: []string{"c14-a", "c14-b", "tablet"},
	}, testTraces())
	require.NoError(t, err)

	assert.False(t, res.Rejected)
	assert.Equal(t, model.LabelVerified, res.AssignedLabel)
	assert.Equal(t, 3, res.EvidenceCount)
	assert.Equal(t, []string{"radiometric", "textual"}, res.EvidenceTypes)
	assert.Contains(t, res.Reasoning, "3 traces from 2 independent substrates")
	require.NotNil(t, res.Strength)
	assert.Greater(t, res.Strength.SupportPosterior, 0.99)
	assert.Empty(t, res.Violations)
	assert.False(t, res.LabelChanged)
}

func TestLabelClaim_ZeroEvidenceAlwaysRejected(t *testing.T) {
	v := newTestValidator(nil)

	for _, claim := range []model.Claim{
		{ID: "none"},
		{ID: "speculative", Label: model.LabelSpeculative},
		{ID: "gap", Label: model.LabelSpeculative, InferredFromGap: true},
		{ID: "ghost", EvidenceRefs: []string{"missing-1", "missing-2"}, Label: model.LabelVerified},
	} {
		res, err := v.LabelClaim(claim, testTraces())

		require.ErrorIs(t, err, ErrFabrication, claim.ID)
		var ferr *FabricationError
		require.True(t, errors.As(err, &ferr))
		assert.Equal(t, claim.ID, ferr.ClaimID)

		assert.True(t, res.Rejected, claim.ID)
		assert.Equal(t, model.LabelNone, res.AssignedLabel, claim.ID)
		assert.Nil(t, res.Strength, claim.ID)
		assert.Zero(t, res.EvidenceCount, claim.ID)
	}
}

func TestLabelClaim_GapInferenceWording(t *testing.T) {
	v := newTestValidator(nil)
	_, err := v.LabelClaim(model.Claim{ID: "g", InferredFromGap: true}, testTraces())
	assert.Contains(t, err.Error(), "inferred from a gap")

	gap := RejectionGap(model.Claim{ID: "g", SubjectID: "settlement", InferredFromGap: true})
	assert.Equal(t, model.GapEvidential, gap.Kind)
	assert.Equal(t, "gap-evidential-g", gap.ID)
	assert.Equal(t, []string{"g", "settlement"}, gap.Affected)
	assert.Contains(t, gap.Description, "inferred from a gap")
}

func TestLabelClaim_DanglingIsRecordedNotFatal(t *testing.T) {
	v := newTestValidator(nil)
	res, err := v.LabelClaim(model.Claim{
		ID:           "c2",
		EvidenceRefs: []string{"tablet", "lost-scroll"},
	}, testTraces())
	require.NoError(t, err)

	assert.Equal(t, model.LabelPlausible, res.AssignedLabel)
	assert.Equal(t, 1, res.EvidenceCount)
	require.Len(t, res.Violations, 1)
	assert.Equal(t, model.ViolationDanglingEvidence, res.Violations[0].Kind)
	assert.Contains(t, res.Violations[0].Detail, "lost-scroll")
}

func TestLabelClaim_DuplicateRefsCountOnce(t *testing.T) {
	v := newTestValidator(nil)
	res, err := v.LabelClaim(model.Claim{
		ID:           "c3",
		EvidenceRefs: []string{"tablet", "tablet", "tablet"},
	}, testTraces())
	require.NoError(t, err)
	assert.Equal(t, 1, res.EvidenceCount)
	assert.Equal(t, model.LabelPlausible, res.AssignedLabel)
}

func TestLabelClaim_CalibrationViolation(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	v := newTestValidator(zap.New(core))

	res, err := v.LabelClaim(model.Claim{
		ID:           "c4",
		EvidenceRefs: []string{"tablet"},
		Label:        model.LabelVerified,
	}, testTraces())
	require.NoError(t, err)

	assert.Equal(t, model.LabelVerified, res.OriginalLabel)
	assert.Equal(t, model.LabelPlausible, res.AssignedLabel)
	assert.True(t, res.LabelChanged)
	require.Len(t, res.Violations, 1)
	assert.Equal(t, model.ViolationConfidenceCalibration, res.Violations[0].Kind)

	entries := logs.FilterMessage("label downgraded").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "c4", entries[0].ContextMap()["claim_id"])
}

func TestLabelClaim_UnderLabeledIsUpgradedWithoutViolation(t *testing.T) {
	v := newTestValidator(nil)
	res, err := v.LabelClaim(model.Claim{
		ID:           "c5",
		EvidenceRefs: []string{"c14-a", "tablet"},
		Label:        model.LabelSpeculative,
	}, testTraces())
	require.NoError(t, err)

	assert.Equal(t, model.LabelVerified, res.AssignedLabel)
	assert.True(t, res.LabelChanged)
	assert.Empty(t, res.Violations)
}

func TestLabelClaim_InvalidConfidenceIsNotSupport(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	v := newTestValidator(zap.New(core))
	lookup := model.NewTraceIndex([]model.Trace{
		{ID: "c14-a", Type: model.SubstrateRadiometric, Confidence: 0.9},
		{ID: "inflated", Type: model.SubstrateTextual, Confidence: 7},
		{ID: "negative", Type: model.SubstrateArtifact, Confidence: -1},
	})

	res, err := v.LabelClaim(model.Claim{
		ID:           "c7",
		EvidenceRefs: []string{"c14-a", "inflated"},
		Label:        model.LabelVerified,
	}, lookup)
	require.NoError(t, err)

	assert.Equal(t, model.LabelPlausible, res.AssignedLabel, "out-of-range trace must not help reach VERIFIED")
	assert.Equal(t, 1, res.EvidenceCount)
	assert.Equal(t, []string{"radiometric"}, res.EvidenceTypes)
	require.Len(t, res.Violations, 2)
	assert.Equal(t, model.ViolationInvalidConfidence, res.Violations[0].Kind)
	assert.Contains(t, res.Violations[0].Detail, "inflated")
	assert.Equal(t, model.ViolationConfidenceCalibration, res.Violations[1].Kind)
	assert.Len(t, logs.FilterMessage("invalid trace confidence").All(), 1)

	res, err = v.LabelClaim(model.Claim{
		ID:           "c8",
		EvidenceRefs: []string{"inflated", "negative"},
	}, lookup)
	require.ErrorIs(t, err, ErrFabrication)
	var ferr *FabricationError
	require.True(t, errors.As(err, &ferr))
	assert.Equal(t, []string{"inflated", "negative"}, ferr.Invalid)
	assert.Contains(t, err.Error(), "invalid confidence")
	assert.True(t, res.Rejected)
}

func TestLabelClaim_NilLookup(t *testing.T) {
	v := newTestValidator(nil)
	res, err := v.LabelClaim(model.Claim{ID: "c6", EvidenceRefs: []string{"x"}}, nil)
	assert.ErrorIs(t, err, ErrFabrication)
	assert.True(t, res.Rejected)
}

func TestRenderVoid(t *testing.T) {
	v := newTestValidator(nil)
	tr := &model.TimeRange{
		From: model.TemporalValue{Magnitude: 3200, Unit: model.UnitBP},
		To:   model.TemporalValue{Magnitude: 2900, Unit: model.UnitBP},
	}
	void := v.RenderVoid(model.Gap{
		ID:          "dark-age",
		Kind:        model.GapTemporal,
		Description: "No written sources",
		Affected:    []string{"collapse"},
		TimeRange:   tr,
	})

	assert.Equal(t, model.VoidType, void.Type)
	assert.Equal(t, "dark-age", void.GapID)
	assert.Equal(t, model.GapTemporal, void.GapKind)
	assert.Equal(t, model.VoidMessage, void.Message)
	assert.Equal(t, tr, void.TimeRange)

	anon := v.RenderVoid(model.Gap{Kind: model.GapSpatial})
	assert.True(t, strings.HasPrefix(anon.GapID, "gap-"))
	assert.Len(t, anon.GapID, len("gap-")+36)
}

func TestAudit(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	v := newTestValidator(zap.New(core))

	claims := []model.Claim{
		{ID: "verified", EvidenceRefs: []string{"c14-a", "tablet"}, Label: model.LabelVerified},
		{ID: "over", EvidenceRefs: []string{"tablet"}, Label: model.LabelVerified},
		{ID: "weak", EvidenceRefs: []string{"sherd"}},
		{ID: "ghost", EvidenceRefs: []string{"nope"}, Label: model.LabelPlausible},
		{ID: "blank", InferredFromGap: true},
	}
	gaps := []model.Gap{{ID: "g1", Kind: model.GapSpatial, Description: "No site survey"}}

	report, results, err := v.Audit(claims, testTraces(), gaps)
	require.NoError(t, err)
	require.Len(t, results, 5)

	assert.Equal(t, 5, report.TotalClaims)
	assert.Equal(t, 2, report.ValidClaims)
	assert.Equal(t, 1, report.FlaggedClaims)
	assert.Equal(t, 2, report.RejectedClaims)
	assert.True(t, report.FabricationDetected)

	assert.Equal(t, 1, report.LabelSummary[model.LabelVerified])
	assert.Equal(t, 1, report.LabelSummary[model.LabelPlausible])
	assert.Equal(t, 1, report.LabelSummary[model.LabelSpeculative])

	// caller labels: verified matched, over and ghost did not
	assert.InDelta(t, 1.0/3.0, report.TransparencyScore, 1e-9)

	require.Len(t, report.Gaps, 3)
	assert.Equal(t, "g1", report.Gaps[0].GapID)
	assert.Equal(t, "gap-evidential-ghost", report.Gaps[1].GapID)
	assert.Equal(t, "gap-evidential-blank", report.Gaps[2].GapID)
	for _, g := range report.Gaps {
		assert.Equal(t, model.VoidMessage, g.Message)
	}

	require.Len(t, report.Details, 5)
	assert.True(t, report.Details[0].Valid)
	assert.False(t, report.Details[1].Valid)
	assert.True(t, report.Details[3].Rejected)

	assert.Equal(t, 2, logs.FilterMessage("claim rejected").Len())
}

func TestAudit_NoCallerLabels(t *testing.T) {
	v := newTestValidator(nil)
	report, _, err := v.Audit([]model.Claim{{ID: "a", EvidenceRefs: []string{"tablet"}}}, testTraces(), nil)
	require.NoError(t, err)
	assert.Equal(t, 1.0, report.TransparencyScore)
	assert.False(t, report.FabricationDetected)
	assert.Empty(t, report.Gaps)
	assert.NotNil(t, report.Gaps)
}
