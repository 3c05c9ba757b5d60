package score

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/khaaliswooden-max/qal/internal/model"
)

func newTestScorer() *Scorer {
	cfg := model.DefaultConfig()
	return NewScorer(cfg.Labeling, cfg.Belief.Epsilon)
}

func trace(id string, sub model.Substrate, conf float64) model.Trace {
	return model.Trace{ID: id, Type: sub, Confidence: conf}
}

func TestScorer_Verified(t *testing.T) {
	s := newTestScorer()
	a, err := s.Assess([]model.Trace{
		trace("t1", model.SubstrateRadiometric, 0.9),
		trace("t2", model.SubstrateRadiometric, 0.8),
		trace("t3", model.SubstrateTextual, 0.85),
	})
	require.NoError(t, err)

	assert.Equal(t, model.LabelVerified, a.Label)
	assert.Equal(t, 3, a.TraceCount)
	assert.Equal(t, 2, a.IndependentTypes)
	assert.Equal(t, []string{"radiometric", "textual"}, a.Types)
	assert.InDelta(t, 0.85, a.AvgConfidence, 1e-9)
	assert.Contains(t, a.Reasoning, "3 traces")
	assert.Contains(t, a.Reasoning, "2 independent substrates")
}

func TestScorer_AliasesAreNotIndependent(t *testing.T) {
	s := newTestScorer()
	a, err := s.Assess([]model.Trace{
		trace("t1", "carbon_14", 0.9),
		trace("t2", "C14", 0.9),
		trace("t3", "Radiocarbon", 0.9),
	})
	require.NoError(t, err)

	assert.Equal(t, 1, a.IndependentTypes)
	assert.Equal(t, model.LabelPlausible, a.Label)
	assert.Contains(t, a.Reasoning, ">= 2 substrates")
}

func TestScorer_Plausible(t *testing.T) {
	s := newTestScorer()
	a, err := s.Assess([]model.Trace{trace("t1", model.SubstrateArtifact, 0.6)})
	require.NoError(t, err)

	assert.Equal(t, model.LabelPlausible, a.Label)
	assert.Contains(t, a.Reasoning, "1 trace from 1 independent substrate")
	assert.Contains(t, a.Reasoning, ">= 2 traces")
	assert.Contains(t, a.Reasoning, "avg confidence >= 0.80")
}

func TestScorer_HighConfidenceSingleTraceIsNotVerified(t *testing.T) {
	s := newTestScorer()
	a, err := s.Assess([]model.Trace{trace("t1", model.SubstrateGenetic, 1.0)})
	require.NoError(t, err)
	assert.Equal(t, model.LabelPlausible, a.Label)
}

func TestScorer_Speculative(t *testing.T) {
	s := newTestScorer()
	a, err := s.Assess([]model.Trace{
		trace("t1", model.SubstrateLinguistic, 0.3),
		trace("t2", model.SubstrateEnvironmental, 0.4),
	})
	require.NoError(t, err)

	assert.Equal(t, model.LabelSpeculative, a.Label)
	assert.Contains(t, a.Reasoning, "Weak evidence")
}

func TestScorer_Boundaries(t *testing.T) {
	s := newTestScorer()

	a, err := s.Assess([]model.Trace{
		trace("t1", model.SubstrateTextual, 0.8),
		trace("t2", model.SubstrateArtifact, 0.8),
	})
	require.NoError(t, err)
	assert.Equal(t, model.LabelVerified, a.Label, "avg exactly at threshold is VERIFIED")

	a, err = s.Assess([]model.Trace{trace("t1", model.SubstrateTextual, 0.5)})
	require.NoError(t, err)
	assert.Equal(t, model.LabelPlausible, a.Label, "avg exactly 0.5 is PLAUSIBLE")
}

func TestScorer_NoEvidence(t *testing.T) {
	s := newTestScorer()
	_, err := s.Assess(nil)
	assert.ErrorIs(t, err, ErrNoEvidence)
}

func TestScorer_RejectsOutOfRangeConfidence(t *testing.T) {
	s := newTestScorer()
	for _, conf := range []float64{7, -3, math.NaN()} {
		_, err := s.Assess([]model.Trace{
			trace("t1", model.SubstrateTextual, 0.9),
			trace("t2", model.SubstrateArtifact, conf),
		})
		assert.ErrorIs(t, err, model.ErrInvalidConfidence, "confidence %v", conf)
	}
}

func TestScorer_Strength(t *testing.T) {
	s := newTestScorer()

	strong, err := s.Assess([]model.Trace{
		trace("t1", model.SubstrateTextual, 0.9),
		trace("t2", model.SubstrateArtifact, 0.9),
	})
	require.NoError(t, err)
	// two 0.9 observations: 0.81 / (0.81 + 0.01)
	assert.InDelta(t, 0.81/0.82, strong.Strength.SupportPosterior, 1e-9)
	assert.Less(t, strong.Strength.SupportEntropy, 0.2)

	even, err := s.Assess([]model.Trace{trace("t1", model.SubstrateTextual, 0.5)})
	require.NoError(t, err)
	assert.InDelta(t, 0.5, even.Strength.SupportPosterior, 1e-9)
	assert.InDelta(t, 1.0, even.Strength.SupportEntropy, 1e-9)

	certain, err := s.Assess([]model.Trace{trace("t1", model.SubstrateTextual, 1.0)})
	require.NoError(t, err)
	assert.InDelta(t, 0.99, certain.Strength.SupportPosterior, 1e-9)
}

func TestScorer_CustomThresholds(t *testing.T) {
	cfg := model.DefaultConfig().Labeling
	cfg.VerifiedMinTraces = 3
	s := NewScorer(cfg, 0.001)

	a, err := s.Assess([]model.Trace{
		trace("t1", model.SubstrateTextual, 0.9),
		trace("t2", model.SubstrateArtifact, 0.9),
	})
	require.NoError(t, err)
	assert.Equal(t, model.LabelPlausible, a.Label)
	assert.Contains(t, a.Reasoning, ">= 3 traces")
}
