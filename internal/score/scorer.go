package score

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/khaaliswooden-max/qal/internal/belief"
	"github.com/khaaliswooden-max/qal/internal/model"
)

// ErrNoEvidence is returned when asked to score an empty trace set.
// Unevidenced claims are rejected upstream and never reach the scorer.
var ErrNoEvidence = errors.New("no supporting traces")

const (
	hypothesisSupported   = "supported"
	hypothesisUnsupported = "unsupported"

	// likelihood clamp so a single trace at confidence 0 or 1 cannot pin the posterior
	minLikelihood = 0.01
	maxLikelihood = 0.99
)

// Assessment is the evidence summary behind a computed label
type Assessment struct {
	Label            model.Label
	Reasoning        string
	TraceCount       int
	IndependentTypes int
	Types            []string // Distinct substrates, sorted
	AvgConfidence    float64
	Strength         model.EvidenceStrength
}

// Scorer computes epistemic labels from resolved traces
type Scorer struct {
	cfg     model.LabelingConfig
	updater *belief.Updater
}

// NewScorer creates a scorer with the given tier thresholds and belief epsilon
func NewScorer(cfg model.LabelingConfig, epsilon float64) *Scorer {
	return &Scorer{
		cfg:     cfg,
		updater: belief.NewUpdater(epsilon),
	}
}

// Config returns the thresholds in use
func (s *Scorer) Config() model.LabelingConfig { return s.cfg }

// Assess computes the label for a set of resolved traces. Rules are checked
// strictly in order: VERIFIED, PLAUSIBLE, then SPECULATIVE. A trace with a
// confidence outside [0,1] fails the whole assessment.
func (s *Scorer) Assess(traces []model.Trace) (Assessment, error) {
	if len(traces) == 0 {
		return Assessment{}, ErrNoEvidence
	}

	var sum float64
	for _, t := range traces {
		if err := t.Validate(); err != nil {
			return Assessment{}, err
		}
		sum += t.Confidence
	}
	types := distinctSubstrates(traces)
	a := Assessment{
		TraceCount:       len(traces),
		IndependentTypes: len(types),
		Types:            types,
		AvgConfidence:    sum / float64(len(traces)),
	}

	strength, err := s.strength(traces)
	if err != nil {
		return Assessment{}, fmt.Errorf("evidence strength: %w", err)
	}
	strength.AvgConfidence = a.AvgConfidence
	a.Strength = strength

	switch {
	case s.isVerified(a):
		a.Label = model.LabelVerified
	case s.isPlausible(a):
		a.Label = model.LabelPlausible
	default:
		a.Label = model.LabelSpeculative
	}
	a.Reasoning = s.reasoning(a)
	return a, nil
}

func (s *Scorer) isVerified(a Assessment) bool {
	return a.TraceCount >= s.cfg.VerifiedMinTraces &&
		a.IndependentTypes >= s.cfg.VerifiedMinTypes &&
		a.AvgConfidence >= s.cfg.VerifiedMinConfidence
}

func (s *Scorer) isPlausible(a Assessment) bool {
	return a.TraceCount >= s.cfg.PlausibleMinTraces &&
		a.AvgConfidence >= s.cfg.PlausibleMinConfidence
}

// strength folds each trace into a posterior over {supported, unsupported},
// using the trace confidence as the likelihood of support
func (s *Scorer) strength(traces []model.Trace) (model.EvidenceStrength, error) {
	prior, err := belief.Uniform(hypothesisSupported, hypothesisUnsupported)
	if err != nil {
		return model.EvidenceStrength{}, err
	}
	obs := make([]map[string]float64, len(traces))
	for i, t := range traces {
		c := math.Min(math.Max(t.Confidence, minLikelihood), maxLikelihood)
		obs[i] = map[string]float64{
			hypothesisSupported:   c,
			hypothesisUnsupported: 1 - c,
		}
	}
	post, err := s.updater.UpdateSequence(prior, obs)
	if err != nil {
		return model.EvidenceStrength{}, err
	}
	return model.EvidenceStrength{
		SupportPosterior: post.Prob(hypothesisSupported),
		SupportEntropy:   belief.Entropy(post),
	}, nil
}

func (s *Scorer) reasoning(a Assessment) string {
	evidence := fmt.Sprintf("%d %s from %d independent %s (%s), avg confidence %.2f",
		a.TraceCount, plural(a.TraceCount, "trace", "traces"),
		a.IndependentTypes, plural(a.IndependentTypes, "substrate", "substrates"),
		strings.Join(a.Types, ", "), a.AvgConfidence)

	switch a.Label {
	case model.LabelVerified:
		return "Supported by " + evidence
	case model.LabelPlausible:
		return fmt.Sprintf("Supported by %s; VERIFIED needs %s", evidence, s.verifiedShortfall(a))
	default:
		return fmt.Sprintf("Weak evidence: %s; PLAUSIBLE needs avg confidence >= %.2f", evidence, s.cfg.PlausibleMinConfidence)
	}
}

func (s *Scorer) verifiedShortfall(a Assessment) string {
	var needs []string
	if a.TraceCount < s.cfg.VerifiedMinTraces {
		needs = append(needs, fmt.Sprintf(">= %d traces", s.cfg.VerifiedMinTraces))
	}
	if a.IndependentTypes < s.cfg.VerifiedMinTypes {
		needs = append(needs, fmt.Sprintf(">= %d substrates", s.cfg.VerifiedMinTypes))
	}
	if a.AvgConfidence < s.cfg.VerifiedMinConfidence {
		needs = append(needs, fmt.Sprintf("avg confidence >= %.2f", s.cfg.VerifiedMinConfidence))
	}
	return strings.Join(needs, " and ")
}

func distinctSubstrates(traces []model.Trace) []string {
	seen := make(map[model.Substrate]bool)
	var out []string
	for _, t := range traces {
		sub := model.ParseSubstrate(string(t.Type))
		if !seen[sub] {
			seen[sub] = true
			out = append(out, string(sub))
		}
	}
	sort.Strings(out)
	return out
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
