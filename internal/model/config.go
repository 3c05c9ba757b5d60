package model

import (
	"errors"
	"fmt"
	"math"
	"runtime"
	"time"
)

// Config is the complete runtime configuration
type Config struct {
	Temporal     TemporalConfig     `yaml:"temporal" mapstructure:"temporal"`
	Belief       BeliefConfig       `yaml:"belief" mapstructure:"belief"`
	Labeling     LabelingConfig     `yaml:"labeling" mapstructure:"labeling"`
	Cache        CacheConfig        `yaml:"cache" mapstructure:"cache"`
	Concurrency  ConcurrencyConfig  `yaml:"concurrency" mapstructure:"concurrency"`
	RateLimiting RateLimitingConfig `yaml:"rate_limiting" mapstructure:"rate_limiting"`
	LLM          LLMConfig          `yaml:"llm" mapstructure:"llm"`
	Output       OutputConfig       `yaml:"output" mapstructure:"output"`
}

// TemporalConfig controls the temporal-consistency check and gap scan
type TemporalConfig struct {
	// PrecedenceThreshold is the minimum P(source older than target) for an edge
	PrecedenceThreshold float64 `yaml:"precedence_threshold" mapstructure:"precedence_threshold"`
	// MaxGapYears flags consecutive events further apart than this (0 disables)
	MaxGapYears float64 `yaml:"max_gap_years" mapstructure:"max_gap_years"`
}

// BeliefConfig controls Bayesian updating
type BeliefConfig struct {
	// Epsilon is the likelihood used for hypotheses the evidence does not mention
	Epsilon float64 `yaml:"epsilon" mapstructure:"epsilon"`
}

// Floors of the precedence and labeling thresholds. Configuration may raise
// them, never lower them.
const (
	FloorPrecedenceThreshold = 0.5

	FloorVerifiedMinTraces      = 2
	FloorVerifiedMinTypes       = 2
	FloorVerifiedMinConfidence  = 0.8
	FloorPlausibleMinTraces     = 1
	FloorPlausibleMinConfidence = 0.5
)

// LabelingConfig holds the evidence thresholds of each epistemic tier
type LabelingConfig struct {
	VerifiedMinTraces      int     `yaml:"verified_min_traces" mapstructure:"verified_min_traces"`
	VerifiedMinTypes       int     `yaml:"verified_min_types" mapstructure:"verified_min_types"`
	VerifiedMinConfidence  float64 `yaml:"verified_min_confidence" mapstructure:"verified_min_confidence"`
	PlausibleMinTraces     int     `yaml:"plausible_min_traces" mapstructure:"plausible_min_traces"`
	PlausibleMinConfidence float64 `yaml:"plausible_min_confidence" mapstructure:"plausible_min_confidence"`
}

// CacheConfig controls the request/catalog file cache
type CacheConfig struct {
	Enabled bool          `yaml:"enabled" mapstructure:"enabled"`
	TTL     time.Duration `yaml:"ttl" mapstructure:"ttl"`
}

// ConcurrencyConfig controls parallel sessions in batch mode
type ConcurrencyConfig struct {
	Workers int `yaml:"workers" mapstructure:"workers"`
}

// RateLimitingConfig throttles calls to LLM providers
type RateLimitingConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	BurstSize         int     `yaml:"burst_size" mapstructure:"burst_size"`
}

// LLMConfig configures the optional narrative summary
type LLMConfig struct {
	Provider       string `yaml:"provider" mapstructure:"provider"` // "", openai, anthropic, ollama
	Model          string `yaml:"model" mapstructure:"model"`
	APIKey         string `yaml:"api_key,omitempty" mapstructure:"api_key"`
	BaseURL        string `yaml:"base_url,omitempty" mapstructure:"base_url"`
	Timeout        int    `yaml:"timeout" mapstructure:"timeout"` // seconds
	MaxTokens      int    `yaml:"max_tokens" mapstructure:"max_tokens"`
	StrictEvidence bool   `yaml:"strict_evidence" mapstructure:"strict_evidence"`
}

// OutputConfig controls report rendering
type OutputConfig struct {
	Verbose       bool `yaml:"verbose" mapstructure:"verbose"`
	IncludeFooter bool `yaml:"include_footer" mapstructure:"include_footer"`
	IncludeExport bool `yaml:"include_export" mapstructure:"include_export"`
}

// DefaultConfig returns the built-in defaults
func DefaultConfig() *Config {
	return &Config{
		Temporal: TemporalConfig{
			PrecedenceThreshold: FloorPrecedenceThreshold,
			MaxGapYears:         0,
		},
		Belief: BeliefConfig{
			Epsilon: 0.001,
		},
		Labeling: LabelingConfig{
			VerifiedMinTraces:      FloorVerifiedMinTraces,
			VerifiedMinTypes:       FloorVerifiedMinTypes,
			VerifiedMinConfidence:  FloorVerifiedMinConfidence,
			PlausibleMinTraces:     FloorPlausibleMinTraces,
			PlausibleMinConfidence: FloorPlausibleMinConfidence,
		},
		Cache: CacheConfig{
			Enabled: true,
			TTL:     10 * time.Minute,
		},
		Concurrency: ConcurrencyConfig{
			Workers: runtime.NumCPU(),
		},
		RateLimiting: RateLimitingConfig{
			RequestsPerSecond: 1,
			BurstSize:         2,
		},
		LLM: LLMConfig{
			Timeout:        30,
			MaxTokens:      1000,
			StrictEvidence: true,
		},
		Output: OutputConfig{
			IncludeFooter: true,
			IncludeExport: true,
		},
	}
}

// Validate rejects out-of-range values and any labeling threshold below its floor
func (c *Config) Validate() error {
	var errs []error
	if p := c.Temporal.PrecedenceThreshold; math.IsNaN(p) || p < FloorPrecedenceThreshold || p > 1 {
		errs = append(errs, fmt.Errorf("temporal.precedence_threshold must be in [%v,1], got %v", FloorPrecedenceThreshold, p))
	}
	if c.Temporal.MaxGapYears < 0 {
		errs = append(errs, fmt.Errorf("temporal.max_gap_years must be >= 0, got %v", c.Temporal.MaxGapYears))
	}
	if c.Belief.Epsilon < 0 || c.Belief.Epsilon > 1 {
		errs = append(errs, fmt.Errorf("belief.epsilon must be in [0,1], got %v", c.Belief.Epsilon))
	}
	errs = append(errs, c.Labeling.validate()...)
	if !c.LLM.StrictEvidence {
		errs = append(errs, errors.New("llm.strict_evidence cannot be disabled"))
	}
	return errors.Join(errs...)
}

// validate enforces the floors and keeps VERIFIED at least as strict as PLAUSIBLE
func (l LabelingConfig) validate() []error {
	var errs []error
	if l.VerifiedMinTraces < FloorVerifiedMinTraces {
		errs = append(errs, fmt.Errorf("labeling.verified_min_traces must be >= %d, got %d", FloorVerifiedMinTraces, l.VerifiedMinTraces))
	}
	if l.VerifiedMinTypes < FloorVerifiedMinTypes {
		errs = append(errs, fmt.Errorf("labeling.verified_min_types must be >= %d, got %d", FloorVerifiedMinTypes, l.VerifiedMinTypes))
	}
	if math.IsNaN(l.VerifiedMinConfidence) || l.VerifiedMinConfidence < FloorVerifiedMinConfidence || l.VerifiedMinConfidence > 1 {
		errs = append(errs, fmt.Errorf("labeling.verified_min_confidence must be in [%v,1], got %v", FloorVerifiedMinConfidence, l.VerifiedMinConfidence))
	}
	if l.PlausibleMinTraces < FloorPlausibleMinTraces {
		errs = append(errs, fmt.Errorf("labeling.plausible_min_traces must be >= %d, got %d", FloorPlausibleMinTraces, l.PlausibleMinTraces))
	}
	if math.IsNaN(l.PlausibleMinConfidence) || l.PlausibleMinConfidence < FloorPlausibleMinConfidence || l.PlausibleMinConfidence > 1 {
		errs = append(errs, fmt.Errorf("labeling.plausible_min_confidence must be in [%v,1], got %v", FloorPlausibleMinConfidence, l.PlausibleMinConfidence))
	}
	if l.VerifiedMinTraces < l.PlausibleMinTraces {
		errs = append(errs, fmt.Errorf("labeling.verified_min_traces (%d) below plausible_min_traces (%d)",
			l.VerifiedMinTraces, l.PlausibleMinTraces))
	}
	if l.VerifiedMinConfidence < l.PlausibleMinConfidence {
		errs = append(errs, fmt.Errorf("labeling.verified_min_confidence (%v) below plausible_min_confidence (%v)",
			l.VerifiedMinConfidence, l.PlausibleMinConfidence))
	}
	return errs
}
