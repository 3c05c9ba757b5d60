package llm

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/khaaliswooden-max/qal/internal/model"
)

// ErrCitationLeak is returned when a narrative cites anything outside its allowlist
var ErrCitationLeak = errors.New("CITATION LEAK")

// systemPrompt is shared by every provider
const systemPrompt = "You are a helpful assistant that summarizes historical reconstruction reports with strict adherence to evidence constraints."

// Provider defines the interface for LLM providers
type Provider interface {
	// Name returns the provider name
	Name() string

	// Summarize generates a narrative of the report with strict evidence mode
	Summarize(ctx context.Context, req SummarizeRequest) (*SummarizeResponse, error)

	// IsAvailable checks if the provider is properly configured and accessible
	IsAvailable(ctx context.Context) bool
}

// SummarizeRequest contains the input for LLM summarization
type SummarizeRequest struct {
	// Report is the finished reconstruction to narrate
	Report model.Report

	// AllowedClaims is the STRICT allowlist of claim ids the LLM can cite.
	// Only labeled (non-rejected) claims belong here.
	AllowedClaims []string

	// Prompt is an optional custom prompt (if empty, use default)
	Prompt string

	// Model is the specific model to use (provider-specific)
	Model string

	// MaxTokens limits the response length
	MaxTokens int
}

// SummarizeResponse contains the LLM's narrative output
type SummarizeResponse struct {
	// Summary is the generated narrative text
	Summary string

	// CitedClaims are the claim ids the LLM actually cited
	CitedClaims []string

	// Model is the model that generated the response
	Model string

	// TokensUsed tracks token consumption
	TokensUsed int
}

// Config holds LLM provider configuration
type Config struct {
	// Provider name: "openai", "anthropic", "ollama", ""
	Provider string

	// Model name (provider-specific)
	Model string

	// APIKey for OpenAI/Anthropic
	APIKey string

	// BaseURL for custom endpoints (e.g., Ollama)
	BaseURL string

	// Timeout for API requests
	Timeout int // seconds

	// StrictEvidence enforces the claim allowlist (always true)
	StrictEvidence bool

	// MaxTokens for response generation
	MaxTokens int

	// RequestsPerSecond and Burst throttle calls per provider
	RequestsPerSecond float64
	Burst             int
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Provider:          "", // Disabled by default
		Model:             "",
		Timeout:           30,
		StrictEvidence:    true,
		MaxTokens:         1000,
		RequestsPerSecond: 1,
		Burst:             2,
	}
}

// BuildPrompt constructs the default prompt for the narrative with strict evidence mode
func BuildPrompt(report model.Report, allowedClaims []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, `You are narrating a historical reconstruction. Every claim below already carries an epistemic label computed from physical traces; you must NOT change, strengthen or invent labels.

CRITICAL RULES:
1. You may ONLY cite claims from this allowed list, using the form [claim:<id>]:
%s

2. DO NOT cite URLs, sources or claim ids outside this list.
3. Describe EPISTEMIC_VOID regions as unknown. Never fill them with a guess.
4. Keep each claim's label: say "verified", "plausible" or "speculative" exactly as given.
5. Never say an event "certainly" happened unless its claim is VERIFIED.

Reconstruction Summary:
- Subject: %s
- Events: %d, causal relations: %d (acyclic: %t)
- Claims: %d labeled, %d rejected for lack of evidence
- Labels: %d VERIFIED, %d PLAUSIBLE, %d SPECULATIVE
- Epistemic voids: %d

Labeled claims:
`, joinClaims(allowedClaims), report.Subject,
		report.Graph.Nodes, report.Graph.Edges, report.Graph.IsConsistent,
		report.Audit.TotalClaims-report.Audit.RejectedClaims, report.Audit.RejectedClaims,
		report.Audit.LabelSummary[model.LabelVerified],
		report.Audit.LabelSummary[model.LabelPlausible],
		report.Audit.LabelSummary[model.LabelSpeculative],
		len(report.Audit.Gaps))

	listed := 0
	for _, l := range report.Labels {
		if l.Rejected {
			continue
		}
		if listed >= maxPromptItems {
			fmt.Fprintf(&b, "- ... and %d more\n", countLabeled(report.Labels)-listed)
			break
		}
		fmt.Fprintf(&b, "- [claim:%s] %s: %s\n", l.ClaimID, l.AssignedLabel, l.Reasoning)
		listed++
	}

	if len(report.Audit.Gaps) > 0 {
		b.WriteString("\nEpistemic voids:\n")
		for i, g := range report.Audit.Gaps {
			if i >= maxPromptItems {
				fmt.Fprintf(&b, "- ... and %d more\n", len(report.Audit.Gaps)-maxPromptItems)
				break
			}
			fmt.Fprintf(&b, "- %s (%s): %s\n", g.GapID, g.GapKind, g.Description)
		}
	}

	b.WriteString("\nProvide a 3-5 sentence narrative that cites claims inline and names the voids.")
	return b.String()
}

const maxPromptItems = 20

func joinClaims(ids []string) string {
	if len(ids) == 0 {
		return "(No labeled claims available)"
	}
	var b strings.Builder
	for i, id := range ids {
		if i >= maxPromptItems {
			fmt.Fprintf(&b, "\n... and %d more claims", len(ids)-maxPromptItems)
			break
		}
		fmt.Fprintf(&b, "\n- %s", id)
	}
	return b.String()
}

func countLabeled(labels []model.LabelingResult) int {
	count := 0
	for _, l := range labels {
		if !l.Rejected {
			count++
		}
	}
	return count
}

// AllowedClaims returns the ids of labeled claims, sorted
func AllowedClaims(report model.Report) []string {
	var ids []string
	for _, l := range report.Labels {
		if !l.Rejected {
			ids = append(ids, l.ClaimID)
		}
	}
	sort.Strings(ids)
	return ids
}

var (
	citationPattern = regexp.MustCompile(`\[claim:([^\]\s]+)\]`)
	urlPattern      = regexp.MustCompile(`https?://[^\s\)\]]+`)
)

// extractCitations returns the distinct claim ids cited in text, in order of appearance
func extractCitations(text string) []string {
	seen := make(map[string]bool)
	var unique []string
	for _, m := range citationPattern.FindAllStringSubmatch(text, -1) {
		id := m[1]
		if !seen[id] {
			seen[id] = true
			unique = append(unique, id)
		}
	}
	return unique
}

// verifyCitations enforces the allowlist. Any URL is a leak since narratives
// may only cite claims.
func verifyCitations(text string, allowed []string, strict bool) ([]string, error) {
	cited := extractCitations(text)
	if !strict {
		return cited, nil
	}
	for _, id := range cited {
		if !contains(allowed, id) {
			return nil, fmt.Errorf("%w: LLM cited disallowed claim: %s", ErrCitationLeak, id)
		}
	}
	if u := urlPattern.FindString(text); u != "" {
		return nil, fmt.Errorf("%w: LLM cited external URL: %s", ErrCitationLeak, strings.TrimRight(u, ".,;:!?"))
	}
	return cited, nil
}

// contains checks if a slice contains a string
func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}

func resolveModel(req SummarizeRequest, cfg Config, fallback string) string {
	if req.Model != "" {
		return req.Model
	}
	if cfg.Model != "" {
		return cfg.Model
	}
	return fallback
}

func resolveMaxTokens(req SummarizeRequest, cfg Config) int {
	if req.MaxTokens > 0 {
		return req.MaxTokens
	}
	if cfg.MaxTokens > 0 {
		return cfg.MaxTokens
	}
	return 1000
}
