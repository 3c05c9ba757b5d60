package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/khaaliswooden-max/qal/internal/model"
)

// Throttle paces calls per provider
type Throttle interface {
	Wait(ctx context.Context, key string) error
}

// Summarizer produces the optional narrative of a finished report. It runs
// after labeling and can never change a label.
type Summarizer struct {
	provider Provider
	config   Config
	throttle Throttle
}

// NewSummarizer creates a summarizer; an empty provider name yields a disabled one
func NewSummarizer(config Config, throttle Throttle) (*Summarizer, error) {
	if config.Provider != "" && !config.StrictEvidence {
		return nil, fmt.Errorf("strict evidence mode cannot be disabled")
	}
	provider, err := NewProvider(config)
	if err != nil {
		return nil, err
	}
	return &Summarizer{
		provider: provider,
		config:   config,
		throttle: throttle,
	}, nil
}

// IsEnabled reports whether a provider is configured
func (s *Summarizer) IsEnabled() bool {
	return s.provider != nil
}

// ProviderName returns the configured provider name, or "" when disabled
func (s *Summarizer) ProviderName() string {
	if s.provider == nil {
		return ""
	}
	return s.provider.Name()
}

// GenerateSummary narrates the report. Provider failures degrade to a summary
// carrying warnings rather than an error, so a session never fails because of
// the narrative.
func (s *Summarizer) GenerateSummary(ctx context.Context, report model.Report) (*model.NarrativeSummary, error) {
	if s.provider == nil {
		return nil, nil
	}

	name := s.provider.Name()
	summary := &model.NarrativeSummary{
		Enabled:        true,
		Provider:       name,
		Model:          s.config.Model,
		StrictEvidence: true,
	}

	if !s.provider.IsAvailable(ctx) {
		summary.Enabled = false
		summary.Warnings = append(summary.Warnings,
			fmt.Sprintf("LLM provider %s is not available (check API key, base URL or network)", name))
		return summary, nil
	}

	if s.throttle != nil {
		if err := s.throttle.Wait(ctx, name); err != nil {
			summary.Warnings = append(summary.Warnings, fmt.Sprintf("LLM summary generation failed: rate limiter: %v", err))
			return summary, nil
		}
	}

	allowed := AllowedClaims(report)
	resp, err := s.provider.Summarize(ctx, SummarizeRequest{
		Report:        report,
		AllowedClaims: allowed,
		Model:         s.config.Model,
		MaxTokens:     s.config.MaxTokens,
	})
	if err != nil {
		summary.Warnings = append(summary.Warnings, fmt.Sprintf("LLM summary generation failed: %v", err))
		return summary, nil
	}

	summary.SummaryMD = resp.Summary
	summary.CitedClaims = resp.CitedClaims
	if resp.Model != "" {
		summary.Model = resp.Model
	}
	summary.Warnings = append(summary.Warnings,
		fmt.Sprintf("Tokens used: %d", resp.TokensUsed),
		fmt.Sprintf("Verified %d citations against %d labeled claims", len(resp.CitedClaims), len(allowed)))
	return summary, nil
}

// RenderSeparateMarkdown renders the narrative as its own Markdown document,
// kept apart from the computed report
func RenderSeparateMarkdown(summary *model.NarrativeSummary) string {
	if summary == nil || !summary.Enabled {
		return ""
	}

	var b strings.Builder
	b.WriteString("# LLM Narrative\n\n")
	b.WriteString("> **GENERATED CONTENT.** This narrative was written by a language model from the computed report. ")
	b.WriteString("Labels, voids and rejections were determined independently and are not affected by it.\n\n")

	fmt.Fprintf(&b, "- **Provider:** %s\n", summary.Provider)
	if summary.Model != "" {
		fmt.Fprintf(&b, "- **Model:** %s\n", summary.Model)
	}
	fmt.Fprintf(&b, "- **Strict Evidence Mode:** %t\n\n", summary.StrictEvidence)

	b.WriteString("## Narrative\n\n")
	if summary.SummaryMD == "" {
		b.WriteString("_No summary generated._\n")
	} else {
		b.WriteString(summary.SummaryMD)
		b.WriteString("\n")
	}

	if len(summary.CitedClaims) > 0 {
		b.WriteString("\n## Cited Claims\n\n")
		for _, id := range summary.CitedClaims {
			fmt.Fprintf(&b, "- `%s`\n", id)
		}
	}

	if len(summary.Warnings) > 0 {
		b.WriteString("\n## Notes\n\n")
		for _, w := range summary.Warnings {
			fmt.Fprintf(&b, "- %s\n", w)
		}
	}
	return b.String()
}
