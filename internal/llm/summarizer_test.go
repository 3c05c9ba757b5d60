package llm

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/khaaliswooden-max/qal/internal/model"
)

// MockProvider implements the Provider interface for testing
type MockProvider struct {
	name      string
	available bool
	response  *SummarizeResponse
	err       error
	lastReq   SummarizeRequest
}

func (m *MockProvider) Name() string {
	return m.name
}

func (m *MockProvider) Summarize(ctx context.Context, req SummarizeRequest) (*SummarizeResponse, error) {
	m.lastReq = req
	if m.err != nil {
		return nil, m.err
	}
	return m.response, nil
}

func (m *MockProvider) IsAvailable(ctx context.Context) bool {
	return m.available
}

type countingThrottle struct {
	keys []string
	err  error
}

func (c *countingThrottle) Wait(ctx context.Context, key string) error {
	c.keys = append(c.keys, key)
	return c.err
}

func sampleReport() model.Report {
	return model.Report{
		Subject: "Late Bronze Age collapse",
		Graph:   model.GraphSummary{Nodes: 2, Edges: 1, IsConsistent: true},
		Labels: []model.LabelingResult{
			{ClaimID: "event:drought", AssignedLabel: model.LabelVerified, Reasoning: "Supported by 3 traces"},
			{ClaimID: "event:sea-peoples", AssignedLabel: model.LabelSpeculative, Reasoning: "Weak evidence"},
			{ClaimID: "ghost", Rejected: true, Reasoning: "fabrication"},
		},
		Audit: model.AuditReport{
			TotalClaims:    3,
			RejectedClaims: 1,
			LabelSummary: map[model.Label]int{
				model.LabelVerified:    1,
				model.LabelSpeculative: 1,
			},
			Gaps: []model.Void{
				{Type: model.VoidType, GapID: "gap-evidential-ghost", GapKind: model.GapEvidential, Description: "Claim ghost has no resolvable supporting trace"},
			},
		},
	}
}

func TestNewSummarizer_DisabledProvider(t *testing.T) {
	summarizer, err := NewSummarizer(Config{Provider: ""}, nil)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if summarizer.provider != nil {
		t.Error("Expected provider to be nil when disabled")
	}
	if summarizer.IsEnabled() {
		t.Error("Expected summarizer to be disabled")
	}
	if summarizer.ProviderName() != "" {
		t.Error("Expected empty provider name when disabled")
	}
}

func TestNewSummarizer_RefusesLooseEvidence(t *testing.T) {
	_, err := NewSummarizer(Config{Provider: "ollama", Model: "llama3", StrictEvidence: false}, nil)
	if err == nil || !strings.Contains(err.Error(), "strict evidence") {
		t.Errorf("Expected strict evidence error, got %v", err)
	}
}

func TestNewSummarizer_UnknownProvider(t *testing.T) {
	_, err := NewSummarizer(Config{Provider: "oracle", StrictEvidence: true}, nil)
	if err == nil || !strings.Contains(err.Error(), "unknown LLM provider") {
		t.Errorf("Expected unknown provider error, got %v", err)
	}
}

func TestSummarizer_GenerateSummary_Disabled(t *testing.T) {
	summarizer := &Summarizer{}

	summary, err := summarizer.GenerateSummary(context.Background(), sampleReport())
	if err != nil {
		t.Errorf("Expected no error when disabled, got %v", err)
	}
	if summary != nil {
		t.Error("Expected nil summary when provider disabled")
	}
}

func TestSummarizer_GenerateSummary_ProviderUnavailable(t *testing.T) {
	summarizer := &Summarizer{
		provider: &MockProvider{name: "test-provider", available: false},
		config:   Config{StrictEvidence: true},
	}

	summary, err := summarizer.GenerateSummary(context.Background(), sampleReport())
	if err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
	if summary == nil {
		t.Fatal("Expected summary object with warnings")
	}
	if summary.Enabled {
		t.Error("Expected summary to be marked as disabled")
	}
	if len(summary.Warnings) == 0 || !strings.Contains(summary.Warnings[0], "not available") {
		t.Errorf("Expected warning about provider unavailability, got %v", summary.Warnings)
	}
}

func TestSummarizer_GenerateSummary_Success(t *testing.T) {
	mock := &MockProvider{
		name:      "test-provider",
		available: true,
		response: &SummarizeResponse{
			Summary:     "A drought is verified [claim:event:drought].",
			CitedClaims: []string{"event:drought"},
			Model:       "test-model",
			TokensUsed:  150,
		},
	}
	throttle := &countingThrottle{}
	summarizer := &Summarizer{
		provider: mock,
		config:   Config{Model: "test-model", StrictEvidence: true},
		throttle: throttle,
	}

	summary, err := summarizer.GenerateSummary(context.Background(), sampleReport())
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if !summary.Enabled || summary.Provider != "test-provider" || summary.Model != "test-model" {
		t.Errorf("Unexpected summary header: %+v", summary)
	}
	if summary.SummaryMD != "A drought is verified [claim:event:drought]." {
		t.Errorf("Unexpected summary text: %q", summary.SummaryMD)
	}

	// rejected claims never reach the allowlist
	allowed := mock.lastReq.AllowedClaims
	if len(allowed) != 2 || contains(allowed, "ghost") {
		t.Errorf("Unexpected allowlist: %v", allowed)
	}

	if len(throttle.keys) != 1 || throttle.keys[0] != "test-provider" {
		t.Errorf("Expected one throttle wait keyed by provider, got %v", throttle.keys)
	}

	var foundTokens, foundCitations bool
	for _, w := range summary.Warnings {
		if strings.Contains(w, "Tokens used: 150") {
			foundTokens = true
		}
		if strings.Contains(w, "Verified 1 citations against 2 labeled claims") {
			foundCitations = true
		}
	}
	if !foundTokens || !foundCitations {
		t.Errorf("Expected token and citation notes, got %v", summary.Warnings)
	}
}

func TestSummarizer_GenerateSummary_ProviderError(t *testing.T) {
	summarizer := &Summarizer{
		provider: &MockProvider{name: "test-provider", available: true, err: errors.New("API rate limit exceeded")},
		config:   Config{StrictEvidence: true},
	}

	summary, err := summarizer.GenerateSummary(context.Background(), sampleReport())
	if err != nil {
		t.Errorf("Expected no error (graceful degradation), got %v", err)
	}
	if summary == nil || !summary.Enabled {
		t.Fatal("Expected enabled summary with error warning")
	}
	found := false
	for _, w := range summary.Warnings {
		if strings.Contains(w, "failed") && strings.Contains(w, "rate limit") {
			found = true
		}
	}
	if !found {
		t.Errorf("Expected warning to mention error: %v", summary.Warnings)
	}
}

func TestSummarizer_GenerateSummary_ThrottleError(t *testing.T) {
	mock := &MockProvider{name: "p", available: true, response: &SummarizeResponse{Summary: "x"}}
	summarizer := &Summarizer{
		provider: mock,
		config:   Config{StrictEvidence: true},
		throttle: &countingThrottle{err: context.Canceled},
	}

	summary, err := summarizer.GenerateSummary(context.Background(), sampleReport())
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if summary.SummaryMD != "" {
		t.Error("Expected no narrative when throttle fails")
	}
	if len(summary.Warnings) != 1 || !strings.Contains(summary.Warnings[0], "rate limiter") {
		t.Errorf("Unexpected warnings: %v", summary.Warnings)
	}
}

func TestVerifyCitations(t *testing.T) {
	allowed := []string{"event:a", "relation:a:INFLUENCES:b"}

	cited, err := verifyCitations("A happened [claim:event:a] and caused B [claim:relation:a:INFLUENCES:b] [claim:event:a].", allowed, true)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if len(cited) != 2 || cited[0] != "event:a" {
		t.Errorf("Unexpected citations: %v", cited)
	}

	_, err = verifyCitations("B happened [claim:event:b].", allowed, true)
	if !errors.Is(err, ErrCitationLeak) {
		t.Errorf("Expected citation leak for unknown claim, got %v", err)
	}

	_, err = verifyCitations("See https://example.com/source.", allowed, true)
	if !errors.Is(err, ErrCitationLeak) || !strings.Contains(err.Error(), "https://example.com/source") {
		t.Errorf("Expected citation leak for URL, got %v", err)
	}

	if _, err := verifyCitations("[claim:other]", allowed, false); err != nil {
		t.Errorf("Expected non-strict mode to pass, got %v", err)
	}
}

func TestRenderSeparateMarkdown_Disabled(t *testing.T) {
	if md := RenderSeparateMarkdown(&model.NarrativeSummary{Enabled: false}); md != "" {
		t.Error("Expected empty markdown when disabled")
	}
	if md := RenderSeparateMarkdown(nil); md != "" {
		t.Error("Expected empty markdown when nil")
	}
}

func TestRenderSeparateMarkdown_Success(t *testing.T) {
	summary := &model.NarrativeSummary{
		Enabled:        true,
		Provider:       "openai",
		Model:          "gpt-4o-mini",
		StrictEvidence: true,
		SummaryMD:      "This is the generated narrative.",
		CitedClaims:    []string{"event:drought"},
		Warnings:       []string{"Tokens used: 150"},
	}

	md := RenderSeparateMarkdown(summary)

	for _, section := range []string{
		"# LLM Narrative",
		"GENERATED CONTENT",
		"openai",
		"gpt-4o-mini",
		"Strict Evidence Mode:** true",
		"This is the generated narrative.",
		"## Cited Claims",
		"`event:drought`",
		"## Notes",
		"Tokens used: 150",
		"determined independently",
	} {
		if !strings.Contains(md, section) {
			t.Errorf("Expected markdown to contain '%s'", section)
		}
	}
}

func TestRenderSeparateMarkdown_NoSummary(t *testing.T) {
	md := RenderSeparateMarkdown(&model.NarrativeSummary{Enabled: true, Provider: "p", StrictEvidence: true})
	if !strings.Contains(md, "No summary generated") {
		t.Error("Expected message about no summary")
	}
}

func TestBuildPrompt_BasicStructure(t *testing.T) {
	report := sampleReport()
	prompt := BuildPrompt(report, AllowedClaims(report))

	for _, element := range []string{
		"CRITICAL RULES",
		"ONLY cite claims from this allowed list",
		"- event:drought",
		"- event:sea-peoples",
		"Subject: Late Bronze Age collapse",
		"Events: 2, causal relations: 1 (acyclic: true)",
		"Claims: 2 labeled, 1 rejected",
		"1 VERIFIED, 0 PLAUSIBLE, 1 SPECULATIVE",
		"Epistemic voids: 1",
		"[claim:event:drought] VERIFIED",
		"gap-evidential-ghost (EVIDENTIAL)",
	} {
		if !strings.Contains(prompt, element) {
			t.Errorf("Expected prompt to contain '%s'", element)
		}
	}
	if strings.Contains(prompt, "[claim:ghost]") {
		t.Error("Rejected claim must not be offered for citation")
	}
}

func TestBuildPrompt_NoClaims(t *testing.T) {
	prompt := BuildPrompt(model.Report{Subject: "Empty"}, nil)
	if !strings.Contains(prompt, "No labeled claims available") {
		t.Error("Expected message about no claims")
	}
}

func TestJoinClaims_Many(t *testing.T) {
	ids := make([]string, 25)
	for i := range ids {
		ids[i] = "claim-" + string(rune('a'+i))
	}
	result := joinClaims(ids)
	if !strings.Contains(result, "and 5 more claims") {
		t.Error("Expected truncation message for many claims")
	}
	if !strings.Contains(result, ids[0]) {
		t.Error("Expected first claim to be listed")
	}
}

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	if config.Provider != "" {
		t.Errorf("Expected provider to be empty (disabled), got '%s'", config.Provider)
	}
	if !config.StrictEvidence {
		t.Error("Expected strict evidence to be enabled by default")
	}
	if config.Timeout <= 0 || config.MaxTokens <= 0 {
		t.Error("Expected positive timeout and max tokens")
	}
}

func TestConfigFromModel(t *testing.T) {
	cfg := model.DefaultConfig()
	cfg.LLM.Provider = "anthropic"
	cfg.RateLimiting.RequestsPerSecond = 3

	c := ConfigFromModel(cfg)
	if c.Provider != "anthropic" || c.RequestsPerSecond != 3 || !c.StrictEvidence {
		t.Errorf("Unexpected config: %+v", c)
	}
}
