package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/khaaliswooden-max/qal/internal/llm"
	"github.com/khaaliswooden-max/qal/internal/model"
	"github.com/khaaliswooden-max/qal/internal/pipeline"
	"github.com/khaaliswooden-max/qal/internal/worker"
)

var (
	outJSON     string
	outMD       string
	timeout     time.Duration
	noCache     bool
	noFooter    bool
	noExport    bool
	maxGapYears float64
	threshold   float64
	llmEnabled  bool
	llmProvider string
	llmModel    string
)

// reconstructCmd represents the reconstruct command
var reconstructCmd = &cobra.Command{
	Use:   "reconstruct <request.yaml|request.json>",
	Short: "Reconstruct a causal history from a request file",
	Long: `Reconstruct ingests the events and proposed causal relations of a request:
- Checks every relation for temporal order and acyclicity
- Labels each event, accepted relation and claim from its traces
- Rejects claims that cite no resolvable trace
- Reports every unsupported region as an explicit epistemic void

Example:
  qal reconstruct bronze-age.yaml
  qal reconstruct bronze-age.yaml --json report.json --md report.md
  qal reconstruct bronze-age.yaml --max-gap-years 200
  qal reconstruct bronze-age.yaml --llm --llm-provider anthropic --llm-model claude-3-5-sonnet-20241022`,
	Args: cobra.ExactArgs(1),
	RunE: runReconstruct,
}

func init() {
	rootCmd.AddCommand(reconstructCmd)

	reconstructCmd.Flags().StringVar(&outJSON, "json", "report.json", "output JSON path (- for stdout)")
	reconstructCmd.Flags().StringVar(&outMD, "md", "", "output Markdown path (optional)")
	reconstructCmd.Flags().DurationVar(&timeout, "timeout", 2*time.Minute, "overall timeout")
	addSessionFlags(reconstructCmd)
}

// addSessionFlags registers the flags shared by reconstruct and batch
func addSessionFlags(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "disable the request/catalog file cache")
	cmd.Flags().BoolVar(&noFooter, "no-footer", false, "disable footer in Markdown reports")
	cmd.Flags().BoolVar(&noExport, "no-export", false, "omit the node-link graph export from reports")
	cmd.Flags().Float64Var(&maxGapYears, "max-gap-years", 0, "report TEMPORAL voids between events further apart than this; overrides config, 0 disables the scan")
	cmd.Flags().Float64Var(&threshold, "threshold", 0, "minimum P(cause precedes effect) for a relation; overrides config, must be in [0.5,1]")

	cmd.Flags().BoolVar(&llmEnabled, "llm", false, "enable LLM narrative summary")
	cmd.Flags().StringVar(&llmProvider, "llm-provider", "openai", "LLM provider (openai, anthropic, ollama)")
	cmd.Flags().StringVar(&llmModel, "llm-model", "gpt-4o-mini", "LLM model name")
}

// buildConfig merges flags over the loaded configuration
func buildConfig(cmd *cobra.Command) (*model.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	if noCache {
		cfg.Cache.Enabled = false
	}
	if noFooter {
		cfg.Output.IncludeFooter = false
	}
	if noExport {
		cfg.Output.IncludeExport = false
	}
	if cmd.Flags().Changed("max-gap-years") {
		cfg.Temporal.MaxGapYears = maxGapYears
	}
	if cmd.Flags().Changed("threshold") {
		cfg.Temporal.PrecedenceThreshold = threshold
	}
	cfg.Output.Verbose = verbose

	if llmEnabled {
		if err := applyLLMFlags(cfg); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// applyLLMFlags enables the narrative and pulls credentials from the
// provider's usual environment variables
func applyLLMFlags(cfg *model.Config) error {
	cfg.LLM.Provider = llmProvider
	cfg.LLM.Model = llmModel
	cfg.LLM.StrictEvidence = true // Always enforce

	switch llmProvider {
	case "openai":
		if key := os.Getenv("OPENAI_API_KEY"); key != "" {
			cfg.LLM.APIKey = key
		}
		if cfg.LLM.APIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY environment variable not set")
		}
	case "anthropic", "claude":
		if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
			cfg.LLM.APIKey = key
		}
		if cfg.LLM.APIKey == "" {
			return fmt.Errorf("ANTHROPIC_API_KEY environment variable not set")
		}
	case "ollama":
		if baseURL := os.Getenv("OLLAMA_BASE_URL"); baseURL != "" {
			cfg.LLM.BaseURL = baseURL
		}
	default:
		return fmt.Errorf("unsupported LLM provider: %s", llmProvider)
	}
	return nil
}

// newPipeline wires logger, rate limiter and summarizer into a pipeline
func newPipeline(cfg *model.Config, logger *zap.Logger) (*pipeline.Pipeline, error) {
	var opts []pipeline.Option
	if cfg.LLM.Provider != "" {
		limiter := worker.NewLimiter(cfg.RateLimiting.RequestsPerSecond, cfg.RateLimiting.BurstSize)
		summarizer, err := llm.NewSummarizer(llm.ConfigFromModel(cfg), limiter)
		if err != nil {
			return nil, fmt.Errorf("initialize LLM provider: %w", err)
		}
		opts = append(opts, pipeline.WithSummarizer(summarizer))
	}
	return pipeline.NewPipeline(cfg, logger, opts...)
}

func runReconstruct(cmd *cobra.Command, args []string) error {
	path := args[0]
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	cfg, err := buildConfig(cmd)
	if err != nil {
		return err
	}

	logger, err := newLogger(verbose)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	if verbose {
		fmt.Fprintf(os.Stderr, "Reconstructing: %s\n", path)
		fmt.Fprintf(os.Stderr, "Timeout: %v\n", timeout)
		fmt.Fprintf(os.Stderr, "Precedence threshold: %.2f\n", cfg.Temporal.PrecedenceThreshold)
		fmt.Fprintln(os.Stderr)
	}

	p, err := newPipeline(cfg, logger)
	if err != nil {
		return err
	}

	report, err := p.ReconstructFile(ctx, path)
	if err != nil {
		return fmt.Errorf("reconstruction failed: %w", err)
	}

	if verbose {
		fmt.Fprintf(os.Stderr, "✓ Ingested %d events, %d relations\n", report.Graph.Nodes, report.Graph.Edges)
		fmt.Fprintf(os.Stderr, "✓ Labeled %d claims (%d rejected)\n", report.Audit.TotalClaims, report.Audit.RejectedClaims)
		fmt.Fprintf(os.Stderr, "✓ Rendered %d epistemic voids\n", len(report.Audit.Gaps))
		if report.LLM != nil && report.LLM.Enabled {
			fmt.Fprintf(os.Stderr, "✓ Generated LLM narrative using %s/%s\n", report.LLM.Provider, report.LLM.Model)
		}
		fmt.Fprintln(os.Stderr)
	}

	if err := p.RenderReport(report, outJSON, outMD, verbose); err != nil {
		return fmt.Errorf("render failed: %w", err)
	}
	return nil
}
