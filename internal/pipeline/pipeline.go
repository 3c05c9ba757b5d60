package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/khaaliswooden-max/qal/internal/cache"
	"github.com/khaaliswooden-max/qal/internal/graph"
	"github.com/khaaliswooden-max/qal/internal/llm"
	"github.com/khaaliswooden-max/qal/internal/model"
	"github.com/khaaliswooden-max/qal/internal/score"
	"github.com/khaaliswooden-max/qal/internal/temporal"
	"github.com/khaaliswooden-max/qal/internal/validate"
)

// Pipeline runs reconstruction sessions. A Pipeline holds no per-session
// state and is safe for concurrent use.
type Pipeline struct {
	config     *model.Config
	logger     *zap.Logger
	validator  *validate.Validator
	loader     *Loader
	renderer   *Renderer
	summarizer *llm.Summarizer // Optional narrative (nil if disabled)
	now        func() time.Time
}

// Option customizes a Pipeline
type Option func(*Pipeline)

// WithSummarizer sets the narrative summarizer, typically one sharing a rate
// limiter with other pipelines
func WithSummarizer(s *llm.Summarizer) Option {
	return func(p *Pipeline) { p.summarizer = s }
}

// WithCache replaces the file cache used by the loader
func WithCache(c cache.Cache) Option {
	return func(p *Pipeline) { p.loader = NewLoader(c, p.config.Cache.TTL) }
}

// WithClock overrides the report timestamp source
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// NewPipeline creates a pipeline from a validated configuration. A nil logger
// disables logging.
func NewPipeline(cfg *model.Config, logger *zap.Logger, opts ...Option) (*Pipeline, error) {
	if cfg == nil {
		cfg = model.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	var fileCache cache.Cache
	if cfg.Cache.Enabled {
		fileCache = cache.NewMemoryCache(cfg.Cache.TTL, 10*time.Minute)
	}

	scorer := score.NewScorer(cfg.Labeling, cfg.Belief.Epsilon)
	p := &Pipeline{
		config:    cfg,
		logger:    logger,
		validator: validate.NewValidator(scorer, logger.Named("validate")),
		loader:    NewLoader(fileCache, cfg.Cache.TTL),
		renderer:  NewRenderer(cfg.Output.IncludeFooter),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}

	if p.summarizer == nil && cfg.LLM.Provider != "" {
		s, err := llm.NewSummarizer(llm.ConfigFromModel(cfg), nil)
		if err != nil {
			logger.Warn("failed to initialize LLM provider", zap.String("provider", cfg.LLM.Provider), zap.Error(err))
		} else {
			p.summarizer = s
		}
	}
	return p, nil
}

// Renderer returns the pipeline's report renderer
func (p *Pipeline) Renderer() *Renderer {
	return p.renderer
}

// session is the working state of one Reconstruct call
type session struct {
	id     string
	graph  *graph.CausalGraph
	lookup model.TraceLookup
	gaps   []model.Gap
	logger *zap.Logger
}

// Reconstruct runs one session: events are ingested into a fresh causal
// graph, relations are checked for temporal order and acyclicity, every event,
// accepted relation and caller claim is labeled from its traces, and every gap
// is rendered as an explicit void. Rejections are recorded in the report; only
// context cancellation and internal failures return an error.
func (p *Pipeline) Reconstruct(ctx context.Context, req *model.Request) (*model.Report, error) {
	if req == nil {
		return nil, errors.New("nil request")
	}

	s := &session{
		id:     uuid.NewString(),
		graph:  graph.NewWithThreshold(p.config.Temporal.PrecedenceThreshold),
		lookup: model.NewTraceIndex(req.Traces),
		gaps:   append([]model.Gap(nil), req.Gaps...),
	}
	s.logger = p.logger.With(zap.String("session_id", s.id), zap.String("subject", req.Subject))

	report := &model.Report{
		SessionID:   s.id,
		Subject:     req.Subject,
		GeneratedAt: p.now().UTC(),
		Principles:  model.DefaultPrinciples(),
	}

	report.RejectedEvents = p.ingestEvents(s, req.Events)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Relations are ingested in order while event and caller claims are
	// labeled; event evidence is fixed once the events are in.
	evClaims := eventClaims(s.graph)
	early := make([]model.Claim, 0, len(evClaims)+len(req.Claims))
	early = append(early, evClaims...)
	early = append(early, req.Claims...)
	var earlyResults []model.LabelingResult

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		report.RejectedRelations = p.ingestRelations(gctx, s, req.Relations)
		return gctx.Err()
	})
	g.Go(func() error {
		var err error
		earlyResults, err = p.labelClaims(gctx, s.lookup, early)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	relClaims := relationClaims(s.graph)
	relResults, err := p.labelClaims(ctx, s.lookup, relClaims)
	if err != nil {
		return nil, err
	}

	// Report order: events (oldest first), relations, caller claims
	nEvents := len(evClaims)
	claims := make([]model.Claim, 0, len(early)+len(relClaims))
	claims = append(claims, evClaims...)
	claims = append(claims, relClaims...)
	claims = append(claims, req.Claims...)

	results := make([]model.LabelingResult, 0, len(claims))
	results = append(results, earlyResults[:nEvents]...)
	results = append(results, relResults...)
	results = append(results, earlyResults[nEvents:]...)

	timeline := s.graph.Timeline()
	scanned, err := temporal.ScanGaps(timeline, p.config.Temporal.MaxGapYears)
	if err != nil {
		return nil, fmt.Errorf("temporal gap scan: %w", err)
	}
	s.gaps = append(s.gaps, scanned...)

	lineage, err := eventLineage(s.graph, timeline)
	if err != nil {
		return nil, err
	}

	report.Graph = s.graph.Summary()
	report.Timeline = timeline
	report.Lineage = lineage
	report.Labels = results
	report.Audit = p.validator.Summarize(claims, results, s.gaps)
	if p.config.Output.IncludeExport {
		export := s.graph.Export()
		report.Export = &export
	}

	s.logger.Info("reconstruction complete",
		zap.Int("events", report.Graph.Nodes),
		zap.Int("relations", report.Graph.Edges),
		zap.Int("rejected_events", len(report.RejectedEvents)),
		zap.Int("rejected_relations", len(report.RejectedRelations)),
		zap.Int("claims", report.Audit.TotalClaims),
		zap.Int("rejected_claims", report.Audit.RejectedClaims),
		zap.Int("voids", len(report.Audit.Gaps)))

	// Narrative runs last and never touches labels
	if p.summarizer != nil && p.summarizer.IsEnabled() {
		summary, err := p.summarizer.GenerateSummary(ctx, *report)
		if err != nil {
			s.logger.Warn("LLM summary generation failed", zap.Error(err))
		} else if summary != nil {
			report.LLM = summary
		}
	}

	return report, nil
}

// ReconstructFile loads a request file and reconstructs it. A request without
// a subject is named after its file.
func (p *Pipeline) ReconstructFile(ctx context.Context, path string) (*model.Report, error) {
	req, err := p.loader.LoadRequest(path)
	if err != nil {
		return nil, fmt.Errorf("load request: %w", err)
	}
	if req.Subject == "" {
		req.Subject = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return p.Reconstruct(ctx, req)
}

func (p *Pipeline) ingestEvents(s *session, events []model.Event) []model.RejectedItem {
	var rejected []model.RejectedItem
	for _, e := range events {
		err := s.graph.AddEvent(e)
		if err == nil {
			continue
		}

		kind := graph.ErrorKind(err)
		item := model.RejectedItem{ID: e.ID, Reason: kind, Detail: err.Error()}
		if e.ID != "" && (kind == "unknown_unit" || kind == "invalid_timestamp") {
			gap := model.Gap{
				ID:          "gap-undated-" + e.ID,
				Kind:        model.GapTemporal,
				Description: fmt.Sprintf("Event %s has no usable timestamp: %v", e.ID, err),
				Affected:    []string{e.ID},
			}
			s.gaps = append(s.gaps, gap)
			item.GapID = gap.ID
		}
		s.logger.Warn("event rejected",
			zap.String("event_id", e.ID),
			zap.String("reason", kind),
			zap.Error(err))
		rejected = append(rejected, item)
	}
	return rejected
}

// ingestRelations adds relations one at a time; each rejected relation leaves
// a CAUSAL gap. Stops early when ctx is cancelled.
func (p *Pipeline) ingestRelations(ctx context.Context, s *session, relations []model.Relation) []model.RejectedItem {
	var rejected []model.RejectedItem
	for _, r := range relations {
		if ctx.Err() != nil {
			return rejected
		}
		err := s.graph.AddRelation(r)
		if err == nil {
			continue
		}

		kind := graph.ErrorKind(err)
		gap := model.Gap{
			ID:          fmt.Sprintf("gap-causal-%s-%s-%s", r.SourceID, r.TargetID, strings.ToLower(string(r.Kind))),
			Kind:        model.GapCausal,
			Description: fmt.Sprintf("Proposed relation %s was rejected: %v", r, err),
			Affected:    []string{r.SourceID, r.TargetID},
		}
		s.gaps = append(s.gaps, gap)
		rejected = append(rejected, model.RejectedItem{
			ID:     r.String(),
			Reason: kind,
			Detail: err.Error(),
			GapID:  gap.ID,
		})
		s.logger.Warn("relation rejected",
			zap.String("source_id", r.SourceID),
			zap.String("target_id", r.TargetID),
			zap.String("kind", string(r.Kind)),
			zap.String("reason", kind),
			zap.Error(err))
	}
	return rejected
}

// labelClaims labels claims concurrently. Fabrication is a per-claim outcome,
// not a failure; any other error aborts.
func (p *Pipeline) labelClaims(ctx context.Context, lookup model.TraceLookup, claims []model.Claim) ([]model.LabelingResult, error) {
	results := make([]model.LabelingResult, len(claims))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers())
	for i, c := range claims {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res, err := p.validator.LabelClaim(c, lookup)
			var ferr *validate.FabricationError
			if err != nil && !errors.As(err, &ferr) {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (p *Pipeline) workers() int {
	if p.config.Concurrency.Workers > 0 {
		return p.config.Concurrency.Workers
	}
	return 1
}

// eventClaims derives one claim per ingested event, oldest first, citing the
// evidence the graph attributes to it
// eventLineage walks ancestors and descendants of every event; events with
// neither are left out
func eventLineage(g *graph.CausalGraph, timeline []model.Event) ([]model.Lineage, error) {
	var out []model.Lineage
	for _, e := range timeline {
		anc, err := g.Ancestors(e.ID)
		if err != nil {
			return nil, fmt.Errorf("lineage of %s: %w", e.ID, err)
		}
		desc, err := g.Descendants(e.ID)
		if err != nil {
			return nil, fmt.Errorf("lineage of %s: %w", e.ID, err)
		}
		if len(anc) == 0 && len(desc) == 0 {
			continue
		}
		out = append(out, model.Lineage{
			EventID:     e.ID,
			Ancestors:   eventIDs(anc),
			Descendants: eventIDs(desc),
		})
	}
	return out, nil
}

func eventIDs(events []model.Event) []string {
	if len(events) == 0 {
		return nil
	}
	ids := make([]string, len(events))
	for i, e := range events {
		ids[i] = e.ID
	}
	return ids
}

func eventClaims(g *graph.CausalGraph) []model.Claim {
	timeline := g.Timeline()
	claims := make([]model.Claim, 0, len(timeline))
	for _, e := range timeline {
		refs, err := g.EvidenceRefs(e.ID)
		if err != nil {
			continue
		}
		claims = append(claims, model.Claim{
			ID:           EventClaimID(e.ID),
			Statement:    fmt.Sprintf("event %s occurred", e.ID),
			SubjectID:    e.ID,
			EvidenceRefs: refs,
		})
	}
	return claims
}

// relationClaims derives one claim per accepted relation, in insertion order
func relationClaims(g *graph.CausalGraph) []model.Claim {
	relations := g.Relations()
	claims := make([]model.Claim, 0, len(relations))
	for _, r := range relations {
		claims = append(claims, model.Claim{
			ID:           RelationClaimID(r),
			Statement:    fmt.Sprintf("%s %s %s", r.SourceID, r.Kind, r.TargetID),
			SubjectID:    r.SourceID,
			ObjectID:     r.TargetID,
			EvidenceRefs: append([]string(nil), r.EvidenceRefs...),
		})
	}
	return claims
}

// EventClaimID is the claim id derived for an event
func EventClaimID(eventID string) string {
	return "event:" + eventID
}

// RelationClaimID is the claim id derived for an accepted relation
func RelationClaimID(r model.Relation) string {
	return fmt.Sprintf("relation:%s:%s:%s", r.SourceID, r.Kind, r.TargetID)
}

// RenderReport writes the report to the requested outputs and prints a
// summary to stdout. jsonPath "-" writes JSON to stdout instead.
func (p *Pipeline) RenderReport(report *model.Report, jsonPath string, mdPath string, verbose bool) error {
	if jsonPath == "-" {
		if err := p.renderer.WriteJSON(os.Stdout, report); err != nil {
			return fmt.Errorf("render JSON: %w", err)
		}
		return nil
	}

	if jsonPath != "" {
		if err := p.renderer.RenderJSON(report, jsonPath); err != nil {
			return fmt.Errorf("render JSON: %w", err)
		}
		if verbose {
			fmt.Fprintf(os.Stderr, "✓ Wrote JSON: %s\n", jsonPath)
		}
	}

	if mdPath != "" {
		if err := p.renderer.RenderMarkdown(report, mdPath); err != nil {
			return fmt.Errorf("render markdown: %w", err)
		}
		if verbose {
			fmt.Fprintf(os.Stderr, "✓ Wrote Markdown: %s\n", mdPath)
		}
	}

	// Narrative goes to its own file, never into the computed report
	if report.LLM != nil && report.LLM.Enabled && mdPath != "" {
		llmPath := strings.TrimSuffix(mdPath, ".md") + ".llm.md"
		if err := p.renderer.RenderLLMMarkdown(llm.RenderSeparateMarkdown(report.LLM), llmPath); err != nil {
			p.logger.Warn("failed to write LLM summary", zap.String("path", llmPath), zap.Error(err))
		} else if verbose {
			fmt.Fprintf(os.Stderr, "✓ Wrote LLM Summary: %s\n", llmPath)
		}
	}

	p.renderer.RenderSummary(os.Stdout, report)
	return nil
}
