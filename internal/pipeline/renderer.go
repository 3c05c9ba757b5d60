package pipeline

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/khaaliswooden-max/qal/internal/model"
)

// Renderer writes reports as JSON, Markdown and a short terminal summary
type Renderer struct {
	includeFooter bool
}

// NewRenderer creates a renderer
func NewRenderer(includeFooter bool) *Renderer {
	return &Renderer{includeFooter: includeFooter}
}

// RenderJSON writes the report as indented JSON to path
func (r *Renderer) RenderJSON(report *model.Report, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := r.WriteJSON(f, report); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// WriteJSON encodes the report as indented JSON
func (r *Renderer) WriteJSON(w io.Writer, report *model.Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	return nil
}

// RenderMarkdown writes the Markdown report to path
func (r *Renderer) RenderMarkdown(report *model.Report, path string) error {
	return os.WriteFile(path, []byte(r.Markdown(report)), 0644)
}

// RenderLLMMarkdown writes an already rendered narrative document
func (r *Renderer) RenderLLMMarkdown(content string, path string) error {
	return os.WriteFile(path, []byte(content), 0644)
}

// Markdown renders the computed report. Voids are always listed; a report
// never hides a region it could not reconstruct.
func (r *Renderer) Markdown(report *model.Report) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Reconstruction: %s\n\n", report.Subject)
	fmt.Fprintf(&b, "- **Session:** `%s`\n", report.SessionID)
	fmt.Fprintf(&b, "- **Generated:** %s\n", report.GeneratedAt.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(&b, "- **Events:** %d, **Relations:** %d, **Acyclic:** %t\n\n",
		report.Graph.Nodes, report.Graph.Edges, report.Graph.IsConsistent)

	labels := make(map[string]model.LabelingResult, len(report.Labels))
	for _, l := range report.Labels {
		labels[l.ClaimID] = l
	}

	b.WriteString("## Timeline\n\n")
	if len(report.Timeline) == 0 {
		b.WriteString("_No events ingested._\n\n")
	} else {
		b.WriteString("| Event | Kind | Layer | Time | Label |\n")
		b.WriteString("|---|---|---|---|---|\n")
		for _, e := range report.Timeline {
			fmt.Fprintf(&b, "| `%s` | %s | %s | %s | %s |\n",
				e.ID, e.Kind, e.Layer, e.Timestamp, labelCell(labels[EventClaimID(e.ID)]))
		}
		b.WriteString("\n")
	}

	if len(report.Lineage) > 0 {
		b.WriteString("## Causal Lineage\n\n")
		for _, l := range report.Lineage {
			fmt.Fprintf(&b, "- `%s`: caused by %s; leads to %s\n", l.EventID, idList(l.Ancestors), idList(l.Descendants))
		}
		b.WriteString("\n")
	}

	b.WriteString("## Claims\n\n")
	if len(report.Labels) == 0 {
		b.WriteString("_No claims._\n\n")
	} else {
		b.WriteString("| Claim | Label | Traces | Reasoning |\n")
		b.WriteString("|---|---|---|---|\n")
		for _, l := range report.Labels {
			fmt.Fprintf(&b, "| `%s` | %s | %d | %s |\n",
				l.ClaimID, labelCell(l), l.EvidenceCount, escapeCell(l.Reasoning))
		}
		b.WriteString("\n")
	}

	b.WriteString("## Epistemic Voids\n\n")
	if len(report.Audit.Gaps) == 0 {
		b.WriteString("_None._\n\n")
	} else {
		for _, v := range report.Audit.Gaps {
			fmt.Fprintf(&b, "- **%s** `%s` (%s): %s. %s", v.Type, v.GapID, v.GapKind, v.Description, v.Message)
			if v.TimeRange != nil {
				fmt.Fprintf(&b, " [%s .. %s]", v.TimeRange.From, v.TimeRange.To)
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	if len(report.RejectedEvents) > 0 || len(report.RejectedRelations) > 0 {
		b.WriteString("## Rejected Input\n\n")
		for _, item := range report.RejectedEvents {
			fmt.Fprintf(&b, "- event `%s`: %s (%s)\n", item.ID, item.Reason, item.Detail)
		}
		for _, item := range report.RejectedRelations {
			fmt.Fprintf(&b, "- relation `%s`: %s (%s)\n", item.ID, item.Reason, item.Detail)
		}
		b.WriteString("\n")
	}

	b.WriteString("## Audit\n\n")
	a := report.Audit
	fmt.Fprintf(&b, "- Total claims: %d\n", a.TotalClaims)
	fmt.Fprintf(&b, "- Valid: %d, flagged: %d, rejected: %d\n", a.ValidClaims, a.FlaggedClaims, a.RejectedClaims)
	fmt.Fprintf(&b, "- Labels: %s\n", labelSummary(a.LabelSummary))
	fmt.Fprintf(&b, "- Transparency score: %.2f\n", a.TransparencyScore)
	if a.FabricationDetected {
		b.WriteString("- **Fabrication detected:** at least one claim cited no resolvable trace\n")
	}

	var violations []model.Violation
	for _, d := range a.Details {
		violations = append(violations, d.Violations...)
	}
	if len(violations) > 0 {
		b.WriteString("\n### Violations\n\n")
		for _, v := range violations {
			fmt.Fprintf(&b, "- `%s` %s\n", v.ClaimID, v)
		}
	}

	if r.includeFooter {
		b.WriteString("\n---\n\n")
		b.WriteString("_Labels are computed from physical and documentary traces only. ")
		b.WriteString("Caller-supplied labels are re-checked, and regions without evidence are shown as voids instead of guesses._\n")
	}
	return b.String()
}

// RenderSummary prints a short human summary
func (r *Renderer) RenderSummary(w io.Writer, report *model.Report) {
	a := report.Audit
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Reconstruction: %s\n", report.Subject)
	fmt.Fprintf(w, "  Session:    %s\n", report.SessionID)
	fmt.Fprintf(w, "  Graph:      %d events, %d relations (acyclic: %t)\n",
		report.Graph.Nodes, report.Graph.Edges, report.Graph.IsConsistent)
	if n := len(report.RejectedEvents) + len(report.RejectedRelations); n > 0 {
		fmt.Fprintf(w, "  Rejected:   %d events, %d relations\n", len(report.RejectedEvents), len(report.RejectedRelations))
	}
	fmt.Fprintf(w, "  Claims:     %d total, %d valid, %d flagged, %d rejected\n",
		a.TotalClaims, a.ValidClaims, a.FlaggedClaims, a.RejectedClaims)
	fmt.Fprintf(w, "  Labels:     %s\n", labelSummary(a.LabelSummary))
	fmt.Fprintf(w, "  Voids:      %d\n", len(a.Gaps))
	if report.LLM != nil && report.LLM.Enabled {
		fmt.Fprintf(w, "  Narrative:  %s (%d citations)\n", report.LLM.Provider, len(report.LLM.CitedClaims))
	}
	fmt.Fprintln(w)
}

func labelCell(l model.LabelingResult) string {
	switch {
	case l.ClaimID == "":
		return "-"
	case l.Rejected:
		return "REJECTED"
	case l.LabelChanged:
		return fmt.Sprintf("%s (claimed %s)", l.AssignedLabel, l.OriginalLabel)
	default:
		return string(l.AssignedLabel)
	}
}

func labelSummary(m map[model.Label]int) string {
	order := []model.Label{model.LabelVerified, model.LabelPlausible, model.LabelSpeculative}
	parts := make([]string, 0, len(order))
	for _, l := range order {
		parts = append(parts, fmt.Sprintf("%d %s", m[l], l))
	}
	return strings.Join(parts, ", ")
}

func escapeCell(s string) string {
	return strings.ReplaceAll(strings.ReplaceAll(s, "|", "\\|"), "\n", " ")
}

func idList(ids []string) string {
	if len(ids) == 0 {
		return "nothing recorded"
	}
	quoted := make([]string, len(ids))
	for i, id := range ids {
		quoted[i] = "`" + id + "`"
	}
	return strings.Join(quoted, ", ")
}
