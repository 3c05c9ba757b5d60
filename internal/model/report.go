package model

import "time"

// Report is the complete result of one reconstruction session
type Report struct {
	SessionID   string    `json:"session_id"`
	Subject     string    `json:"subject"`
	GeneratedAt time.Time `json:"generated_at"`

	Graph             GraphSummary     `json:"graph"`
	Timeline          []Event          `json:"timeline"`                     // Ingested events, oldest first
	Lineage           []Lineage        `json:"lineage,omitempty"`            // Events with causal links, timeline order
	RejectedEvents    []RejectedItem   `json:"rejected_events,omitempty"`    // Structural failures on ingest
	RejectedRelations []RejectedItem   `json:"rejected_relations,omitempty"` // Structural and consistency failures
	Labels            []LabelingResult `json:"labels"`
	Audit             AuditReport      `json:"audit"`
	Export            *GraphExport     `json:"export,omitempty"`
	Principles        Principles       `json:"principles"`

	LLM *NarrativeSummary `json:"llm,omitempty"` // Optional, never affects labels
}

// GraphSummary describes the causal graph at the end of a session
type GraphSummary struct {
	Nodes        int  `json:"nodes"`
	Edges        int  `json:"edges"`
	IsConsistent bool `json:"is_consistent"` // Acyclic
}

// Lineage is the transitive causal neighborhood of one event. Both lists are
// oldest first.
type Lineage struct {
	EventID     string   `json:"event_id"`
	Ancestors   []string `json:"ancestors,omitempty"`
	Descendants []string `json:"descendants,omitempty"`
}

// RejectedItem records an event or relation the graph refused
type RejectedItem struct {
	ID     string `json:"id"`               // Event id or "src -KIND-> dst"
	Reason string `json:"reason"`           // Error kind, e.g. "temporal_paradox"
	Detail string `json:"detail"`           // Full error text
	GapID  string `json:"gap_id,omitempty"` // Void emitted for the rejection
}

// AuditReport is the aggregate pass over all claims of a reconstruction
type AuditReport struct {
	TotalClaims         int           `json:"total_claims"`
	ValidClaims         int           `json:"valid_claims"`   // Labeled with no violations
	FlaggedClaims       int           `json:"flagged_claims"` // Labeled but with violations
	RejectedClaims      int           `json:"rejected_claims"`
	FabricationDetected bool          `json:"fabrication_detected"`
	LabelSummary        map[Label]int `json:"label_summary"`
	TransparencyScore   float64       `json:"transparency_score"` // Caller labels that matched / labeled claims
	Gaps                []Void        `json:"gaps"`
	Details             []ClaimAudit  `json:"validation_details"`
}

// ClaimAudit is the per-claim line of an audit report
type ClaimAudit struct {
	ClaimID    string      `json:"claim_id"`
	Valid      bool        `json:"valid"`
	Rejected   bool        `json:"rejected"`
	Label      Label       `json:"label,omitempty"`
	Violations []Violation `json:"violations,omitempty"`
}

// GraphExport is a node-link rendering of the causal graph
type GraphExport struct {
	Directed bool         `json:"directed"`
	Nodes    []ExportNode `json:"nodes"`
	Links    []ExportLink `json:"links"`
}

// ExportNode is one event in a GraphExport
type ExportNode struct {
	ID         string  `json:"id"`
	Kind       string  `json:"kind"`
	Layer      Layer   `json:"layer"`
	YearsBP    float64 `json:"years_bp"`
	SigmaYears float64 `json:"sigma_years"`
}

// ExportLink is one relation in a GraphExport
type ExportLink struct {
	Source string       `json:"source"`
	Target string       `json:"target"`
	Kind   RelationKind `json:"kind"`
	Weight float64      `json:"weight"`
}

// Principles documents the guarantees a report was produced under
type Principles struct {
	TraceBacked  bool `json:"trace_backed"`  // Every labeled claim cites at least one resolvable trace
	GapsExplicit bool `json:"gaps_explicit"` // Unsupported regions are rendered as voids, never omitted
	Calibrated   bool `json:"calibrated"`    // Caller labels are recomputed, never trusted
}

// DefaultPrinciples returns the guarantees every session enforces
func DefaultPrinciples() Principles {
	return Principles{
		TraceBacked:  true,
		GapsExplicit: true,
		Calibrated:   true,
	}
}

// NarrativeSummary contains an optional LLM-written narrative of the report.
// It is produced after labeling and never changes a label.
type NarrativeSummary struct {
	Enabled        bool     `json:"enabled"`
	Provider       string   `json:"provider,omitempty"`
	Model          string   `json:"model,omitempty"`
	StrictEvidence bool     `json:"strict_evidence"`
	SummaryMD      string   `json:"summary_md,omitempty"`
	CitedClaims    []string `json:"cited_claims,omitempty"`
	Warnings       []string `json:"warnings,omitempty"`
}
