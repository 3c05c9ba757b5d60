package model

// Request is one reconstruction session's input: the proposed events and
// relations from an upstream hypothesis generator, explicit claims, the
// traces they may cite, and gaps found by the caller's own gap analysis.
type Request struct {
	Subject   string     `json:"subject" yaml:"subject"`
	Events    []Event    `json:"events" yaml:"events"`
	Relations []Relation `json:"relations,omitempty" yaml:"relations,omitempty"`
	Claims    []Claim    `json:"claims,omitempty" yaml:"claims,omitempty"`
	Traces    []Trace    `json:"traces,omitempty" yaml:"traces,omitempty"`
	Gaps      []Gap      `json:"gaps,omitempty" yaml:"gaps,omitempty"`

	// TraceCatalogs are extra files of traces shared between requests
	TraceCatalogs []string `json:"trace_catalogs,omitempty" yaml:"trace_catalogs,omitempty"`
}

// TraceCatalog is a standalone file of traces
type TraceCatalog struct {
	Traces []Trace `json:"traces" yaml:"traces"`
}
