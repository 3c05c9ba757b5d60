package graph

import (
	"errors"
	"fmt"
	"strings"

	"github.com/khaaliswooden-max/qal/internal/model"
	"github.com/khaaliswooden-max/qal/internal/temporal"
)

var (
	ErrInvalidEvent      = errors.New("invalid event")
	ErrDuplicateEvent    = errors.New("duplicate event")
	ErrUnknownEndpoint   = errors.New("unknown relation endpoint")
	ErrUnknownEvent      = errors.New("unknown event")
	ErrDuplicateRelation = errors.New("duplicate relation")
	ErrTemporalParadox   = errors.New("temporal paradox")
	ErrCyclicCausality   = errors.New("cyclic causality")
)

// TemporalParadoxError is returned when a proposed cause postdates its effect
type TemporalParadoxError struct {
	Relation        model.Relation
	SourceTimestamp model.TemporalValue
	TargetTimestamp model.TemporalValue
	Probability     float64 // P(source older than target)
	Threshold       float64
}

func (e *TemporalParadoxError) Error() string {
	return fmt.Sprintf("temporal paradox: %s: source %s does not precede target %s (p=%.4f, threshold %.2f)",
		e.Relation, e.SourceTimestamp, e.TargetTimestamp, e.Probability, e.Threshold)
}

func (e *TemporalParadoxError) Unwrap() error { return ErrTemporalParadox }

// CycleError is returned when a relation would close a causal loop. Path runs
// from the relation's target back to its source through existing edges.
type CycleError struct {
	Relation model.Relation
	Path     []string
}

func (e *CycleError) Error() string {
	if len(e.Path) == 0 {
		return fmt.Sprintf("cyclic causality: %s", e.Relation)
	}
	return fmt.Sprintf("cyclic causality: %s closes loop %s -> %s",
		e.Relation, strings.Join(e.Path, " -> "), e.Relation.TargetID)
}

func (e *CycleError) Unwrap() error { return ErrCyclicCausality }

// ErrorKind returns a stable snake_case tag for graph errors, used in reports
func ErrorKind(err error) string {
	switch {
	case errors.Is(err, ErrInvalidEvent):
		return "invalid_event"
	case errors.Is(err, ErrDuplicateEvent):
		return "duplicate_event"
	case errors.Is(err, ErrUnknownEndpoint):
		return "unknown_endpoint"
	case errors.Is(err, ErrUnknownEvent):
		return "unknown_event"
	case errors.Is(err, ErrDuplicateRelation):
		return "duplicate_relation"
	case errors.Is(err, ErrTemporalParadox):
		return "temporal_paradox"
	case errors.Is(err, ErrCyclicCausality):
		return "cyclic_causality"
	case errors.Is(err, model.ErrUnknownRelationKind), errors.Is(err, model.ErrInvalidWeight):
		return "invalid_relation"
	case errors.Is(err, temporal.ErrUnknownUnit):
		return "unknown_unit"
	case errors.Is(err, model.ErrInvalidTemporalValue):
		return "invalid_timestamp"
	default:
		return "invalid_input"
	}
}
