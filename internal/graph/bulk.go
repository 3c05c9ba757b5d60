package graph

import (
	"fmt"

	"github.com/khaaliswooden-max/qal/internal/model"
	"github.com/khaaliswooden-max/qal/internal/temporal"
)

// BulkLoad inserts events and relations checking identifiers only. Temporal
// order and acyclicity are not verified; call IsConsistent and
// TemporalViolations afterwards. The load is all-or-nothing.
func (g *CausalGraph) BulkLoad(events []model.Event, relations []model.Relation) error {
	canon := make([]temporal.Canonical, len(events))
	for i, e := range events {
		c, err := checkEvent(e)
		if err != nil {
			return err
		}
		canon[i] = c
	}
	rels := make([]model.Relation, len(relations))
	for i, r := range relations {
		nr, err := normalizeRelation(r)
		if err != nil {
			return err
		}
		rels[i] = nr
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	pending := make(map[string]int, len(events))
	for i, e := range events {
		if _, exists := g.index[e.ID]; exists {
			return fmt.Errorf("%w: %s", ErrDuplicateEvent, e.ID)
		}
		if _, exists := pending[e.ID]; exists {
			return fmt.Errorf("%w: %s", ErrDuplicateEvent, e.ID)
		}
		pending[e.ID] = len(g.events) + i
	}
	resolve := func(id string) (int, bool) {
		if idx, ok := g.index[id]; ok {
			return idx, true
		}
		idx, ok := pending[id]
		return idx, ok
	}

	edges := make([]edge, len(rels))
	seen := make(map[edgeKey]struct{}, len(rels))
	for i, r := range rels {
		from, ok := resolve(r.SourceID)
		if !ok {
			return fmt.Errorf("%w: source %q of %s", ErrUnknownEndpoint, r.SourceID, r)
		}
		to, ok := resolve(r.TargetID)
		if !ok {
			return fmt.Errorf("%w: target %q of %s", ErrUnknownEndpoint, r.TargetID, r)
		}
		key := edgeKey{from, to, r.Kind}
		_, existing := g.edgeSet[key]
		_, batch := seen[key]
		if existing || batch {
			return fmt.Errorf("%w: %s", ErrDuplicateRelation, r)
		}
		seen[key] = struct{}{}
		edges[i] = edge{from: from, to: to, kind: r.Kind, weight: r.Weight, refs: r.EvidenceRefs}
	}

	for i, e := range events {
		g.insertEvent(e, canon[i])
	}
	for _, ed := range edges {
		g.commitEdge(ed)
	}
	return nil
}

// TemporalViolations re-checks every edge's temporal order and returns the
// failures in insertion order. It is empty for graphs built with AddRelation.
func (g *CausalGraph) TemporalViolations() []*TemporalParadoxError {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var out []*TemporalParadoxError
	for _, ed := range g.edges {
		err := g.checkOrder(ed, g.events[ed.from].Timestamp, g.events[ed.to].Timestamp)
		if tp, ok := err.(*TemporalParadoxError); ok {
			out = append(out, tp)
		}
	}
	return out
}

// Export renders the graph as node-link data, nodes oldest first and links in
// insertion order
func (g *CausalGraph) Export() model.GraphExport {
	g.mu.RLock()
	defer g.mu.RUnlock()

	idxs := make([]int, len(g.events))
	for i := range idxs {
		idxs[i] = i
	}
	ordered := g.ordered(idxs)

	exp := model.GraphExport{
		Directed: true,
		Nodes:    make([]model.ExportNode, len(ordered)),
		Links:    make([]model.ExportLink, len(g.edges)),
	}
	for i, e := range ordered {
		c := g.canon[g.index[e.ID]]
		exp.Nodes[i] = model.ExportNode{
			ID:         e.ID,
			Kind:       e.Kind,
			Layer:      e.Layer,
			YearsBP:    c.Mean,
			SigmaYears: c.Sigma,
		}
	}
	for i, ed := range g.edges {
		exp.Links[i] = model.ExportLink{
			Source: g.events[ed.from].ID,
			Target: g.events[ed.to].ID,
			Kind:   ed.kind,
			Weight: ed.weight,
		}
	}
	return exp
}
