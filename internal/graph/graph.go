// Package graph holds the causal graph of a reconstruction session. The graph
// is kept a temporally ordered DAG at all times: every insertion is checked
// before it is committed.
package graph

import (
	"fmt"
	"sort"
	"sync"

	"github.com/khaaliswooden-max/qal/internal/model"
	"github.com/khaaliswooden-max/qal/internal/temporal"
)

type edgeKey struct {
	from, to int
	kind     model.RelationKind
}

type edge struct {
	from, to int
	kind     model.RelationKind
	weight   float64
	refs     []string
}

// CausalGraph owns its events and edges. Events are stored in an arena and
// addressed by id; edges are pairs of arena indices. Mutations take the write
// lock, queries the read lock.
type CausalGraph struct {
	mu        sync.RWMutex
	threshold float64

	events []model.Event
	canon  []temporal.Canonical
	index  map[string]int

	edges   []edge
	out     [][]int // arena index -> edge indices leaving it
	in      [][]int // arena index -> edge indices entering it
	edgeSet map[edgeKey]struct{}
}

// New creates an empty graph using the default precedence threshold
func New() *CausalGraph {
	return NewWithThreshold(temporal.DefaultPrecedenceThreshold)
}

// NewWithThreshold creates an empty graph. threshold is the minimum
// P(source older than target) for a relation with uncertain endpoints.
func NewWithThreshold(threshold float64) *CausalGraph {
	return &CausalGraph{
		threshold: threshold,
		index:     make(map[string]int),
		edgeSet:   make(map[edgeKey]struct{}),
	}
}

// Threshold returns the precedence threshold in use
func (g *CausalGraph) Threshold() float64 { return g.threshold }

// AddEvent inserts an event. Re-inserting an id fails; use ReplaceEvent.
func (g *CausalGraph) AddEvent(e model.Event) error {
	c, err := checkEvent(e)
	if err != nil {
		return err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if _, exists := g.index[e.ID]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateEvent, e.ID)
	}
	g.insertEvent(e, c)
	return nil
}

func checkEvent(e model.Event) (temporal.Canonical, error) {
	if e.ID == "" {
		return temporal.Canonical{}, fmt.Errorf("%w: event id is required", ErrInvalidEvent)
	}
	c, err := temporal.ToCanonical(e.Timestamp)
	if err != nil {
		return temporal.Canonical{}, fmt.Errorf("event %s: %w", e.ID, err)
	}
	return c, nil
}

func (g *CausalGraph) insertEvent(e model.Event, c temporal.Canonical) {
	g.index[e.ID] = len(g.events)
	g.events = append(g.events, e.Clone())
	g.canon = append(g.canon, c)
	g.out = append(g.out, nil)
	g.in = append(g.in, nil)
}

// ReplaceEvent swaps the stored event with the same id. Every incident edge is
// re-checked against the new timestamp; on failure the graph is unchanged.
func (g *CausalGraph) ReplaceEvent(e model.Event) error {
	c, err := checkEvent(e)
	if err != nil {
		return err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	idx, ok := g.index[e.ID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownEvent, e.ID)
	}

	for _, ei := range g.out[idx] {
		ed := g.edges[ei]
		if err := g.checkOrder(ed, e.Timestamp, g.events[ed.to].Timestamp); err != nil {
			return err
		}
	}
	for _, ei := range g.in[idx] {
		ed := g.edges[ei]
		if err := g.checkOrder(ed, g.events[ed.from].Timestamp, e.Timestamp); err != nil {
			return err
		}
	}

	g.events[idx] = e.Clone()
	g.canon[idx] = c
	return nil
}

// AddRelation inserts a causal edge after the structural, temporal and
// acyclicity checks. A rejected relation leaves the graph untouched.
func (g *CausalGraph) AddRelation(r model.Relation) error {
	r, err := normalizeRelation(r)
	if err != nil {
		return err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	from, to, err := g.endpoints(r)
	if err != nil {
		return err
	}
	if _, dup := g.edgeSet[edgeKey{from, to, r.Kind}]; dup {
		return fmt.Errorf("%w: %s", ErrDuplicateRelation, r)
	}
	if from == to {
		return &CycleError{Relation: r, Path: []string{r.SourceID}}
	}

	ed := edge{from: from, to: to, kind: r.Kind, weight: r.Weight, refs: r.EvidenceRefs}
	if err := g.checkOrder(ed, g.events[from].Timestamp, g.events[to].Timestamp); err != nil {
		return err
	}
	if path := g.pathBetween(to, from); path != nil {
		return &CycleError{Relation: r, Path: path}
	}

	g.commitEdge(ed)
	return nil
}

func normalizeRelation(r model.Relation) (model.Relation, error) {
	if err := r.Validate(); err != nil {
		return r, fmt.Errorf("relation %s: %w", r, err)
	}
	kind, _ := model.ParseRelationKind(string(r.Kind))
	r.Kind = kind
	r.EvidenceRefs = append([]string(nil), r.EvidenceRefs...)
	return r, nil
}

func (g *CausalGraph) endpoints(r model.Relation) (int, int, error) {
	from, ok := g.index[r.SourceID]
	if !ok {
		return 0, 0, fmt.Errorf("%w: source %q of %s", ErrUnknownEndpoint, r.SourceID, r)
	}
	to, ok := g.index[r.TargetID]
	if !ok {
		return 0, 0, fmt.Errorf("%w: target %q of %s", ErrUnknownEndpoint, r.TargetID, r)
	}
	return from, to, nil
}

func (g *CausalGraph) checkOrder(ed edge, source, target model.TemporalValue) error {
	o, err := temporal.CheckOrder(source, target, g.threshold)
	if err != nil {
		return err
	}
	if o.Consistent {
		return nil
	}
	return &TemporalParadoxError{
		Relation:        g.relationOf(ed),
		SourceTimestamp: source,
		TargetTimestamp: target,
		Probability:     o.Probability,
		Threshold:       g.threshold,
	}
}

// pathBetween returns the ids on a directed path from src to dst, or nil
func (g *CausalGraph) pathBetween(src, dst int) []string {
	parent := map[int]int{src: -1}
	queue := []int{src}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur == dst {
			var path []string
			for n := cur; n != -1; n = parent[n] {
				path = append(path, g.events[n].ID)
			}
			for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
				path[i], path[j] = path[j], path[i]
			}
			return path
		}
		for _, ei := range g.out[cur] {
			next := g.edges[ei].to
			if _, seen := parent[next]; !seen {
				parent[next] = cur
				queue = append(queue, next)
			}
		}
	}
	return nil
}

func (g *CausalGraph) commitEdge(ed edge) {
	ei := len(g.edges)
	g.edges = append(g.edges, ed)
	g.out[ed.from] = append(g.out[ed.from], ei)
	g.in[ed.to] = append(g.in[ed.to], ei)
	g.edgeSet[edgeKey{ed.from, ed.to, ed.kind}] = struct{}{}
}

func (g *CausalGraph) relationOf(ed edge) model.Relation {
	return model.Relation{
		SourceID:     g.events[ed.from].ID,
		TargetID:     g.events[ed.to].ID,
		Kind:         ed.kind,
		Weight:       ed.weight,
		EvidenceRefs: append([]string(nil), ed.refs...),
	}
}

// Ancestors returns every event with a directed path into id, oldest first
func (g *CausalGraph) Ancestors(id string) ([]model.Event, error) {
	return g.closure(id, func(ed edge) int { return ed.from }, func(i int) []int { return g.in[i] })
}

// Descendants returns every event reachable from id, oldest first
func (g *CausalGraph) Descendants(id string) ([]model.Event, error) {
	return g.closure(id, func(ed edge) int { return ed.to }, func(i int) []int { return g.out[i] })
}

func (g *CausalGraph) closure(id string, step func(edge) int, adj func(int) []int) ([]model.Event, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	start, ok := g.index[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEvent, id)
	}

	seen := map[int]bool{start: true}
	stack := []int{start}
	var found []int
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, ei := range adj(cur) {
			next := step(g.edges[ei])
			if !seen[next] {
				seen[next] = true
				found = append(found, next)
				stack = append(stack, next)
			}
		}
	}
	return g.ordered(found), nil
}

// ordered clones the events at the given indices sorted oldest first, then by id
func (g *CausalGraph) ordered(idxs []int) []model.Event {
	sort.Slice(idxs, func(i, j int) bool {
		a, b := idxs[i], idxs[j]
		if g.canon[a].Mean != g.canon[b].Mean {
			return g.canon[a].Mean > g.canon[b].Mean
		}
		return g.events[a].ID < g.events[b].ID
	})
	out := make([]model.Event, len(idxs))
	for i, idx := range idxs {
		out[i] = g.events[idx].Clone()
	}
	return out
}

// IsConsistent reports whether the graph is currently acyclic
func (g *CausalGraph) IsConsistent() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.isAcyclic()
}

// isAcyclic runs Kahn's algorithm over the arena
func (g *CausalGraph) isAcyclic() bool {
	indeg := make([]int, len(g.events))
	for _, ed := range g.edges {
		indeg[ed.to]++
	}
	var queue []int
	for i, d := range indeg {
		if d == 0 {
			queue = append(queue, i)
		}
	}
	visited := 0
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		visited++
		for _, ei := range g.out[cur] {
			to := g.edges[ei].to
			indeg[to]--
			if indeg[to] == 0 {
				queue = append(queue, to)
			}
		}
	}
	return visited == len(g.events)
}

// Event returns a copy of the event with the given id
func (g *CausalGraph) Event(id string) (model.Event, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	idx, ok := g.index[id]
	if !ok {
		return model.Event{}, false
	}
	return g.events[idx].Clone(), true
}

// Timeline returns all events oldest first
func (g *CausalGraph) Timeline() []model.Event {
	g.mu.RLock()
	defer g.mu.RUnlock()
	idxs := make([]int, len(g.events))
	for i := range idxs {
		idxs[i] = i
	}
	return g.ordered(idxs)
}

// Relations returns all edges in insertion order
func (g *CausalGraph) Relations() []model.Relation {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]model.Relation, len(g.edges))
	for i, ed := range g.edges {
		out[i] = g.relationOf(ed)
	}
	return out
}

// EvidenceRefs returns the trace ids attributed to an event
func (g *CausalGraph) EvidenceRefs(id string) ([]string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	idx, ok := g.index[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEvent, id)
	}
	return append([]string(nil), g.events[idx].EvidenceRefs...), nil
}

// NodeCount returns the number of events
func (g *CausalGraph) NodeCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.events)
}

// EdgeCount returns the number of relations
func (g *CausalGraph) EdgeCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.edges)
}

// Summary returns node and edge counts and the acyclicity flag
func (g *CausalGraph) Summary() model.GraphSummary {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return model.GraphSummary{
		Nodes:        len(g.events),
		Edges:        len(g.edges),
		IsConsistent: g.isAcyclic(),
	}
}
