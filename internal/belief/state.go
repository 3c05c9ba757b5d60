// Package belief maintains probability distributions over competing
// hypotheses and updates them with Bayes' rule.
package belief

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

var (
	// ErrDegenerateDistribution is returned when a distribution has no mass to normalise
	ErrDegenerateDistribution = errors.New("degenerate distribution: total probability mass is zero")
	// ErrInvalidProbability is returned for negative, NaN or infinite mass
	ErrInvalidProbability = errors.New("invalid probability mass")
	// ErrEmptyState is returned when a query needs at least one hypothesis
	ErrEmptyState = errors.New("state has no hypotheses")
)

// State is an immutable mapping from hypothesis to probability mass.
// Operations return new states; the receiver is never modified.
type State struct {
	probs map[string]float64
}

// NewState copies masses into a new, unnormalised state
func NewState(masses map[string]float64) (State, error) {
	probs := make(map[string]float64, len(masses))
	for h, p := range masses {
		if err := checkMass(h, p); err != nil {
			return State{}, err
		}
		probs[h] = p
	}
	return State{probs: probs}, nil
}

// Uniform returns a normalised state with equal mass on each distinct hypothesis
func Uniform(hypotheses ...string) (State, error) {
	masses := make(map[string]float64, len(hypotheses))
	for _, h := range hypotheses {
		masses[h] = 1
	}
	s, err := NewState(masses)
	if err != nil {
		return State{}, err
	}
	return Normalize(s)
}

func checkMass(h string, p float64) error {
	if math.IsNaN(p) || math.IsInf(p, 0) || p < 0 {
		return fmt.Errorf("%w: %q has %v", ErrInvalidProbability, h, p)
	}
	return nil
}

// Len returns the number of hypotheses
func (s State) Len() int { return len(s.probs) }

// Prob returns the mass of h, 0 when h is absent
func (s State) Prob(h string) float64 { return s.probs[h] }

// Hypotheses returns hypothesis labels in sorted order
func (s State) Hypotheses() []string {
	keys := make([]string, 0, len(s.probs))
	for h := range s.probs {
		keys = append(keys, h)
	}
	sort.Strings(keys)
	return keys
}

// Map returns a copy of the underlying masses
func (s State) Map() map[string]float64 {
	out := make(map[string]float64, len(s.probs))
	for h, p := range s.probs {
		out[h] = p
	}
	return out
}

// Sum returns the total mass
func (s State) Sum() float64 {
	var total float64
	for _, h := range s.Hypotheses() {
		total += s.probs[h]
	}
	return total
}

// Normalize divides every entry by the total mass
func Normalize(s State) (State, error) {
	total := s.Sum()
	if total == 0 {
		return State{}, ErrDegenerateDistribution
	}
	out := make(map[string]float64, len(s.probs))
	for h, p := range s.probs {
		out[h] = p / total
	}
	return State{probs: out}, nil
}

// Entropy returns the Shannon entropy in bits over nonzero entries. The state
// is expected to be normalised.
func Entropy(s State) float64 {
	var h float64
	for _, k := range s.Hypotheses() {
		p := s.probs[k]
		if p > 0 {
			h -= p * math.Log2(p)
		}
	}
	if h < 0 {
		return 0
	}
	return h
}

// MostLikely returns the hypothesis with the greatest mass. Ties go to the
// lexicographically smallest label.
func MostLikely(s State) (string, float64, error) {
	if len(s.probs) == 0 {
		return "", 0, ErrEmptyState
	}
	best, bestP := "", math.Inf(-1)
	for _, h := range s.Hypotheses() {
		if p := s.probs[h]; p > bestP {
			best, bestP = h, p
		}
	}
	return best, bestP, nil
}
