package belief

import "fmt"

// DefaultEpsilon is the likelihood assumed for hypotheses the evidence does not mention
const DefaultEpsilon = 0.001

// Updater applies Bayes' rule. Hypotheses missing from a likelihood map get
// Epsilon rather than zero so they are weakened, not eliminated; pass an
// explicit 0 to rule a hypothesis out.
type Updater struct {
	Epsilon float64
}

// NewUpdater creates an updater with the given floor; a negative value selects DefaultEpsilon
func NewUpdater(epsilon float64) *Updater {
	if epsilon < 0 {
		epsilon = DefaultEpsilon
	}
	return &Updater{Epsilon: epsilon}
}

// Update returns the normalised posterior of prior given likelihoods
func (u *Updater) Update(prior State, likelihoods map[string]float64) (State, error) {
	for h, l := range likelihoods {
		if err := checkMass(h, l); err != nil {
			return State{}, fmt.Errorf("likelihood: %w", err)
		}
	}
	out := make(map[string]float64, len(prior.probs))
	for h, p := range prior.probs {
		l, ok := likelihoods[h]
		if !ok {
			l = u.Epsilon
		}
		out[h] = p * l
	}
	return Normalize(State{probs: out})
}

// UpdateSequence folds a series of observations into prior, feeding each
// posterior into the next update
func (u *Updater) UpdateSequence(prior State, observations []map[string]float64) (State, error) {
	current := prior
	for i, obs := range observations {
		next, err := u.Update(current, obs)
		if err != nil {
			return State{}, fmt.Errorf("observation %d: %w", i, err)
		}
		current = next
	}
	if len(observations) == 0 {
		return Normalize(current)
	}
	return current, nil
}
