// Package temporal projects heterogeneous time encodings onto one
// years-before-present scale and compares them under Gaussian uncertainty.
package temporal

import (
	"errors"
	"fmt"
	"math"

	"github.com/khaaliswooden-max/qal/internal/model"
)

// PresentYearCE anchors the BP scale: 0 BP is 1950 CE
const PresentYearCE = 1950

// DefaultPrecedenceThreshold is the point-estimate ordering threshold
const DefaultPrecedenceThreshold = 0.5

// ErrUnknownUnit is returned for any unit tag outside the supported set
var ErrUnknownUnit = errors.New("unknown time unit")

// Normalize maps a value onto canonical years before present, larger meaning
// further in the past.
func Normalize(v model.TemporalValue) (float64, error) {
	switch v.Unit {
	case model.UnitBP:
		return v.Magnitude, nil
	case model.UnitBCE:
		return v.Magnitude + PresentYearCE, nil
	case model.UnitCE:
		return PresentYearCE - v.Magnitude, nil
	case model.UnitMYA:
		return v.Magnitude * 1_000_000, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownUnit, v.Unit)
	}
}

// Sigma returns the standard deviation of v in canonical years
func Sigma(v model.TemporalValue) (float64, error) {
	scale, err := unitScale(v.Unit)
	if err != nil {
		return 0, err
	}
	return v.Uncertainty * scale, nil
}

func unitScale(u model.Unit) (float64, error) {
	switch u {
	case model.UnitBP, model.UnitBCE, model.UnitCE:
		return 1, nil
	case model.UnitMYA:
		return 1_000_000, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownUnit, u)
	}
}

// Canonical is a normalised value: mean and standard deviation in years BP
type Canonical struct {
	Mean  float64
	Sigma float64
}

// ToCanonical normalises both the mean and the uncertainty of v
func ToCanonical(v model.TemporalValue) (Canonical, error) {
	if err := v.Validate(); err != nil {
		return Canonical{}, err
	}
	mean, err := Normalize(v)
	if err != nil {
		return Canonical{}, err
	}
	sigma, err := Sigma(v)
	if err != nil {
		return Canonical{}, err
	}
	return Canonical{Mean: mean, Sigma: sigma}, nil
}

// ProbabilityPrecedes returns P(a is older than b), treating each true time as
// an independent Gaussian. With no uncertainty on either side the answer is
// exactly 1 or 0.
func ProbabilityPrecedes(a, b model.TemporalValue) (float64, error) {
	ca, err := ToCanonical(a)
	if err != nil {
		return 0, err
	}
	cb, err := ToCanonical(b)
	if err != nil {
		return 0, err
	}
	return precedes(ca, cb), nil
}

func precedes(a, b Canonical) float64 {
	variance := a.Sigma*a.Sigma + b.Sigma*b.Sigma
	if variance == 0 {
		if a.Mean > b.Mean {
			return 1.0
		}
		return 0.0
	}
	z := (a.Mean - b.Mean) / math.Sqrt(variance)
	return standardNormalCDF(z)
}

// standardNormalCDF is Φ(z) expressed through erfc for accuracy in the tails
func standardNormalCDF(z float64) float64 {
	return 0.5 * math.Erfc(-z/math.Sqrt2)
}

// Ordering is the verdict of a causal-order check between a cause and an effect
type Ordering struct {
	Probability float64 // P(cause older than effect)
	Exact       bool    // Both values carried zero uncertainty
	Consistent  bool
}

// CheckOrder decides whether cause may precede effect. Exact values pass when
// the cause does not postdate the effect, so simultaneous exact events are
// allowed; otherwise P(cause older) must reach threshold.
func CheckOrder(cause, effect model.TemporalValue, threshold float64) (Ordering, error) {
	cc, err := ToCanonical(cause)
	if err != nil {
		return Ordering{}, err
	}
	ce, err := ToCanonical(effect)
	if err != nil {
		return Ordering{}, err
	}
	p := precedes(cc, ce)
	if cc.Sigma == 0 && ce.Sigma == 0 {
		return Ordering{Probability: p, Exact: true, Consistent: cc.Mean >= ce.Mean}, nil
	}
	return Ordering{Probability: p, Consistent: p >= threshold}, nil
}
