package model

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// ErrInvalidTemporalValue is returned for non-finite magnitudes or negative uncertainty
var ErrInvalidTemporalValue = errors.New("invalid temporal value")

// Unit identifies how a temporal magnitude is encoded
type Unit string

const (
	UnitBP  Unit = "BP"  // Years before present (relative past), 0 BP = 1950 CE
	UnitBCE Unit = "BCE" // Calendar years before the common era
	UnitCE  Unit = "CE"  // Calendar years of the common era
	UnitMYA Unit = "MYA" // Millions of years ago
)

// ParseUnit maps common spellings onto a Unit. Unrecognised input is returned
// as-is so that normalisation can reject it explicitly.
func ParseUnit(s string) Unit {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "BP", "YBP", "RELATIVE_PAST":
		return UnitBP
	case "BCE", "BC", "CALENDAR_BCE":
		return UnitBCE
	case "CE", "AD", "CALENDAR_CE":
		return UnitCE
	case "MYA", "MA", "MEGA_YEARS_AGO":
		return UnitMYA
	default:
		return Unit(s)
	}
}

// UnmarshalText accepts any spelling understood by ParseUnit
func (u *Unit) UnmarshalText(text []byte) error {
	*u = ParseUnit(string(text))
	return nil
}

// TemporalValue is a time measurement with a unit and a standard deviation.
// It is a value type: copies never alias, so a stored value cannot be changed
// through another reference.
type TemporalValue struct {
	Magnitude   float64 `json:"magnitude" yaml:"magnitude"`
	Unit        Unit    `json:"unit" yaml:"unit"`
	Uncertainty float64 `json:"uncertainty,omitempty" yaml:"uncertainty,omitempty"` // 1σ, in the value's own unit
}

// NewTemporalValue builds a validated TemporalValue
func NewTemporalValue(magnitude float64, unit Unit, uncertainty float64) (TemporalValue, error) {
	tv := TemporalValue{Magnitude: magnitude, Unit: unit, Uncertainty: uncertainty}
	if err := tv.Validate(); err != nil {
		return TemporalValue{}, err
	}
	return tv, nil
}

// Validate checks magnitude and uncertainty. The unit is checked by the normalizer.
func (t TemporalValue) Validate() error {
	if math.IsNaN(t.Magnitude) || math.IsInf(t.Magnitude, 0) {
		return fmt.Errorf("%w: magnitude %v", ErrInvalidTemporalValue, t.Magnitude)
	}
	if math.IsNaN(t.Uncertainty) || math.IsInf(t.Uncertainty, 0) || t.Uncertainty < 0 {
		return fmt.Errorf("%w: uncertainty %v", ErrInvalidTemporalValue, t.Uncertainty)
	}
	return nil
}

// IsExact reports whether the value carries no uncertainty
func (t TemporalValue) IsExact() bool {
	return t.Uncertainty == 0
}

func (t TemporalValue) String() string {
	if t.Uncertainty == 0 {
		return fmt.Sprintf("%g %s", t.Magnitude, t.Unit)
	}
	return fmt.Sprintf("%g±%g %s", t.Magnitude, t.Uncertainty, t.Unit)
}

// TimeRange is an optional interval attached to gaps
type TimeRange struct {
	From TemporalValue `json:"from" yaml:"from"`
	To   TemporalValue `json:"to" yaml:"to"`
}
