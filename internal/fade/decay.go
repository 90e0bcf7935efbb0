package fade

import (
	"fmt"
	"math"
	"strings"
	"time"
)

const (
	// DefaultDecayRate is the number of decay points accrued per elapsed unit.
	DefaultDecayRate = 5

	// MaxDecay is the level of a fully decayed entry.
	MaxDecay = 100

	// DefaultRiskThreshold is the decay level at which an entry counts as at risk.
	DefaultRiskThreshold = 75
)

// DecayTimeUnit is the unit in which elapsed time is counted before applying the decay rate.
type DecayTimeUnit string

const (
	UnitMinutes DecayTimeUnit = "minutes"
	UnitHours   DecayTimeUnit = "hours"
	UnitDays    DecayTimeUnit = "days"
)

// Minutes returns the number of minutes in one unit.
func (u DecayTimeUnit) Minutes() int {
	switch u {
	case UnitMinutes:
		return 1
	case UnitHours:
		return 60
	default:
		return 1440
	}
}

func (u DecayTimeUnit) String() string { return string(u) }

// ParseDecayTimeUnit parses "minutes", "hours" or "days" (case-insensitive).
func ParseDecayTimeUnit(s string) (DecayTimeUnit, error) {
	switch u := DecayTimeUnit(strings.ToLower(strings.TrimSpace(s))); u {
	case UnitMinutes, UnitHours, UnitDays:
		return u, nil
	default:
		return "", fmt.Errorf("%w: unknown decay time unit %q", ErrValidationFailed, s)
	}
}

// Decay computes the decay level of something aging since `since`, as observed at `now`.
// Elapsed time is counted in whole minutes; a negative elapsed time yields 0.
func Decay(since time.Time, unit DecayTimeUnit, now time.Time, rate int) int {
	minutes := int64(now.Sub(since) / time.Minute)
	if minutes <= 0 {
		return 0
	}
	units := float64(minutes) / float64(unit.Minutes())
	level := math.Floor(math.Min(MaxDecay, units*float64(rate)))
	if level < 0 {
		return 0
	}
	return int(level)
}

// DecayState classifies a decay level.
type DecayState int

const (
	Fresh DecayState = iota
	AtRisk
	Decayed
)

func (s DecayState) String() string {
	switch s {
	case AtRisk:
		return "at-risk"
	case Decayed:
		return "decayed"
	default:
		return "fresh"
	}
}

// DecayStateOf classifies level against the at-risk threshold.
func DecayStateOf(level, riskThreshold int) DecayState {
	switch {
	case level >= MaxDecay:
		return Decayed
	case level >= riskThreshold:
		return AtRisk
	default:
		return Fresh
	}
}
