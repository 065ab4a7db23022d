package alarms

import (
	"fmt"
)

// Thresholds configures the resource hysteresis rule for one signal.
// A signal is high when the two latest samples reach High or any two of the
// three latest reach Spike, and low when the two latest are below Low.
type Thresholds struct {
	High  float64 `yaml:"high"`
	Spike float64 `yaml:"spike"`
	Low   float64 `yaml:"low"`
}

// DefaultThresholds returns 80/85/70.
func DefaultThresholds() Thresholds {
	return Thresholds{High: 80, Spike: 85, Low: 70}
}

// Validate rejects percentages outside (0,100] and a low mark above the
// high mark, which would let one sample both raise and clear an alarm.
func (t Thresholds) Validate() error {
	for name, v := range map[string]float64{"high": t.High, "spike": t.Spike, "low": t.Low} {
		if v <= 0 || v > 100 {
			return fmt.Errorf("%s threshold %.0f out of range (0,100]", name, v)
		}
	}
	if t.Low > t.High {
		return fmt.Errorf("low threshold %.0f above high threshold %.0f", t.Low, t.High)
	}
	return nil
}

// Verdict is the outcome of a hysteresis evaluation.
type Verdict int

const (
	// Hold leaves the alarm state untouched.
	Hold Verdict = iota
	High
	Low
)

func (v Verdict) String() string {
	switch v {
	case High:
		return "high"
	case Low:
		return "low"
	}
	return "hold"
}

// EvaluateHysteresis classifies values, newest first. Only the first three
// are considered; fewer than two values always hold. A NaN marks a missing
// reading: it meets no threshold, so it breaks the two-latest rules and
// never counts as a spike.
func (t Thresholds) EvaluateHysteresis(values []float64) Verdict {
	if len(values) < 2 {
		return Hold
	}
	if len(values) > 3 {
		values = values[:3]
	}

	if values[0] >= t.High && values[1] >= t.High {
		return High
	}
	spikes := 0
	for _, v := range values {
		if v >= t.Spike {
			spikes++
		}
	}
	if spikes >= 2 {
		return High
	}

	if values[0] < t.Low && values[1] < t.Low {
		return Low
	}
	return Hold
}
