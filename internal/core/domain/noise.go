package domain

import (
	"fmt"
)

// NoiseCancellationLevel selects the DSP chain parameters for one
// broadcast session. It is fixed at start and not renegotiable
// mid-broadcast.
type NoiseCancellationLevel string

const (
	NoiseOff    NoiseCancellationLevel = "off"
	NoiseLow    NoiseCancellationLevel = "low"
	NoiseMedium NoiseCancellationLevel = "medium"
	NoiseHigh   NoiseCancellationLevel = "high"
)

func ParseNoiseCancellationLevel(s string) (NoiseCancellationLevel, error) {
	switch NoiseCancellationLevel(s) {
	case NoiseOff, NoiseLow, NoiseMedium, NoiseHigh:
		return NoiseCancellationLevel(s), nil
	}
	return "", fmt.Errorf("unknown noise cancellation level: %q", s)
}

// GateThreshold is the noise gate cutoff in normalized [-1, 1] float
// space. Samples below it in absolute value are zeroed.
func (l NoiseCancellationLevel) GateThreshold() float64 {
	switch l {
	case NoiseLow:
		return 0.01
	case NoiseMedium:
		return 0.02
	case NoiseHigh:
		return 0.03
	default:
		return 0
	}
}

// Constraint is a boolean device constraint, optionally marked as an
// "ideal" (best effort) request rather than a hard requirement.
type Constraint struct {
	Enabled bool
	Ideal   bool
}

// CaptureConstraints describe the microphone acquisition request
// derived from a noise cancellation level.
type CaptureConstraints struct {
	SampleRate       int
	Channels         int
	EchoCancellation Constraint
	NoiseSuppression Constraint
	AutoGainControl  Constraint
	SampleSizeBits   int // 0 when unspecified
	LowLatency       bool
}

// Constraints builds the capture request for this level. All levels
// fix 16 kHz mono; the processing booleans vary.
func (l NoiseCancellationLevel) Constraints() CaptureConstraints {
	c := CaptureConstraints{
		SampleRate: SampleRate,
		Channels:   Channels,
	}
	switch l {
	case NoiseHigh:
		c.EchoCancellation = Constraint{Enabled: true, Ideal: true}
		c.NoiseSuppression = Constraint{Enabled: true, Ideal: true}
		c.AutoGainControl = Constraint{Enabled: true, Ideal: true}
		c.SampleSizeBits = 16
		c.LowLatency = true
	case NoiseMedium:
		c.EchoCancellation = Constraint{Enabled: true}
		c.NoiseSuppression = Constraint{Enabled: true}
		c.AutoGainControl = Constraint{Enabled: true}
	case NoiseLow:
		c.EchoCancellation = Constraint{Enabled: true}
		c.AutoGainControl = Constraint{Enabled: true}
	case NoiseOff:
		// all processing disabled
	}
	return c
}
