package audio

import (
	"math"

	"voicecast/internal/core/domain"
)

// blockStage is one in-place processing step over a sample block.
type blockStage interface {
	Process(block []float32)
}

// chain runs the fixed voice-band processing graph:
// high-pass 200 Hz -> low-pass 3400 Hz -> noise gate -> compressor.
type chain struct {
	stages []blockStage
}

func newChain(level domain.NoiseCancellationLevel, sampleRate float64) *chain {
	return &chain{
		stages: []blockStage{
			newHighPass(200, 1, sampleRate),
			newLowPass(3400, 1, sampleRate),
			&noiseGate{threshold: float32(level.GateThreshold())},
			newCompressor(compressorParams{
				ThresholdDB: -50,
				KneeDB:      40,
				Ratio:       12,
				Attack:      0.003,
				Release:     0.250,
			}, sampleRate),
		},
	}
}

func (c *chain) Process(block []float32) {
	for _, s := range c.stages {
		s.Process(block)
	}
}

// biquad is a direct form I second-order IIR section.
type biquad struct {
	b0, b1, b2, a1, a2 float64
	x1, x2, y1, y2     float64
}

// newHighPass builds an RBJ cookbook high-pass section.
func newHighPass(cutoff, q, sampleRate float64) *biquad {
	w0 := 2 * math.Pi * cutoff / sampleRate
	cosw0 := math.Cos(w0)
	alpha := math.Sin(w0) / (2 * q)

	a0 := 1 + alpha
	return &biquad{
		b0: (1 + cosw0) / 2 / a0,
		b1: -(1 + cosw0) / a0,
		b2: (1 + cosw0) / 2 / a0,
		a1: -2 * cosw0 / a0,
		a2: (1 - alpha) / a0,
	}
}

// newLowPass builds an RBJ cookbook low-pass section.
func newLowPass(cutoff, q, sampleRate float64) *biquad {
	w0 := 2 * math.Pi * cutoff / sampleRate
	cosw0 := math.Cos(w0)
	alpha := math.Sin(w0) / (2 * q)

	a0 := 1 + alpha
	return &biquad{
		b0: (1 - cosw0) / 2 / a0,
		b1: (1 - cosw0) / a0,
		b2: (1 - cosw0) / 2 / a0,
		a1: -2 * cosw0 / a0,
		a2: (1 - alpha) / a0,
	}
}

func (f *biquad) Process(block []float32) {
	for i, s := range block {
		x := float64(s)
		y := f.b0*x + f.b1*f.x1 + f.b2*f.x2 - f.a1*f.y1 - f.a2*f.y2
		f.x2, f.x1 = f.x1, x
		f.y2, f.y1 = f.y1, y
		block[i] = float32(y)
	}
}

// noiseGate zeroes samples whose absolute value is below the
// per-level threshold in normalized float space.
type noiseGate struct {
	threshold float32
}

func (g *noiseGate) Process(block []float32) {
	if g.threshold == 0 {
		return
	}
	for i, s := range block {
		if s < g.threshold && s > -g.threshold {
			block[i] = 0
		}
	}
}

type compressorParams struct {
	ThresholdDB float64
	KneeDB      float64
	Ratio       float64
	Attack      float64 // seconds
	Release     float64 // seconds
}

// compressor is a feed-forward dynamics compressor with a soft knee
// and an attack/release envelope follower.
type compressor struct {
	params      compressorParams
	attackCoef  float64
	releaseCoef float64
	envelopeDB  float64
}

func newCompressor(p compressorParams, sampleRate float64) *compressor {
	return &compressor{
		params:      p,
		attackCoef:  math.Exp(-1 / (p.Attack * sampleRate)),
		releaseCoef: math.Exp(-1 / (p.Release * sampleRate)),
		envelopeDB:  -120,
	}
}

func (c *compressor) Process(block []float32) {
	for i, s := range block {
		levelDB := amplitudeToDB(math.Abs(float64(s)))

		// envelope follower: fast attack, slow release
		if levelDB > c.envelopeDB {
			c.envelopeDB = c.attackCoef*c.envelopeDB + (1-c.attackCoef)*levelDB
		} else {
			c.envelopeDB = c.releaseCoef*c.envelopeDB + (1-c.releaseCoef)*levelDB
		}

		gainDB := c.gainReductionDB(c.envelopeDB)
		if gainDB < 0 {
			block[i] = s * float32(math.Pow(10, gainDB/20))
		}
	}
}

// gainReductionDB computes the soft-knee gain curve for an input
// level, in dB (always <= 0).
func (c *compressor) gainReductionDB(levelDB float64) float64 {
	p := c.params
	over := levelDB - p.ThresholdDB

	switch {
	case over <= -p.KneeDB/2:
		return 0
	case over < p.KneeDB/2:
		// quadratic interpolation inside the knee
		x := over + p.KneeDB/2
		return (1/p.Ratio - 1) * x * x / (2 * p.KneeDB)
	default:
		return over*(1/p.Ratio) - over
	}
}

func amplitudeToDB(a float64) float64 {
	if a < 1e-6 {
		return -120
	}
	return 20 * math.Log10(a)
}
