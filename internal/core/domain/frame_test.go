package domain

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQuantizeRoundTripBound(t *testing.T) {
	// |dequantize(quantize(s)) - s| <= 1/32767 for all s in [-1, 1]
	bound := 1.0 / 32767
	for s := -1.0; s <= 1.0; s += 0.0001 {
		got := Dequantize(Quantize(s))
		if math.Abs(got-s) > bound {
			t.Fatalf("round trip error %v exceeds bound for s=%v", math.Abs(got-s), s)
		}
	}
}

func TestQuantizeClamps(t *testing.T) {
	assert.Equal(t, int16(32767), Quantize(1.5))
	assert.Equal(t, int16(-32767), Quantize(-1.5))
	assert.Equal(t, int16(0), Quantize(0))
}

func TestDequantizeKnownValues(t *testing.T) {
	assert.Equal(t, 0.0, Dequantize(0))
	assert.InDelta(t, 0.5, Dequantize(16383), 0.0001)
	assert.InDelta(t, -0.5, Dequantize(-16384), 0.0001)
}

func TestQuantizeBlock(t *testing.T) {
	src := []float32{0, 0.5, -0.5, 1, -1}
	dst := make([]int16, len(src))
	got := QuantizeBlock(dst, src)

	assert.Equal(t, int16(0), got[0])
	assert.Equal(t, int16(16384), got[1]) // round(0.5*32767)
	assert.Equal(t, int16(-16384), got[2])
	assert.Equal(t, int16(32767), got[3])
	assert.Equal(t, int16(-32767), got[4])
}

func TestDequantizeBlock(t *testing.T) {
	src := []int16{0, 16383, -16384}
	dst := make([]float32, len(src))
	got := DequantizeBlock(dst, src)

	assert.InDelta(t, 0, got[0], 0.0001)
	assert.InDelta(t, 0.5, got[1], 0.0001)
	assert.InDelta(t, -0.5, got[2], 0.0001)
}
