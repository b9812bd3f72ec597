package domain

import (
	"math"
)

const (
	// SampleRate is the fixed mono capture and playback rate.
	SampleRate = 16000
	// Channels is always mono.
	Channels = 1
	// FrameSize is the number of samples per processed block.
	FrameSize = 2048
	// FormatInt16 tags frames carrying quantized 16-bit samples.
	FormatInt16 = "int16"
)

// AudioFrame is one block of quantized PCM samples for a room. Frames
// carry no sequence number or timestamp; receivers play them as they
// arrive.
type AudioFrame struct {
	Room    RoomID
	Samples []int16
	// Floats holds already-float samples on the legacy compatibility
	// path, where Format is anything other than FormatInt16.
	Floats []float32
	Format string
}

// Quantize maps a normalized float sample to a signed 16-bit integer.
// Input is clamped to [-1, 1] first, so the result is always in range.
func Quantize(s float64) int16 {
	if s > 1 {
		s = 1
	} else if s < -1 {
		s = -1
	}
	return int16(math.Round(s * 32767))
}

// Dequantize maps a 16-bit sample back to float. The round trip error
// |Dequantize(Quantize(s)) - s| is bounded by 1/32767.
func Dequantize(q int16) float64 {
	return float64(q) / 32767
}

// QuantizeBlock quantizes a processed float block into dst, which must
// be at least len(src) long. Returns dst truncated to len(src).
func QuantizeBlock(dst []int16, src []float32) []int16 {
	dst = dst[:len(src)]
	for i, s := range src {
		dst[i] = Quantize(float64(s))
	}
	return dst
}

// DequantizeBlock expands int16 samples into dst, which must be at
// least len(src) long.
func DequantizeBlock(dst []float32, src []int16) []float32 {
	dst = dst[:len(src)]
	for i, q := range src {
		dst[i] = float32(Dequantize(q))
	}
	return dst
}
