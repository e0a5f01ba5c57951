// Package f0 estimates the per-frame fundamental frequency of raw audio.
//
// All estimators consume 16 kHz mono audio and produce one F0 value per 10 ms
// frame. A frame value of 0 means unvoiced. Values outside the caller's
// [min, max] range are zeroed rather than clipped, so an octave error never
// turns into a false pitch.
package f0

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// Analysis grid shared with the content encoder.
const (
	SampleRate = 16000
	Hop        = 160 // 10 ms at 16 kHz
)

// ErrUnavailable is returned when the weights for the selected method cannot
// be loaded. Callers must not fall back to another method.
var ErrUnavailable = errors.New("f0: pitch model unavailable")

// Method selects the pitch estimation algorithm.
type Method string

const (
	MethodRMVPEPlus   Method = "rmvpe+"
	MethodFCPE        Method = "fcpe"
	MethodRMVPE       Method = "rmvpe"
	MethodMangioCrepe Method = "mangio-crepe"
	MethodCrepe       Method = "crepe"
)

// ParseMethod normalizes a method name.
func ParseMethod(s string) (Method, error) {
	switch Method(strings.ToLower(strings.TrimSpace(s))) {
	case MethodRMVPEPlus:
		return MethodRMVPEPlus, nil
	case MethodFCPE:
		return MethodFCPE, nil
	case MethodRMVPE:
		return MethodRMVPE, nil
	case MethodMangioCrepe:
		return MethodMangioCrepe, nil
	case MethodCrepe:
		return MethodCrepe, nil
	default:
		return "", fmt.Errorf("f0: unknown pitch method %q", s)
	}
}

// PitchSequence holds one F0 value (Hz) per analysis frame. F0 == 0 marks an
// unvoiced frame.
type PitchSequence struct {
	F0 []float32
}

func NewPitchSequence(f0 []float32) *PitchSequence {
	return &PitchSequence{F0: append([]float32(nil), f0...)}
}

func (p *PitchSequence) Len() int {
	if p == nil {
		return 0
	}

	return len(p.F0)
}

// Voiced reports whether frame i carries pitch.
func (p *PitchSequence) Voiced(i int) bool {
	return i >= 0 && i < p.Len() && p.F0[i] > 0
}

// Clone returns a deep copy.
func (p *PitchSequence) Clone() *PitchSequence {
	if p == nil {
		return nil
	}

	return NewPitchSequence(p.F0)
}

// Truncate keeps the first n frames.
func (p *PitchSequence) Truncate(n int) {
	if p != nil && n >= 0 && n < len(p.F0) {
		p.F0 = p.F0[:n]
	}
}

// FrameCount is the number of analysis frames for n samples at 16 kHz.
func FrameCount(n int) int {
	if n <= 0 {
		return 0
	}

	return n / Hop
}

// Coarse quantization range for the synthesizer's pitch embedding.
const (
	coarseBins  = 255
	coarseMinHz = 50.0
	coarseMaxHz = 1100.0
)

// Coarse maps F0 values onto 1..255 mel-spaced bins; unvoiced frames map to
// bin 1. This matches the embedding table the synthesizer was trained with.
func Coarse(f0 []float32) []int64 {
	melMin := hzToMel(coarseMinHz)
	melMax := hzToMel(coarseMaxHz)

	out := make([]int64, len(f0))
	for i, hz := range f0 {
		if hz <= 0 {
			out[i] = 1
			continue
		}

		mel := hzToMel(float64(hz))
		scaled := (mel-melMin)*(coarseBins-1)/(melMax-melMin) + 1

		bin := int64(math.Round(scaled))
		if bin < 1 {
			bin = 1
		}

		if bin > coarseBins {
			bin = coarseBins
		}

		out[i] = bin
	}

	return out
}

func hzToMel(hz float64) float64 {
	return 1127 * math.Log(1+hz/700)
}
