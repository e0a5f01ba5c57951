// Package audio handles WAV I/O, resampling and the small amount of DSP the
// conversion pipeline needs.
package audio

import "time"

// Buffer is a mono float32 waveform at a known sample rate. Buffers are
// copied, not aliased, across component boundaries.
type Buffer struct {
	SampleRate int
	Samples    []float32
}

// NewBuffer copies samples into a fresh buffer.
func NewBuffer(samples []float32, sampleRate int) *Buffer {
	return &Buffer{
		SampleRate: sampleRate,
		Samples:    append([]float32(nil), samples...),
	}
}

// Clone returns a deep copy.
func (b *Buffer) Clone() *Buffer {
	if b == nil {
		return nil
	}

	return NewBuffer(b.Samples, b.SampleRate)
}

// Duration returns the buffer length as wall time.
func (b *Buffer) Duration() time.Duration {
	if b == nil || b.SampleRate <= 0 {
		return 0
	}

	return time.Duration(float64(len(b.Samples)) / float64(b.SampleRate) * float64(time.Second))
}
