package audio

import (
	"errors"
	"fmt"
	"math"

	resampling "github.com/tphakala/go-audio-resampling"
)

// resampleTailPad is appended before processing so the resampler's internal
// latency does not swallow the final samples. The output is trimmed back to
// the exact rate-scaled length.
const resampleTailPad = 2048

// Resample converts a buffer to the target sample rate, preserving duration
// to within one sample.
func Resample(buf *Buffer, outRate int) (*Buffer, error) {
	if buf == nil || buf.SampleRate <= 0 {
		return nil, errors.New("audio: resample requires a buffer with a positive sample rate")
	}

	if outRate <= 0 {
		return nil, fmt.Errorf("audio: invalid target sample rate %d", outRate)
	}

	if outRate == buf.SampleRate {
		return buf.Clone(), nil
	}

	rs, err := resampling.New(&resampling.Config{
		InputRate:  float64(buf.SampleRate),
		OutputRate: float64(outRate),
		Channels:   1,
		Quality:    resampling.QualitySpec{Preset: resampling.QualityHigh},
	})
	if err != nil {
		return nil, fmt.Errorf("audio: create resampler: %w", err)
	}

	input := make([]float64, len(buf.Samples)+resampleTailPad)
	for i, v := range buf.Samples {
		input[i] = float64(v)
	}

	output, err := rs.Process(input)
	if err != nil {
		return nil, fmt.Errorf("audio: resample %d -> %d: %w", buf.SampleRate, outRate, err)
	}

	wantLen := int(math.Round(float64(len(buf.Samples)) * float64(outRate) / float64(buf.SampleRate)))
	if wantLen > len(output) {
		wantLen = len(output)
	}

	samples := make([]float32, wantLen)
	for i := range samples {
		samples[i] = float32(output[i])
	}

	return &Buffer{SampleRate: outRate, Samples: samples}, nil
}
