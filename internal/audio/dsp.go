package audio

import (
	"errors"
	"math"
)

// MixRMSEnvelope pulls the converted waveform's loudness contour toward the
// source's. rate=1 keeps the converted loudness untouched; rate=0 fully
// imposes the source envelope. Half-second RMS windows, linearly interpolated
// per sample, gain (rmsSource/rmsConverted)^(1-rate). Mutates converted.
func MixRMSEnvelope(source, converted *Buffer, rate float32) error {
	if source == nil || converted == nil {
		return errors.New("audio: rms mix requires non-nil buffers")
	}

	if rate < 0 || rate > 1 {
		return errors.New("audio: rms mix rate out of range [0, 1]")
	}

	if rate == 1 || len(converted.Samples) == 0 || len(source.Samples) == 0 {
		return nil
	}

	srcEnv := rmsEnvelope(source.Samples, source.SampleRate)
	dstEnv := rmsEnvelope(converted.Samples, converted.SampleRate)

	const eps = 1e-6

	n := len(converted.Samples)
	for i := range converted.Samples {
		pos := float64(i) / float64(n)
		rmsSrc := sampleEnvelope(srcEnv, pos)

		rmsDst := sampleEnvelope(dstEnv, pos)
		if rmsDst < eps {
			rmsDst = eps
		}

		gain := math.Pow(float64(rmsSrc)/float64(rmsDst), float64(1-rate))
		converted.Samples[i] *= float32(gain)
	}

	return nil
}

// rmsEnvelope computes RMS over half-second hops with one-second windows.
func rmsEnvelope(samples []float32, sampleRate int) []float32 {
	hop := sampleRate / 2
	if hop < 1 {
		hop = 1
	}

	window := hop * 2

	frames := (len(samples) + hop - 1) / hop
	if frames < 1 {
		frames = 1
	}

	env := make([]float32, frames)
	for f := range frames {
		start := f * hop

		end := start + window
		if end > len(samples) {
			end = len(samples)
		}

		var sum float64
		for _, v := range samples[start:end] {
			sum += float64(v) * float64(v)
		}

		if count := end - start; count > 0 {
			env[f] = float32(math.Sqrt(sum / float64(count)))
		}
	}

	return env
}

// sampleEnvelope linearly interpolates the envelope at pos in [0, 1).
func sampleEnvelope(env []float32, pos float64) float32 {
	if len(env) == 1 {
		return env[0]
	}

	x := pos * float64(len(env)-1)
	lo := int(x)

	if lo >= len(env)-1 {
		return env[len(env)-1]
	}

	frac := float32(x - float64(lo))

	return env[lo]*(1-frac) + env[lo+1]*frac
}

// Peak returns the maximum absolute sample value.
func Peak(samples []float32) float32 {
	var peak float32

	for _, v := range samples {
		if v < 0 {
			v = -v
		}

		if v > peak {
			peak = v
		}
	}

	return peak
}
