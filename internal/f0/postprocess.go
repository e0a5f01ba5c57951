package f0

import (
	"math"
	"sort"
)

// MedianFilter smooths voiced F0 values with a sliding median of the given
// radius. Radius < 3 or even radii leave the sequence untouched, matching the
// UI contract where the slider only takes effect at 3 and above.
func (p *PitchSequence) MedianFilter(radius int) {
	if p == nil || radius < 3 || radius%2 == 0 || len(p.F0) == 0 {
		return
	}

	half := radius / 2
	src := append([]float32(nil), p.F0...)
	window := make([]float32, 0, radius)

	for i := range p.F0 {
		window = window[:0]

		for j := i - half; j <= i+half; j++ {
			if j >= 0 && j < len(src) {
				window = append(window, src[j])
			}
		}

		sort.Slice(window, func(a, b int) bool { return window[a] < window[b] })
		p.F0[i] = window[len(window)/2]
	}
}

// Shift transposes voiced frames by the given number of semitones.
func (p *PitchSequence) Shift(semitones float64) {
	if p == nil || semitones == 0 {
		return
	}

	factor := float32(math.Pow(2, semitones/12))
	for i, hz := range p.F0 {
		if hz > 0 {
			p.F0[i] = hz * factor
		}
	}
}

// Autotune snaps voiced frames to the nearest equal-tempered semitone
// (A4 = 440 Hz).
func (p *PitchSequence) Autotune() {
	if p == nil {
		return
	}

	for i, hz := range p.F0 {
		if hz <= 0 {
			continue
		}

		note := math.Round(12 * math.Log2(float64(hz)/440))
		p.F0[i] = float32(440 * math.Pow(2, note/12))
	}
}

// ClampRange marks frames outside [minHz, maxHz] unvoiced. Out-of-range
// values are dropped, not clipped, to avoid manufacturing false pitch.
func (p *PitchSequence) ClampRange(minHz, maxHz float64) {
	if p == nil {
		return
	}

	for i, hz := range p.F0 {
		if hz <= 0 {
			continue
		}

		if float64(hz) < minHz || float64(hz) > maxHz {
			p.F0[i] = 0
		}
	}
}

// resampleGrid maps a pitch curve sampled every srcHop samples onto the
// 10 ms analysis grid with n frames. Linear interpolation between voiced
// neighbors; a segment with an unvoiced endpoint takes the nearest value so
// voicing boundaries stay sharp.
func resampleGrid(src []float32, srcHop int, n int) []float32 {
	out := make([]float32, n)
	if len(src) == 0 {
		return out
	}

	for i := range out {
		pos := float64(i*Hop) / float64(srcHop)

		lo := int(pos)
		if lo >= len(src)-1 {
			out[i] = src[len(src)-1]
			continue
		}

		a, b := src[lo], src[lo+1]
		frac := pos - float64(lo)

		if a <= 0 || b <= 0 {
			if frac < 0.5 {
				out[i] = a
			} else {
				out[i] = b
			}

			continue
		}

		out[i] = a + float32(frac)*(b-a)
	}

	return out
}

// fitLength pads (with trailing zeros) or trims a curve to exactly n frames.
func fitLength(src []float32, n int) []float32 {
	if len(src) == n {
		return src
	}

	out := make([]float32, n)
	copy(out, src)

	return out
}
