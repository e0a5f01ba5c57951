package f0

import "math"

// mergeHybrid combines two estimator curves frame by frame. Both inputs must
// have equal length. The result is deterministic for fixed inputs.
func mergeHybrid(a, b []float32) []float32 {
	out := make([]float32, len(a))

	for i := range out {
		va, vb := a[i], b[i]

		switch {
		case va > 0 && vb > 0:
			out[i] = float32(math.Sqrt(float64(va) * float64(vb)))
		case va > 0:
			out[i] = va
		case vb > 0:
			out[i] = vb
		}
	}

	return out
}
