package f0

import (
	"context"
	"fmt"
	"math"

	"github.com/Player124413/PolGen-RVC/internal/onnx"
)

// Crepe graph geometry: 1024-sample windows scored over 360 pitch bins
// spanning 20-cent steps from C1.
const (
	crepeWindow     = 1024
	crepeBins       = 360
	crepeCentsBase  = 1997.3794084376191
	crepeCentsStep  = 20.0
	crepeConfidence = 0.05
)

// extractCrepe frames the audio at the caller's hop, scores each frame with
// the crepe graph and decodes the salience map to Hz on the 10 ms grid.
func (e *Engine) extractCrepe(ctx context.Context, samples []float32, hop, n int) ([]float32, error) {
	r, err := e.runner("crepe", e.paths.Crepe)
	if err != nil {
		return nil, err
	}

	frames := buildCrepeFrames(samples, hop)
	if len(frames) == 0 {
		return make([]float32, n), nil
	}

	rows := len(frames) / crepeWindow

	input, err := onnx.NewTensor(frames, []int64{int64(rows), crepeWindow})
	if err != nil {
		return nil, fmt.Errorf("f0: crepe input: %w", err)
	}

	outputs, err := r.Run(ctx, map[string]*onnx.Tensor{"frames": input})
	if err != nil {
		return nil, fmt.Errorf("f0: crepe: %w", err)
	}

	out, ok := outputs["salience"]
	if !ok {
		return nil, fmt.Errorf("f0: crepe graph produced no salience output")
	}

	salience, err := out.Float32()
	if err != nil {
		return nil, fmt.Errorf("f0: crepe output: %w", err)
	}

	if len(salience) != rows*crepeBins {
		return nil, fmt.Errorf("f0: crepe salience size %d does not match %d frames", len(salience), rows)
	}

	curve := make([]float32, rows)
	for i := range rows {
		curve[i] = decodeSalienceRow(salience[i*crepeBins : (i+1)*crepeBins])
	}

	return fitLength(resampleGrid(curve, hop, n), n), nil
}

// buildCrepeFrames slices normalized 1024-sample windows centered on each
// hop position. Each window is zero-mean, unit-std, as the network expects.
func buildCrepeFrames(samples []float32, hop int) []float32 {
	if len(samples) == 0 || hop <= 0 {
		return nil
	}

	rows := len(samples) / hop
	if rows == 0 {
		rows = 1
	}

	out := make([]float32, rows*crepeWindow)

	for f := range rows {
		center := f * hop
		start := center - crepeWindow/2
		frame := out[f*crepeWindow : (f+1)*crepeWindow]

		for i := range frame {
			pos := start + i
			if pos >= 0 && pos < len(samples) {
				frame[i] = samples[pos]
			}
		}

		normalizeFrame(frame)
	}

	return out
}

func normalizeFrame(frame []float32) {
	var mean float64
	for _, v := range frame {
		mean += float64(v)
	}

	mean /= float64(len(frame))

	var variance float64
	for _, v := range frame {
		d := float64(v) - mean
		variance += d * d
	}

	std := math.Sqrt(variance / float64(len(frame)))
	if std < 1e-8 {
		std = 1e-8
	}

	inv := float32(1 / std)
	for i := range frame {
		frame[i] = (frame[i] - float32(mean)) * inv
	}
}

// decodeSalienceRow turns one salience row into Hz via a local weighted
// average of cents around the peak bin. Peaks below the confidence floor
// decode to unvoiced.
func decodeSalienceRow(row []float32) float32 {
	peak := 0
	for i, v := range row {
		if v > row[peak] {
			peak = i
		}
	}

	if row[peak] < crepeConfidence {
		return 0
	}

	lo := max(peak-4, 0)
	hi := min(peak+5, len(row))

	var weighted, total float64
	for i := lo; i < hi; i++ {
		cents := crepeCentsBase + crepeCentsStep*float64(i)
		weighted += cents * float64(row[i])
		total += float64(row[i])
	}

	if total == 0 {
		return 0
	}

	return float32(10 * math.Pow(2, weighted/total/1200))
}
