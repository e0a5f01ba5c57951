// Package content extracts phonetic embeddings from 16 kHz speech with a
// HuBERT-style ONNX graph.
package content

import (
	"context"
	"fmt"

	"github.com/Player124413/PolGen-RVC/internal/onnx"
	"github.com/Player124413/PolGen-RVC/internal/runtime/tensor"
)

// EmbedDim is the width of one content frame.
const EmbedDim = 768

// Encoder wraps the content graph. It is safe for concurrent use; the
// underlying session serializes runs internally.
type Encoder struct {
	runner *onnx.Runner
}

// NewEncoder loads the content graph from path.
func NewEncoder(path string, cfg onnx.RunnerConfig) (*Encoder, error) {
	r, err := onnx.NewRunner("content", path, cfg)
	if err != nil {
		return nil, fmt.Errorf("content: %w", err)
	}

	return &Encoder{runner: r}, nil
}

// Close releases the ORT session.
func (e *Encoder) Close() {
	if e != nil && e.runner != nil {
		e.runner.Close()
	}
}

// Encode maps 16 kHz mono samples to a [1, T, 768] embedding tensor. The
// graph consumes the waveform as [1, 1, N] and is deterministic for fixed
// input.
func (e *Encoder) Encode(ctx context.Context, samples []float32) (*tensor.Tensor, error) {
	if len(samples) == 0 {
		return nil, fmt.Errorf("content: empty audio")
	}

	input, err := onnx.NewTensor(samples, []int64{1, 1, int64(len(samples))})
	if err != nil {
		return nil, fmt.Errorf("content: input: %w", err)
	}

	outputs, err := e.runner.Run(ctx, map[string]*onnx.Tensor{"source": input})
	if err != nil {
		return nil, fmt.Errorf("content: %w", err)
	}

	out, ok := outputs["embed"]
	if !ok {
		return nil, fmt.Errorf("content: graph produced no embed output")
	}

	data, err := out.Float32()
	if err != nil {
		return nil, fmt.Errorf("content: output: %w", err)
	}

	shape := out.Shape()
	if len(shape) != 3 || shape[0] != 1 || shape[2] != EmbedDim {
		return nil, fmt.Errorf("content: unexpected embed shape %v", shape)
	}

	return tensor.New(data, shape)
}

// Upsample repeats each content frame by factor along the time axis so the
// embedding grid matches the 10 ms pitch grid. factor 1 returns a clone.
func Upsample(emb *tensor.Tensor, factor int) (*tensor.Tensor, error) {
	if emb == nil {
		return nil, fmt.Errorf("content: nil embedding")
	}

	if factor < 1 {
		return nil, fmt.Errorf("content: upsample factor must be >= 1")
	}

	if factor == 1 {
		return emb.Clone(), nil
	}

	shape := emb.Shape()
	if len(shape) != 3 {
		return nil, fmt.Errorf("content: embedding must have rank 3, got %v", shape)
	}

	frames := int(shape[1])
	width := int(shape[2])
	src := emb.RawData()

	out := make([]float32, frames*factor*width)
	for f := range frames {
		row := src[f*width : (f+1)*width]
		for r := range factor {
			copy(out[(f*factor+r)*width:], row)
		}
	}

	return tensor.New(out, []int64{1, int64(frames * factor), shape[2]})
}
