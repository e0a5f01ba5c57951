package synth

import (
	"errors"
	"fmt"

	"github.com/Player124413/PolGen-RVC/internal/runtime/ops"
	"github.com/Player124413/PolGen-RVC/internal/runtime/tensor"
)

// conv1d bundles a convolution's weight with its fixed geometry.
type conv1d struct {
	weight   *tensor.Tensor // [out, in/groups, k]
	bias     *tensor.Tensor // optional [out]
	stride   int64
	padding  int64
	dilation int64
	groups   int64
}

func loadConv1d(vb *VarBuilder, name string, stride, padding, dilation int64) (*conv1d, error) {
	w, err := vb.Tensor(name + ".weight")
	if err != nil {
		return nil, err
	}

	if w.Rank() != 3 {
		return nil, fmt.Errorf("synth: conv %q weight must be rank 3, got %v", name, w.Shape())
	}

	b, _, err := vb.TensorMaybe(name + ".bias")
	if err != nil {
		return nil, err
	}

	return &conv1d{
		weight:   w,
		bias:     b,
		stride:   stride,
		padding:  padding,
		dilation: dilation,
		groups:   1,
	}, nil
}

func (c *conv1d) forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	if c == nil || c.weight == nil {
		return nil, errors.New("synth: conv is not initialized")
	}

	return ops.Conv1D(x, c.weight, c.bias, c.stride, c.padding, c.dilation, c.groups)
}

// convTranspose1d is the upsampling counterpart; weight is [in, out, k].
type convTranspose1d struct {
	weight  *tensor.Tensor
	bias    *tensor.Tensor
	stride  int64
	padding int64
}

func loadConvTranspose1d(vb *VarBuilder, name string, stride, padding int64) (*convTranspose1d, error) {
	w, err := vb.Tensor(name + ".weight")
	if err != nil {
		return nil, err
	}

	if w.Rank() != 3 {
		return nil, fmt.Errorf("synth: conv transpose %q weight must be rank 3, got %v", name, w.Shape())
	}

	b, _, err := vb.TensorMaybe(name + ".bias")
	if err != nil {
		return nil, err
	}

	return &convTranspose1d{weight: w, bias: b, stride: stride, padding: padding}, nil
}

func (c *convTranspose1d) forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	if c == nil || c.weight == nil {
		return nil, errors.New("synth: conv transpose is not initialized")
	}

	return ops.ConvTranspose1D(x, c.weight, c.bias, c.stride, c.padding, 0, 1, 1)
}

// linear is a dense layer with weight [out, in].
type linear struct {
	weight *tensor.Tensor
	bias   *tensor.Tensor
}

func loadLinear(vb *VarBuilder, name string) (*linear, error) {
	w, err := vb.Tensor(name + ".weight")
	if err != nil {
		return nil, err
	}

	if w.Rank() != 2 {
		return nil, fmt.Errorf("synth: linear %q weight must be rank 2, got %v", name, w.Shape())
	}

	b, _, err := vb.TensorMaybe(name + ".bias")
	if err != nil {
		return nil, err
	}

	return &linear{weight: w, bias: b}, nil
}

func (l *linear) forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	if l == nil || l.weight == nil {
		return nil, errors.New("synth: linear is not initialized")
	}

	return tensor.Linear(x, l.weight, l.bias)
}

// embedding is a lookup table with weight [entries, dim].
type embedding struct {
	weight *tensor.Tensor
}

func loadEmbedding(vb *VarBuilder, name string) (*embedding, error) {
	w, err := vb.Tensor(name + ".weight")
	if err != nil {
		return nil, err
	}

	if w.Rank() != 2 {
		return nil, fmt.Errorf("synth: embedding %q weight must be rank 2, got %v", name, w.Shape())
	}

	return &embedding{weight: w}, nil
}

// lookup gathers rows for the given ids into a [len(ids), dim] tensor.
func (e *embedding) lookup(ids []int64) (*tensor.Tensor, error) {
	if e == nil || e.weight == nil {
		return nil, errors.New("synth: embedding is not initialized")
	}

	entries := e.weight.Dim(0)
	dim := int(e.weight.Dim(1))
	src := e.weight.RawData()

	out := make([]float32, len(ids)*dim)
	for i, id := range ids {
		if id < 0 || id >= entries {
			return nil, fmt.Errorf("synth: embedding id %d out of range [0, %d)", id, entries)
		}

		copy(out[i*dim:(i+1)*dim], src[int(id)*dim:(int(id)+1)*dim])
	}

	return tensor.New(out, []int64{int64(len(ids)), int64(dim)})
}

// layerNormChannels applies gamma/beta layer normalization over the channel
// axis of a [1, C, T] tensor, the convention used throughout the prior
// encoder.
type layerNormChannels struct {
	gamma *tensor.Tensor
	beta  *tensor.Tensor
	eps   float32
}

func loadLayerNormChannels(vb *VarBuilder, name string) (*layerNormChannels, error) {
	gamma, err := vb.Tensor(name + ".gamma")
	if err != nil {
		return nil, err
	}

	beta, err := vb.Tensor(name + ".beta")
	if err != nil {
		return nil, err
	}

	return &layerNormChannels{gamma: gamma, beta: beta, eps: 1e-5}, nil
}

func (ln *layerNormChannels) forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	if ln == nil {
		return nil, errors.New("synth: layer norm is not initialized")
	}

	// Normalize per time step across channels: transpose to [1, T, C], use
	// the last-dim primitive, transpose back.
	xt, err := x.Transpose(1, 2)
	if err != nil {
		return nil, err
	}

	normed, err := tensor.LayerNorm(xt, ln.gamma, ln.beta, ln.eps)
	if err != nil {
		return nil, err
	}

	return normed.Transpose(1, 2)
}

// addInPlace accumulates src into dst; shapes must carry equal element
// counts.
func addInPlace(dst, src *tensor.Tensor) error {
	d := dst.RawData()
	s := src.RawData()

	if len(d) != len(s) {
		return fmt.Errorf("synth: add size mismatch %d vs %d", len(d), len(s))
	}

	for i := range d {
		d[i] += s[i]
	}

	return nil
}

// scaleInPlace multiplies every element of t by v.
func scaleInPlace(t *tensor.Tensor, v float32) {
	data := t.RawData()
	for i := range data {
		data[i] *= v
	}
}
