package synth

import (
	"fmt"
	"math"

	"github.com/Player124413/PolGen-RVC/internal/runtime/ops"
	"github.com/Player124413/PolGen-RVC/internal/runtime/tensor"
)

// priorEncoder maps content embeddings (plus coarse pitch when the voice is
// pitched) to the mean and log-std of the latent prior.
type priorEncoder struct {
	embPhone *linear
	embPitch *embedding // nil when the voice has no pitch conditioning

	attn  []*attentionLayer
	norm1 []*layerNormChannels
	ffn   []*ffnLayer
	norm2 []*layerNormChannels

	proj   *conv1d
	hidden int
	inter  int
}

type attentionLayer struct {
	convQ *conv1d
	convK *conv1d
	convV *conv1d
	convO *conv1d
	heads int
}

type ffnLayer struct {
	conv1 *conv1d
	conv2 *conv1d
}

func loadPriorEncoder(vb *VarBuilder, cfg *Config) (*priorEncoder, error) {
	embPhone, err := loadLinear(vb, "emb_phone")
	if err != nil {
		return nil, err
	}

	var embPitch *embedding
	if cfg.HasPitch {
		embPitch, err = loadEmbedding(vb, "emb_pitch")
		if err != nil {
			return nil, err
		}
	}

	enc := vb.Path("encoder")
	pad := int64(cfg.KernelSize / 2)

	p := &priorEncoder{
		embPhone: embPhone,
		embPitch: embPitch,
		hidden:   cfg.HiddenChannels,
		inter:    cfg.InterChannels,
	}

	for i := range cfg.Layers {
		idx := fmt.Sprintf("%d", i)

		attn := &attentionLayer{heads: cfg.Heads}

		for name, dst := range map[string]**conv1d{
			"conv_q": &attn.convQ,
			"conv_k": &attn.convK,
			"conv_v": &attn.convV,
			"conv_o": &attn.convO,
		} {
			c, err := loadConv1d(enc.Path("attn_layers", idx), name, 1, 0, 1)
			if err != nil {
				return nil, err
			}

			*dst = c
		}

		norm1, err := loadLayerNormChannels(enc.Path("norm_layers_1"), idx)
		if err != nil {
			return nil, err
		}

		conv1, err := loadConv1d(enc.Path("ffn_layers", idx), "conv_1", 1, pad, 1)
		if err != nil {
			return nil, err
		}

		conv2, err := loadConv1d(enc.Path("ffn_layers", idx), "conv_2", 1, pad, 1)
		if err != nil {
			return nil, err
		}

		norm2, err := loadLayerNormChannels(enc.Path("norm_layers_2"), idx)
		if err != nil {
			return nil, err
		}

		p.attn = append(p.attn, attn)
		p.norm1 = append(p.norm1, norm1)
		p.ffn = append(p.ffn, &ffnLayer{conv1: conv1, conv2: conv2})
		p.norm2 = append(p.norm2, norm2)
	}

	proj, err := loadConv1d(vb, "proj", 1, 0, 1)
	if err != nil {
		return nil, err
	}

	p.proj = proj

	return p, nil
}

// encode returns the prior mean and log-std, each [1, inter, T]. phone is
// [1, T, embedDim]; coarse carries one mel bin per frame and is ignored for
// unpitched voices.
func (p *priorEncoder) encode(phone *tensor.Tensor, coarse []int64) (m, logs *tensor.Tensor, err error) {
	shape := phone.Shape()
	if len(shape) != 3 || shape[0] != 1 {
		return nil, nil, fmt.Errorf("synth: phone must have shape [1, T, D], got %v", shape)
	}

	frames := int(shape[1])

	x, err := p.embPhone.forward(phone)
	if err != nil {
		return nil, nil, err
	}

	if p.embPitch != nil {
		if len(coarse) != frames {
			return nil, nil, fmt.Errorf("synth: %d coarse pitch frames for %d content frames", len(coarse), frames)
		}

		pitchEmb, err := p.embPitch.lookup(coarse)
		if err != nil {
			return nil, nil, err
		}

		pitchEmb, err = pitchEmb.Reshape([]int64{1, int64(frames), int64(p.hidden)})
		if err != nil {
			return nil, nil, err
		}

		if err := addInPlace(x, pitchEmb); err != nil {
			return nil, nil, err
		}
	}

	scaleInPlace(x, float32(math.Sqrt(float64(p.hidden))))

	// Attention stack works in [1, C, T].
	x, err = x.Transpose(1, 2)
	if err != nil {
		return nil, nil, err
	}

	for i := range p.attn {
		y, err := p.attn[i].forward(x)
		if err != nil {
			return nil, nil, err
		}

		if err := addInPlace(y, x); err != nil {
			return nil, nil, err
		}

		x, err = p.norm1[i].forward(y)
		if err != nil {
			return nil, nil, err
		}

		y, err = p.ffn[i].forward(x)
		if err != nil {
			return nil, nil, err
		}

		if err := addInPlace(y, x); err != nil {
			return nil, nil, err
		}

		x, err = p.norm2[i].forward(y)
		if err != nil {
			return nil, nil, err
		}
	}

	stats, err := p.proj.forward(x)
	if err != nil {
		return nil, nil, err
	}

	half := int64(p.inter)

	m, err = stats.Narrow(1, 0, half)
	if err != nil {
		return nil, nil, err
	}

	logs, err = stats.Narrow(1, half, half)
	if err != nil {
		return nil, nil, err
	}

	return m, logs, nil
}

// forward computes multi-head scaled dot-product self-attention over
// [1, C, T] input.
func (a *attentionLayer) forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	q, err := a.convQ.forward(x)
	if err != nil {
		return nil, err
	}

	k, err := a.convK.forward(x)
	if err != nil {
		return nil, err
	}

	v, err := a.convV.forward(x)
	if err != nil {
		return nil, err
	}

	channels := int(x.Dim(1))
	frames := x.Dim(2)
	headDim := int64(channels / a.heads)
	scale := float32(1 / math.Sqrt(float64(headDim)))

	// Per-head views are [T, d] slices of the transposed [T, C] activations.
	qt, err := toFrameMajor(q)
	if err != nil {
		return nil, err
	}

	kt, err := toFrameMajor(k)
	if err != nil {
		return nil, err
	}

	vt, err := toFrameMajor(v)
	if err != nil {
		return nil, err
	}

	heads := make([]*tensor.Tensor, a.heads)

	for h := range a.heads {
		start := int64(h) * headDim

		qh, err := qt.Narrow(1, start, headDim)
		if err != nil {
			return nil, err
		}

		kh, err := kt.Narrow(1, start, headDim)
		if err != nil {
			return nil, err
		}

		vh, err := vt.Narrow(1, start, headDim)
		if err != nil {
			return nil, err
		}

		khT, err := kh.Transpose(0, 1)
		if err != nil {
			return nil, err
		}

		scores, err := tensor.MatMul(qh, khT)
		if err != nil {
			return nil, err
		}

		scaleInPlace(scores, scale)

		weights, err := tensor.Softmax(scores, -1)
		if err != nil {
			return nil, err
		}

		heads[h], err = tensor.MatMul(weights, vh)
		if err != nil {
			return nil, err
		}
	}

	merged, err := tensor.Concat(heads, 1)
	if err != nil {
		return nil, err
	}

	out, err := fromFrameMajor(merged, frames)
	if err != nil {
		return nil, err
	}

	return a.convO.forward(out)
}

func (f *ffnLayer) forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	y, err := f.conv1.forward(x)
	if err != nil {
		return nil, err
	}

	ops.ReLUInPlace(y)

	return f.conv2.forward(y)
}

// toFrameMajor flattens [1, C, T] into [T, C].
func toFrameMajor(x *tensor.Tensor) (*tensor.Tensor, error) {
	xt, err := x.Transpose(1, 2)
	if err != nil {
		return nil, err
	}

	return xt.Reshape([]int64{x.Dim(2), x.Dim(1)})
}

// fromFrameMajor restores [T, C] to [1, C, T].
func fromFrameMajor(x *tensor.Tensor, frames int64) (*tensor.Tensor, error) {
	r, err := x.Reshape([]int64{1, frames, x.Dim(1)})
	if err != nil {
		return nil, err
	}

	return r.Transpose(1, 2)
}
