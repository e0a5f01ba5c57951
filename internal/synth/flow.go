package synth

import (
	"fmt"

	"github.com/Player124413/PolGen-RVC/internal/runtime/ops"
	"github.com/Player124413/PolGen-RVC/internal/runtime/tensor"
)

// flowStep is one invertible transform over [1, C, T] latents. inverse true
// undoes the forward direction.
type flowStep interface {
	apply(x, g *tensor.Tensor, inverse bool) (*tensor.Tensor, error)
}

// flow is an ordered list of invertible steps. Inference runs the list
// backwards with inverse set, mapping prior samples into the posterior
// latent space the vocoder was trained on.
type flow struct {
	steps []flowStep
}

const flowCouplings = 4

func loadFlow(vb *VarBuilder, cfg *Config) (*flow, error) {
	f := &flow{}

	// Couplings sit at even positions, flips at odd ones.
	for i := 0; i < flowCouplings*2; i += 2 {
		c, err := loadCoupling(vb.Path("flows", fmt.Sprintf("%d", i)), cfg)
		if err != nil {
			return nil, err
		}

		f.steps = append(f.steps, c, &flip{})
	}

	return f, nil
}

func (f *flow) forward(x, g *tensor.Tensor) (*tensor.Tensor, error) {
	var err error

	for _, step := range f.steps {
		x, err = step.apply(x, g, false)
		if err != nil {
			return nil, err
		}
	}

	return x, nil
}

func (f *flow) inverse(x, g *tensor.Tensor) (*tensor.Tensor, error) {
	var err error

	for i := len(f.steps) - 1; i >= 0; i-- {
		x, err = f.steps[i].apply(x, g, true)
		if err != nil {
			return nil, err
		}
	}

	return x, nil
}

// flip reverses the channel order, so successive couplings condition on
// alternating halves.
type flip struct{}

func (flip) apply(x, _ *tensor.Tensor, _ bool) (*tensor.Tensor, error) {
	shape := x.Shape()
	if len(shape) != 3 {
		return nil, fmt.Errorf("synth: flip expects rank 3, got %v", shape)
	}

	channels := int(shape[1])
	frames := int(shape[2])
	src := x.RawData()

	out := make([]float32, len(src))
	for c := range channels {
		copy(out[c*frames:(c+1)*frames], src[(channels-1-c)*frames:(channels-c)*frames])
	}

	return tensor.New(out, shape)
}

// coupling is a mean-only residual coupling layer: the first half of the
// channels passes through unchanged and parameterizes a shift of the second
// half via a gated dilated convolution core.
type coupling struct {
	pre  *conv1d
	core *wavenet
	post *conv1d
	half int64
}

func loadCoupling(vb *VarBuilder, cfg *Config) (*coupling, error) {
	pre, err := loadConv1d(vb, "pre", 1, 0, 1)
	if err != nil {
		return nil, err
	}

	core, err := loadWavenet(vb.Path("enc"), cfg.HiddenChannels)
	if err != nil {
		return nil, err
	}

	post, err := loadConv1d(vb, "post", 1, 0, 1)
	if err != nil {
		return nil, err
	}

	return &coupling{
		pre:  pre,
		core: core,
		post: post,
		half: int64(cfg.InterChannels / 2),
	}, nil
}

func (c *coupling) apply(x, g *tensor.Tensor, inverse bool) (*tensor.Tensor, error) {
	x0, err := x.Narrow(1, 0, c.half)
	if err != nil {
		return nil, err
	}

	x1, err := x.Narrow(1, c.half, c.half)
	if err != nil {
		return nil, err
	}

	h, err := c.pre.forward(x0)
	if err != nil {
		return nil, err
	}

	h, err = c.core.forward(h, g)
	if err != nil {
		return nil, err
	}

	m, err := c.post.forward(h)
	if err != nil {
		return nil, err
	}

	shifted := x1.RawData()
	shift := m.RawData()

	if len(shifted) != len(shift) {
		return nil, fmt.Errorf("synth: coupling shift size %d does not match half %d", len(shift), len(shifted))
	}

	if inverse {
		for i := range shifted {
			shifted[i] -= shift[i]
		}
	} else {
		for i := range shifted {
			shifted[i] += shift[i]
		}
	}

	return tensor.Concat([]*tensor.Tensor{x0, x1}, 1)
}

// wavenet is the gated dilated convolution core shared by the couplings:
// per layer a dilated conv into 2*hidden channels, speaker conditioning
// added, tanh-sigmoid gate, then a 1x1 residual/skip projection.
type wavenet struct {
	inLayers      []*conv1d
	resSkipLayers []*conv1d
	condLayer     *conv1d
	hidden        int64
}

const (
	wavenetLayers   = 3
	wavenetKernel   = 5
	wavenetDilation = 1
)

func loadWavenet(vb *VarBuilder, hidden int) (*wavenet, error) {
	w := &wavenet{hidden: int64(hidden)}

	pad := int64(wavenetKernel / 2)

	for i := range wavenetLayers {
		in, err := loadConv1d(vb, fmt.Sprintf("in_layers.%d", i), 1, pad, wavenetDilation)
		if err != nil {
			return nil, err
		}

		rs, err := loadConv1d(vb, fmt.Sprintf("res_skip_layers.%d", i), 1, 0, 1)
		if err != nil {
			return nil, err
		}

		w.inLayers = append(w.inLayers, in)
		w.resSkipLayers = append(w.resSkipLayers, rs)
	}

	cond, ok, err := vbMaybeConv(vb, "cond_layer")
	if err != nil {
		return nil, err
	}

	if ok {
		w.condLayer = cond
	}

	return w, nil
}

func vbMaybeConv(vb *VarBuilder, name string) (*conv1d, bool, error) {
	if !vb.Has(name + ".weight") {
		return nil, false, nil
	}

	c, err := loadConv1d(vb, name, 1, 0, 1)
	if err != nil {
		return nil, true, err
	}

	return c, true, nil
}

func (w *wavenet) forward(x, g *tensor.Tensor) (*tensor.Tensor, error) {
	frames := x.Dim(2)

	// Conditioning for all layers at once: [1, 2*hidden*layers, 1].
	var cond *tensor.Tensor

	if w.condLayer != nil && g != nil {
		var err error

		cond, err = w.condLayer.forward(g)
		if err != nil {
			return nil, err
		}
	}

	skip, err := tensor.Zeros([]int64{1, w.hidden, frames})
	if err != nil {
		return nil, err
	}

	for i, in := range w.inLayers {
		xIn, err := in.forward(x)
		if err != nil {
			return nil, err
		}

		if cond != nil {
			addBroadcastTime(xIn, cond, int64(i)*2*w.hidden)
		}

		acts, err := ops.GatedTanhSigmoid(xIn)
		if err != nil {
			return nil, err
		}

		resSkip, err := w.resSkipLayers[i].forward(acts)
		if err != nil {
			return nil, err
		}

		if i < len(w.inLayers)-1 {
			res, err := resSkip.Narrow(1, 0, w.hidden)
			if err != nil {
				return nil, err
			}

			if err := addInPlace(res, x); err != nil {
				return nil, err
			}

			x = res

			s, err := resSkip.Narrow(1, w.hidden, w.hidden)
			if err != nil {
				return nil, err
			}

			if err := addInPlace(skip, s); err != nil {
				return nil, err
			}
		} else {
			if err := addInPlace(skip, resSkip); err != nil {
				return nil, err
			}
		}
	}

	return skip, nil
}

// addBroadcastTime adds a per-channel conditioning column cond[0, offset+c, 0]
// to every time step of x[0, c, :].
func addBroadcastTime(x, cond *tensor.Tensor, offset int64) {
	channels := x.Dim(1)
	frames := int(x.Dim(2))
	xd := x.RawData()
	cd := cond.RawData()

	for c := int64(0); c < channels; c++ {
		v := cd[offset+c]
		row := xd[int(c)*frames : (int(c)+1)*frames]

		for i := range row {
			row[i] += v
		}
	}
}
