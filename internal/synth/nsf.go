package synth

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/Player124413/PolGen-RVC/internal/runtime/ops"
	"github.com/Player124413/PolGen-RVC/internal/runtime/tensor"
)

const (
	sineAmp     = 0.1
	sineNoise   = 0.003
	harmonics   = 1
	leakySlope  = 0.1
	voicedFloor = 0.0
)

// sineGen synthesizes the harmonic excitation for voiced frames by
// integrating instantaneous frequency sample by sample. Unvoiced regions get
// Gaussian noise at a third of the sine amplitude.
type sineGen struct {
	sampleRate int
}

// generate renders per-sample excitation for an f0 track already upsampled
// to audio rate. Harmonics beyond the fundamental start at a random phase
// drawn from rng; the fundamental starts at zero phase.
func (s *sineGen) generate(f0 []float32, rng *rand.Rand) []float32 {
	out := make([]float32, len(f0)*harmonics)

	for h := range harmonics {
		phase := 0.0
		if h > 0 {
			phase = rng.Float64()
		}

		mult := float64(h + 1)

		for i, hz := range f0 {
			idx := i*harmonics + h

			if hz > voicedFloor {
				phase += mult * float64(hz) / float64(s.sampleRate)
				phase -= math.Floor(phase)

				sine := sineAmp * math.Sin(2*math.Pi*phase)
				out[idx] = float32(sine + sineNoise*rng.NormFloat64())
			} else {
				// Unvoiced frames add nothing to the phase accumulator, so
				// a voiced segment after a gap resumes where it left off.
				out[idx] = float32(sineAmp / 3 * rng.NormFloat64())
			}
		}
	}

	return out
}

// sourceModule merges the harmonic stack into a single excitation channel.
type sourceModule struct {
	gen    *sineGen
	merge  *linear
	frames int
}

func loadSourceModule(vb *VarBuilder, sampleRate int) (*sourceModule, error) {
	merge, err := loadLinear(vb, "l_linear")
	if err != nil {
		return nil, err
	}

	return &sourceModule{
		gen:   &sineGen{sampleRate: sampleRate},
		merge: merge,
	}, nil
}

// forward returns the excitation as [1, 1, N] for N upsampled f0 samples.
func (sm *sourceModule) forward(f0 []float32, rng *rand.Rand) (*tensor.Tensor, error) {
	sines := sm.gen.generate(f0, rng)

	stack, err := tensor.New(sines, []int64{int64(len(f0)), harmonics})
	if err != nil {
		return nil, err
	}

	merged, err := sm.merge.forward(stack)
	if err != nil {
		return nil, err
	}

	ops.TanhInPlace(merged)

	return merged.Reshape([]int64{1, 1, int64(len(f0))})
}

// resBlock is a HiFi-GAN style residual block: pairs of dilated and plain
// convolutions with leaky ReLU between, summed into the input.
type resBlock struct {
	convs1 []*conv1d
	convs2 []*conv1d
}

func loadResBlock(vb *VarBuilder, kernel int, dilations []int) (*resBlock, error) {
	rb := &resBlock{}

	for i, d := range dilations {
		pad1 := int64((kernel - 1) * d / 2)

		c1, err := loadConv1d(vb, fmt.Sprintf("convs1.%d", i), 1, pad1, int64(d))
		if err != nil {
			return nil, err
		}

		c2, err := loadConv1d(vb, fmt.Sprintf("convs2.%d", i), 1, int64(kernel/2), 1)
		if err != nil {
			return nil, err
		}

		rb.convs1 = append(rb.convs1, c1)
		rb.convs2 = append(rb.convs2, c2)
	}

	return rb, nil
}

func (rb *resBlock) forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	for i := range rb.convs1 {
		xt := x.Clone()
		ops.LeakyReLUInPlace(xt, leakySlope)

		xt, err := rb.convs1[i].forward(xt)
		if err != nil {
			return nil, err
		}

		ops.LeakyReLUInPlace(xt, leakySlope)

		xt, err = rb.convs2[i].forward(xt)
		if err != nil {
			return nil, err
		}

		if err := addInPlace(xt, x); err != nil {
			return nil, err
		}

		x = xt
	}

	return x, nil
}

// generator is the NSF waveform decoder: latent frames are upsampled stage
// by stage while a filtered source excitation is mixed in at each scale.
// Unpitched voices skip the excitation path.
type generator struct {
	convPre  *conv1d
	cond     *conv1d
	ups      []*convTranspose1d
	noise    []*conv1d // nil entries for unpitched voices
	res      [][]*resBlock
	convPost *conv1d
	source   *sourceModule // nil for unpitched voices

	hopProduct int
}

func loadGenerator(vb *VarBuilder, cfg *Config) (*generator, error) {
	g := &generator{hopProduct: cfg.HopProduct()}

	var err error

	g.convPre, err = loadConv1d(vb, "conv_pre", 1, 3, 1)
	if err != nil {
		return nil, err
	}

	g.cond, err = loadConv1d(vb, "cond", 1, 0, 1)
	if err != nil {
		return nil, err
	}

	if cfg.HasPitch {
		g.source, err = loadSourceModule(vb.Path("m_source"), cfg.SampleRate)
		if err != nil {
			return nil, err
		}
	}

	nKernels := len(cfg.ResblockKernelSizes)

	for i, rate := range cfg.UpsampleRates {
		k := int64(cfg.UpsampleKernelSizes[i])
		stride := int64(rate)
		pad := (k - stride) / 2

		up, err := loadConvTranspose1d(vb, fmt.Sprintf("ups.%d", i), stride, pad)
		if err != nil {
			return nil, err
		}

		g.ups = append(g.ups, up)

		if cfg.HasPitch {
			// Excitation enters this stage downsampled by the product of
			// the remaining rates.
			remaining := int64(1)
			for _, r := range cfg.UpsampleRates[i+1:] {
				remaining *= int64(r)
			}

			var nc *conv1d
			if remaining > 1 {
				nc, err = loadConv1d(vb, fmt.Sprintf("noise_convs.%d", i), remaining, remaining/2, 1)
			} else {
				nc, err = loadConv1d(vb, fmt.Sprintf("noise_convs.%d", i), 1, 0, 1)
			}

			if err != nil {
				return nil, err
			}

			g.noise = append(g.noise, nc)
		}

		stage := make([]*resBlock, nKernels)
		for j := range nKernels {
			stage[j], err = loadResBlock(
				vb.Path(fmt.Sprintf("resblocks.%d", i*nKernels+j)),
				cfg.ResblockKernelSizes[j],
				cfg.ResblockDilations[j],
			)
			if err != nil {
				return nil, err
			}
		}

		g.res = append(g.res, stage)
	}

	g.convPost, err = loadConv1d(vb, "conv_post", 1, 3, 1)
	if err != nil {
		return nil, err
	}

	return g, nil
}

// forward decodes latent z [1, inter, T] into samples. pitch carries one Hz
// value per latent frame and may be nil for unpitched voices; g is the
// speaker embedding [1, gin, 1].
func (gen *generator) forward(z *tensor.Tensor, pitch []float32, spk *tensor.Tensor, rng *rand.Rand) ([]float32, error) {
	var excitation *tensor.Tensor

	if gen.source != nil {
		if int64(len(pitch)) != z.Dim(2) {
			return nil, fmt.Errorf("synth: %d pitch frames for %d latent frames", len(pitch), z.Dim(2))
		}

		upsampled := repeatSamples(pitch, gen.hopProduct)

		var err error

		excitation, err = gen.source.forward(upsampled, rng)
		if err != nil {
			return nil, err
		}
	}

	x, err := gen.convPre.forward(z)
	if err != nil {
		return nil, err
	}

	spkCond, err := gen.cond.forward(spk)
	if err != nil {
		return nil, err
	}

	addBroadcastTime(x, spkCond, 0)

	for i, up := range gen.ups {
		ops.LeakyReLUInPlace(x, leakySlope)

		x, err = up.forward(x)
		if err != nil {
			return nil, err
		}

		if excitation != nil {
			noise, err := gen.noise[i].forward(excitation)
			if err != nil {
				return nil, err
			}

			if err := addScaledTail(x, noise); err != nil {
				return nil, err
			}
		}

		var sum *tensor.Tensor

		for _, rb := range gen.res[i] {
			y, err := rb.forward(x)
			if err != nil {
				return nil, err
			}

			if sum == nil {
				sum = y
			} else if err := addInPlace(sum, y); err != nil {
				return nil, err
			}
		}

		scaleInPlace(sum, 1/float32(len(gen.res[i])))
		x = sum
	}

	ops.LeakyReLUInPlace(x, 0.01)

	x, err = gen.convPost.forward(x)
	if err != nil {
		return nil, err
	}

	ops.TanhInPlace(x)

	return x.Data(), nil
}

// repeatSamples holds each frame value for hop samples.
func repeatSamples(frames []float32, hop int) []float32 {
	out := make([]float32, len(frames)*hop)
	for i, v := range frames {
		row := out[i*hop : (i+1)*hop]
		for j := range row {
			row[j] = v
		}
	}

	return out
}

// addScaledTail adds src into dst channel-wise, tolerating a small length
// difference from convolution edge effects by aligning at the start.
func addScaledTail(dst, src *tensor.Tensor) error {
	if dst.Dim(1) != src.Dim(1) {
		return fmt.Errorf("synth: excitation channels %d do not match stage channels %d", src.Dim(1), dst.Dim(1))
	}

	dFrames := int(dst.Dim(2))
	sFrames := int(src.Dim(2))
	n := min(dFrames, sFrames)

	dd := dst.RawData()
	sd := src.RawData()

	for c := 0; c < int(dst.Dim(1)); c++ {
		drow := dd[c*dFrames : c*dFrames+n]
		srow := sd[c*sFrames : c*sFrames+n]

		for i := range drow {
			drow[i] += srow[i]
		}
	}

	return nil
}
