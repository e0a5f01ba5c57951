// Package synth implements the voice synthesizer: a conditional VAE prior
// encoder, an invertible flow, and an NSF waveform decoder, evaluated on the
// in-process tensor runtime from safetensors weights.
package synth

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"github.com/Player124413/PolGen-RVC/internal/runtime/tensor"
	"github.com/Player124413/PolGen-RVC/internal/safetensors"
)

// ErrShape marks fatal tensor geometry mismatches between inputs that were
// already reconciled upstream.
var ErrShape = errors.New("synth: shape mismatch")

// temperature scales the prior noise at inference time.
const temperature = 0.66666

// Synthesizer holds the immutable weights of one voice. It is safe for
// concurrent use; Infer allocates all working state per call.
type Synthesizer struct {
	cfg *Config

	enc  *priorEncoder
	flow *flow
	gen  *generator
	embG *embedding
}

// Load reads the synthesizer weights for a voice bundle.
func Load(weightsPath string, cfg *Config) (*Synthesizer, error) {
	store, err := safetensors.Open(weightsPath)
	if err != nil {
		return nil, fmt.Errorf("synth: %w", err)
	}
	defer store.Close()

	vb := NewVarBuilder(store)

	enc, err := loadPriorEncoder(vb.Path("enc_p"), cfg)
	if err != nil {
		return nil, fmt.Errorf("synth: prior encoder: %w", err)
	}

	fl, err := loadFlow(vb.Path("flow"), cfg)
	if err != nil {
		return nil, fmt.Errorf("synth: flow: %w", err)
	}

	gen, err := loadGenerator(vb.Path("dec"), cfg)
	if err != nil {
		return nil, fmt.Errorf("synth: generator: %w", err)
	}

	embG, err := loadEmbedding(vb, "emb_g")
	if err != nil {
		return nil, fmt.Errorf("synth: speaker table: %w", err)
	}

	return &Synthesizer{cfg: cfg, enc: enc, flow: fl, gen: gen, embG: embG}, nil
}

func (s *Synthesizer) SampleRate() int { return s.cfg.SampleRate }

func (s *Synthesizer) HasPitch() bool { return s.cfg.HasPitch }

// Infer renders audio for content embeddings phone [1, T, embedDim]. For
// pitched voices pitchHz and coarse must carry exactly T frames. truncateRate
// in (0, 1) keeps only that trailing fraction of the latent, the pitch track
// and the output. rng drives prior sampling and excitation noise; a fixed
// seed makes the output deterministic.
func (s *Synthesizer) Infer(phone *tensor.Tensor, pitchHz []float32, coarse []int64, speaker int, truncateRate float64, rng *rand.Rand) ([]float32, error) {
	if phone == nil || phone.Rank() != 3 {
		return nil, fmt.Errorf("%w: phone must be [1, T, D]", ErrShape)
	}

	frames := int(phone.Dim(1))
	if frames == 0 {
		return nil, fmt.Errorf("%w: no content frames", ErrShape)
	}

	if phone.Dim(2) != int64(s.cfg.EmbedDim) {
		return nil, fmt.Errorf("%w: content width %d, model expects %d", ErrShape, phone.Dim(2), s.cfg.EmbedDim)
	}

	if s.cfg.HasPitch {
		if len(pitchHz) != frames || len(coarse) != frames {
			return nil, fmt.Errorf("%w: %d content frames, %d pitch, %d coarse", ErrShape, frames, len(pitchHz), len(coarse))
		}
	}

	if speaker < 0 || speaker >= s.cfg.Speakers {
		return nil, fmt.Errorf("synth: speaker %d out of range [0, %d)", speaker, s.cfg.Speakers)
	}

	g, err := s.speakerCond(speaker)
	if err != nil {
		return nil, err
	}

	m, logs, err := s.enc.encode(phone, coarse)
	if err != nil {
		return nil, err
	}

	zp := samplePrior(m, logs, rng)

	// Truncation keeps the trailing fraction of every aligned track.
	if truncateRate > 0 && truncateRate < 1 {
		keep := int64(math.Ceil(float64(frames) * truncateRate))

		zp, err = zp.Narrow(2, int64(frames)-keep, keep)
		if err != nil {
			return nil, err
		}

		if s.cfg.HasPitch {
			pitchHz = pitchHz[int64(frames)-keep:]
		}
	}

	z, err := s.flow.inverse(zp, g)
	if err != nil {
		return nil, err
	}

	return s.gen.forward(z, pitchHz, g, rng)
}

// speakerCond looks up the speaker embedding as [1, gin, 1].
func (s *Synthesizer) speakerCond(speaker int) (*tensor.Tensor, error) {
	row, err := s.embG.lookup([]int64{int64(speaker)})
	if err != nil {
		return nil, err
	}

	return row.Reshape([]int64{1, int64(s.cfg.SpeakerEmbedDim), 1})
}

// samplePrior draws z = m + exp(logs) * n * temperature.
func samplePrior(m, logs *tensor.Tensor, rng *rand.Rand) *tensor.Tensor {
	out := m.Clone()
	od := out.RawData()
	ld := logs.RawData()

	for i := range od {
		od[i] += float32(math.Exp(float64(ld[i]))) * float32(rng.NormFloat64()) * temperature
	}

	return out
}
