// Package vc orchestrates the conversion pipeline: request validation,
// resampling, parallel feature and pitch extraction, index retrieval,
// synthesis and loudness post-processing.
package vc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/Player124413/PolGen-RVC/internal/audio"
	"github.com/Player124413/PolGen-RVC/internal/content"
	"github.com/Player124413/PolGen-RVC/internal/f0"
	"github.com/Player124413/PolGen-RVC/internal/runtime/tensor"
	"github.com/Player124413/PolGen-RVC/internal/synth"
)

// contentUpsample maps the encoder's 20 ms frames onto the 10 ms pitch grid.
const contentUpsample = 2

// Synthesizer is the slice of the voice model the pipeline drives.
// *synth.Synthesizer implements it.
type Synthesizer interface {
	Infer(phone *tensor.Tensor, pitchHz []float32, coarse []int64, speaker int, truncateRate float64, rng *rand.Rand) ([]float32, error)
	SampleRate() int
	HasPitch() bool
}

// ContentEncoder produces [1, T, D] content embeddings for 16 kHz audio.
type ContentEncoder interface {
	Encode(ctx context.Context, samples []float32) (*tensor.Tensor, error)
}

// PitchExtractor produces a 10 ms pitch track for 16 kHz audio.
type PitchExtractor interface {
	Extract(ctx context.Context, samples []float32, opts f0.Options) (*f0.PitchSequence, error)
}

// ModelProvider resolves voice bundles by name.
type ModelProvider interface {
	VoiceModel(ctx context.Context, name string) (*VoiceModel, error)
}

// Service runs conversions. It is safe for concurrent use; all mutable state
// lives in the request scope.
type Service struct {
	models  ModelProvider
	content ContentEncoder
	pitch   PitchExtractor
	logger  *slog.Logger
}

func NewService(models ModelProvider, content ContentEncoder, pitch PitchExtractor, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}

	return &Service{models: models, content: content, pitch: pitch, logger: logger}
}

// Convert runs the full pipeline and returns the converted clip at the voice
// model's sample rate. On failure no partial audio is returned; the error
// wraps the failing stage in a ConversionError.
func (s *Service) Convert(ctx context.Context, req ConversionRequest) (*audio.Buffer, error) {
	requestID := uuid.NewString()
	logger := s.logger.With("request_id", requestID, "model", req.Model)
	start := time.Now()

	if err := req.Validate(); err != nil {
		return nil, failAt(StageValidated, requestID, err)
	}

	model, err := s.models.VoiceModel(ctx, req.Model)
	if err != nil {
		return nil, failAt(StageValidated, requestID, err)
	}

	// Resample to the 16 kHz analysis rate.
	source, err := audio.Resample(req.Audio, f0.SampleRate)
	if err != nil {
		return nil, failAt(StageResampled, requestID, err)
	}

	if err := ctx.Err(); err != nil {
		return nil, failAt(StageResampled, requestID, err)
	}

	logger.Debug("resampled", "samples", len(source.Samples), "elapsed", time.Since(start))

	// Content embeddings and pitch are independent; run them in parallel.
	var (
		emb   *tensor.Tensor
		pitch *f0.PitchSequence
	)

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		var err error

		emb, err = s.content.Encode(groupCtx, source.Samples)
		if err != nil {
			return failAt(StageFeaturesExtracted, requestID, mapModelErr(err))
		}

		return nil
	})

	if model.Synth.HasPitch() {
		group.Go(func() error {
			var err error

			pitch, err = s.pitch.Extract(groupCtx, source.Samples, f0.Options{
				Method:    req.PitchMethod,
				HopLength: req.CrepeHop,
				F0Min:     req.F0Min,
				F0Max:     req.F0Max,
			})
			if err != nil {
				return failAt(StagePitchExtracted, requestID, mapModelErr(err))
			}

			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, failAt(StagePitchExtracted, requestID, err)
	}

	var pitchHz []float32

	var coarse []int64

	if model.Synth.HasPitch() {
		pitch.Shift(req.PitchShift)
		pitch.MedianFilter(req.FilterRadius)

		if req.Autotune {
			pitch.Autotune()
		}

		pitch.ClampRange(req.F0Min, req.F0Max)
	}

	emb, err = alignGrids(emb)
	if err != nil {
		return nil, failAt(StageFeaturesExtracted, requestID, err)
	}

	// Reconcile to the minimum common frame count; embeddings are never
	// interpolated.
	frames := int(emb.Dim(1))

	if model.Synth.HasPitch() {
		if pitch.Len() < frames {
			frames = pitch.Len()
		}

		pitch.Truncate(frames)
		pitchHz = pitch.F0
		coarse = f0.Coarse(pitchHz)
	}

	if int(emb.Dim(1)) > frames {
		emb, err = emb.Narrow(1, 0, int64(frames))
		if err != nil {
			return nil, failAt(StageFeaturesExtracted, requestID, fmt.Errorf("%w: %v", ErrShapeMismatch, err))
		}
	}

	logger.Debug("features ready", "frames", frames, "elapsed", time.Since(start))

	// Retrieval blend, with unvoiced frames protected.
	if req.IndexRate > 0 && model.Index.Len() > 0 {
		original := emb.Clone()

		if err := model.Index.Blend(emb, req.IndexRate); err != nil {
			return nil, failAt(StageIndexBlended, requestID, err)
		}

		if model.Synth.HasPitch() && req.Protect < 0.5 {
			protectUnvoiced(emb, original, pitch, req.Protect)
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, failAt(StageIndexBlended, requestID, err)
	}

	seed := req.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	samples, err := model.Synth.Infer(emb, pitchHz, coarse, req.Speaker, req.TruncateRate, rand.New(rand.NewSource(seed)))
	if err != nil {
		if errors.Is(err, synth.ErrShape) {
			err = fmt.Errorf("%w: %v", ErrShapeMismatch, err)
		}

		return nil, failAt(StageSynthesized, requestID, err)
	}

	out := audio.NewBuffer(samples, model.Synth.SampleRate())

	if err := ctx.Err(); err != nil {
		return nil, failAt(StageSynthesized, requestID, err)
	}

	// Loudness envelope mix against the source clip.
	if req.RMSMixRate < 1 {
		ref, err := audio.Resample(source, out.SampleRate)
		if err != nil {
			return nil, failAt(StagePostprocessed, requestID, err)
		}

		if err := audio.MixRMSEnvelope(ref, out, float32(req.RMSMixRate)); err != nil {
			return nil, failAt(StagePostprocessed, requestID, err)
		}
	}

	logger.Info("conversion done",
		"frames", frames,
		"output_samples", len(out.Samples),
		"sample_rate", out.SampleRate,
		"duration", time.Since(start))

	return out, nil
}

// alignGrids expands 20 ms content frames onto the 10 ms pitch grid.
func alignGrids(emb *tensor.Tensor) (*tensor.Tensor, error) {
	return content.Upsample(emb, contentUpsample)
}

// protectUnvoiced pulls blended embeddings back toward the originals on
// unvoiced frames: protect 0 restores them fully, 0.5 keeps the blend.
func protectUnvoiced(emb, original *tensor.Tensor, pitch *f0.PitchSequence, protect float64) {
	frames := int(emb.Dim(1))
	width := int(emb.Dim(2))
	blended := emb.RawData()
	orig := original.RawData()
	p := float32(protect)

	for f := range frames {
		if pitch.Voiced(f) {
			continue
		}

		for i := f * width; i < (f+1)*width; i++ {
			blended[i] = p*blended[i] + (1-p)*orig[i]
		}
	}
}

// mapModelErr converts estimator availability failures into the pipeline's
// taxonomy.
func mapModelErr(err error) error {
	if errors.Is(err, f0.ErrUnavailable) {
		return fmt.Errorf("%w: %v", ErrModelUnavailable, err)
	}

	return err
}
