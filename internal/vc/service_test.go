package vc

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"testing"

	"github.com/Player124413/PolGen-RVC/internal/audio"
	"github.com/Player124413/PolGen-RVC/internal/f0"
	"github.com/Player124413/PolGen-RVC/internal/runtime/tensor"
)

type fakeSynth struct {
	sampleRate int
	hasPitch   bool

	gotPhone    *tensor.Tensor
	gotPitch    []float32
	gotCoarse   []int64
	gotSpeaker  int
	gotTruncate float64

	err error
}

func (f *fakeSynth) Infer(phone *tensor.Tensor, pitchHz []float32, coarse []int64, speaker int, truncateRate float64, _ *rand.Rand) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}

	f.gotPhone = phone.Clone()
	f.gotPitch = append([]float32(nil), pitchHz...)
	f.gotCoarse = append([]int64(nil), coarse...)
	f.gotSpeaker = speaker
	f.gotTruncate = truncateRate

	return make([]float32, int(phone.Dim(1))*160), nil
}

func (f *fakeSynth) SampleRate() int { return f.sampleRate }

func (f *fakeSynth) HasPitch() bool { return f.hasPitch }

type fakeContent struct {
	frames int
	width  int
	calls  int
}

func (f *fakeContent) Encode(_ context.Context, _ []float32) (*tensor.Tensor, error) {
	f.calls++

	data := make([]float32, f.frames*f.width)
	for i := range data {
		data[i] = float32(i%7) * 0.1
	}

	return tensor.New(data, []int64{1, int64(f.frames), int64(f.width)})
}

type fakePitch struct {
	f0    []float32
	err   error
	calls int
}

func (f *fakePitch) Extract(_ context.Context, _ []float32, _ f0.Options) (*f0.PitchSequence, error) {
	f.calls++

	if f.err != nil {
		return nil, f.err
	}

	return f0.NewPitchSequence(f.f0), nil
}

type stubProvider struct {
	model *VoiceModel
	err   error
	calls int
}

func (s *stubProvider) VoiceModel(_ context.Context, _ string) (*VoiceModel, error) {
	s.calls++

	if s.err != nil {
		return nil, s.err
	}

	return s.model, nil
}

func testAudio() *audio.Buffer {
	return audio.NewBuffer(make([]float32, 1600), 16000)
}

func validRequest() ConversionRequest {
	req := DefaultRequest()
	req.Model = "alice"
	req.Audio = testAudio()
	req.RMSMixRate = 1

	return req
}

func pipeline(synth *fakeSynth, pitchTrack []float32) (*Service, *stubProvider, *fakeContent, *fakePitch) {
	provider := &stubProvider{model: &VoiceModel{Name: "alice", Synth: synth}}
	contentEnc := &fakeContent{frames: 5, width: 4}
	pitchExt := &fakePitch{f0: pitchTrack}

	return NewService(provider, contentEnc, pitchExt, nil), provider, contentEnc, pitchExt
}

func TestConvertHappyPath(t *testing.T) {
	synth := &fakeSynth{sampleRate: 16000, hasPitch: true}

	track := make([]float32, 10)
	for i := range track {
		if i%3 != 0 {
			track[i] = 220
		}
	}

	svc, _, _, _ := pipeline(synth, track)

	out, err := svc.Convert(context.Background(), validRequest())
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}

	// 5 content frames upsampled to 10, reconciled with 10 pitch frames.
	if got := synth.gotPhone.Dim(1); got != 10 {
		t.Fatalf("synthesized frames = %d, want 10", got)
	}

	if len(synth.gotPitch) != 10 || len(synth.gotCoarse) != 10 {
		t.Fatalf("pitch/coarse lengths = %d/%d, want 10", len(synth.gotPitch), len(synth.gotCoarse))
	}

	for i, b := range synth.gotCoarse {
		if b < 1 || b > 255 {
			t.Fatalf("coarse bin %d = %d out of range", i, b)
		}
	}

	if out.SampleRate != 16000 || len(out.Samples) != 1600 {
		t.Fatalf("output %d samples at %d Hz", len(out.Samples), out.SampleRate)
	}
}

func TestConvertReconcilesToShorterPitch(t *testing.T) {
	synth := &fakeSynth{sampleRate: 16000, hasPitch: true}
	svc, _, _, _ := pipeline(synth, []float32{220, 220, 220, 220, 220, 220, 220})

	if _, err := svc.Convert(context.Background(), validRequest()); err != nil {
		t.Fatalf("Convert: %v", err)
	}

	if got := synth.gotPhone.Dim(1); got != 7 {
		t.Fatalf("frames = %d, want min(10, 7) = 7", got)
	}

	if len(synth.gotPitch) != 7 {
		t.Fatalf("pitch frames = %d, want 7", len(synth.gotPitch))
	}
}

func TestConvertValidatesBeforeModelLoad(t *testing.T) {
	synth := &fakeSynth{sampleRate: 16000, hasPitch: true}
	svc, provider, _, _ := pipeline(synth, nil)

	req := validRequest()
	req.IndexRate = 1.5

	_, err := svc.Convert(context.Background(), req)
	if !errors.Is(err, ErrInvalidParameter) {
		t.Fatalf("err = %v, want ErrInvalidParameter", err)
	}

	if provider.calls != 0 {
		t.Fatalf("model was loaded before validation failed")
	}

	var convErr *ConversionError
	if !errors.As(err, &convErr) || convErr.Stage != StageValidated {
		t.Fatalf("err = %v, want ConversionError at validated", err)
	}
}

func TestConvertUnknownModel(t *testing.T) {
	provider := &stubProvider{err: fmt.Errorf("%w: alice", ErrModelNotFound)}
	svc := NewService(provider, &fakeContent{frames: 5, width: 4}, &fakePitch{}, nil)

	_, err := svc.Convert(context.Background(), validRequest())
	if !errors.Is(err, ErrModelNotFound) {
		t.Fatalf("err = %v, want ErrModelNotFound", err)
	}
}

func TestConvertPitchShiftApplied(t *testing.T) {
	synth := &fakeSynth{sampleRate: 16000, hasPitch: true}

	track := make([]float32, 10)
	for i := range track {
		track[i] = 220
	}

	svc, _, _, _ := pipeline(synth, track)

	req := validRequest()
	req.PitchShift = 12
	req.FilterRadius = 0

	if _, err := svc.Convert(context.Background(), req); err != nil {
		t.Fatalf("Convert: %v", err)
	}

	for i, hz := range synth.gotPitch {
		if hz < 439 || hz > 441 {
			t.Fatalf("frame %d = %v Hz, want ~440 after +12 semitones", i, hz)
		}
	}
}

func TestConvertUnpitchedVoiceSkipsPitch(t *testing.T) {
	synth := &fakeSynth{sampleRate: 16000, hasPitch: false}
	svc, _, _, pitchExt := pipeline(synth, nil)

	if _, err := svc.Convert(context.Background(), validRequest()); err != nil {
		t.Fatalf("Convert: %v", err)
	}

	if pitchExt.calls != 0 {
		t.Fatalf("pitch extractor invoked for an unpitched voice")
	}

	if len(synth.gotPitch) != 0 || len(synth.gotCoarse) != 0 {
		t.Fatalf("pitch passed to an unpitched synthesizer")
	}
}

func TestConvertMapsUnavailableEstimator(t *testing.T) {
	synth := &fakeSynth{sampleRate: 16000, hasPitch: true}
	svc, _, _, pitchExt := pipeline(synth, nil)
	pitchExt.err = fmt.Errorf("%w: no graph configured for rmvpe", f0.ErrUnavailable)

	_, err := svc.Convert(context.Background(), validRequest())
	if !errors.Is(err, ErrModelUnavailable) {
		t.Fatalf("err = %v, want ErrModelUnavailable", err)
	}
}

func TestConvertCancelledContext(t *testing.T) {
	synth := &fakeSynth{sampleRate: 16000, hasPitch: true}

	track := make([]float32, 10)
	svc, _, _, _ := pipeline(synth, track)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := svc.Convert(ctx, validRequest()); err == nil {
		t.Fatalf("cancelled context accepted")
	}
}

func TestProtectUnvoiced(t *testing.T) {
	blended := mustVCTensor(t, []float32{1, 1, 3, 3}, []int64{1, 2, 2})
	original := mustVCTensor(t, []float32{2, 2, 5, 5}, []int64{1, 2, 2})
	pitch := f0.NewPitchSequence([]float32{0, 220})

	protectUnvoiced(blended, original, pitch, 0.25)

	got := blended.RawData()

	// Unvoiced frame 0: 0.25*1 + 0.75*2 = 1.75. Voiced frame 1 untouched.
	if got[0] != 1.75 || got[1] != 1.75 {
		t.Fatalf("unvoiced frame = %v, want 1.75", got[:2])
	}

	if got[2] != 3 || got[3] != 3 {
		t.Fatalf("voiced frame modified: %v", got[2:])
	}
}

func TestRequestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*ConversionRequest)
	}{
		{name: "missing model", mutate: func(r *ConversionRequest) { r.Model = "" }},
		{name: "missing audio", mutate: func(r *ConversionRequest) { r.Audio = nil }},
		{name: "pitch shift too high", mutate: func(r *ConversionRequest) { r.PitchShift = 30 }},
		{name: "index rate above one", mutate: func(r *ConversionRequest) { r.IndexRate = 1.5 }},
		{name: "filter radius too large", mutate: func(r *ConversionRequest) { r.FilterRadius = 9 }},
		{name: "protect above half", mutate: func(r *ConversionRequest) { r.Protect = 0.6 }},
		{name: "inverted pitch range", mutate: func(r *ConversionRequest) { r.F0Min = 500; r.F0Max = 100 }},
		{name: "crepe hop too small", mutate: func(r *ConversionRequest) { r.CrepeHop = 4 }},
		{name: "unknown method", mutate: func(r *ConversionRequest) { r.PitchMethod = "dio" }},
		{name: "truncate rate one", mutate: func(r *ConversionRequest) { r.TruncateRate = 1 }},
		{name: "negative speaker", mutate: func(r *ConversionRequest) { r.Speaker = -1 }},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := validRequest()
			tc.mutate(&req)

			if err := req.Validate(); !errors.Is(err, ErrInvalidParameter) {
				t.Fatalf("err = %v, want ErrInvalidParameter", err)
			}
		})
	}

	req := validRequest()
	if err := req.Validate(); err != nil {
		t.Fatalf("valid request rejected: %v", err)
	}
}

func TestConversionErrorUnwraps(t *testing.T) {
	err := failAt(StageSynthesized, "req-1", ErrShapeMismatch)

	if !errors.Is(err, ErrShapeMismatch) {
		t.Fatalf("wrapped cause not visible: %v", err)
	}

	var convErr *ConversionError
	if !errors.As(err, &convErr) || convErr.Stage != StageSynthesized {
		t.Fatalf("stage lost: %v", err)
	}
}

func mustVCTensor(t *testing.T, data []float32, shape []int64) *tensor.Tensor {
	t.Helper()

	tn, err := tensor.New(data, shape)
	if err != nil {
		t.Fatalf("tensor.New: %v", err)
	}

	return tn
}
