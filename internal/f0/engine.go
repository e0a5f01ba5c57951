package f0

import (
	"context"
	"fmt"
	"sync"

	"github.com/Player124413/PolGen-RVC/internal/onnx"
)

// Paths locates the ONNX graph of each estimator. An empty path marks the
// method unavailable.
type Paths struct {
	RMVPE string
	FCPE  string
	Crepe string
}

// Options control a single extraction run.
type Options struct {
	Method Method
	// HopLength applies to the crepe family only, in samples at 16 kHz.
	HopLength int
	F0Min     float64
	F0Max     float64
}

// Engine runs the pitch estimators. Runners are created lazily on first use
// of a method and shared afterwards; Engine is safe for concurrent use.
type Engine struct {
	paths Paths
	cfg   onnx.RunnerConfig

	mu      sync.Mutex
	runners map[string]*onnx.Runner
}

func NewEngine(paths Paths, cfg onnx.RunnerConfig) *Engine {
	return &Engine{
		paths:   paths,
		cfg:     cfg,
		runners: make(map[string]*onnx.Runner),
	}
}

// Close releases all ORT sessions.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, r := range e.runners {
		r.Close()
	}

	e.runners = make(map[string]*onnx.Runner)
}

// Extract estimates per-frame F0 for 16 kHz mono samples. The result has one
// frame per 10 ms (FrameCount frames) and respects the [F0Min, F0Max] range.
func (e *Engine) Extract(ctx context.Context, samples []float32, opts Options) (*PitchSequence, error) {
	if opts.F0Min <= 0 || opts.F0Max <= opts.F0Min {
		return nil, fmt.Errorf("f0: invalid pitch range [%v, %v]", opts.F0Min, opts.F0Max)
	}

	n := FrameCount(len(samples))
	if n == 0 {
		return NewPitchSequence(nil), nil
	}

	var (
		curve []float32
		err   error
	)

	switch opts.Method {
	case MethodRMVPE:
		curve, err = e.runCurveGraph(ctx, "rmvpe", e.paths.RMVPE, samples, n)
	case MethodFCPE:
		curve, err = e.runCurveGraph(ctx, "fcpe", e.paths.FCPE, samples, n)
	case MethodRMVPEPlus:
		curve, err = e.extractHybrid(ctx, samples, n)
	case MethodCrepe, MethodMangioCrepe:
		hop := opts.HopLength
		if hop <= 0 {
			hop = 160
		}

		curve, err = e.extractCrepe(ctx, samples, hop, n)
	default:
		return nil, fmt.Errorf("f0: unknown pitch method %q", opts.Method)
	}

	if err != nil {
		return nil, err
	}

	seq := NewPitchSequence(curve)
	seq.ClampRange(opts.F0Min, opts.F0Max)

	return seq, nil
}

// runner returns the shared ORT session for a graph, creating it on first
// use. A missing or unloadable graph surfaces as ErrUnavailable.
func (e *Engine) runner(name, path string) (*onnx.Runner, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: no graph configured for %s", ErrUnavailable, name)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if r, ok := e.runners[name]; ok {
		return r, nil
	}

	r, err := onnx.NewRunner(name, path, e.cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrUnavailable, name, err)
	}

	e.runners[name] = r

	return r, nil
}

// runCurveGraph handles the rmvpe/fcpe contract: waveform [1, N] in, f0
// [1, T] at 10 ms hop out.
func (e *Engine) runCurveGraph(ctx context.Context, name, path string, samples []float32, n int) ([]float32, error) {
	r, err := e.runner(name, path)
	if err != nil {
		return nil, err
	}

	input, err := onnx.NewTensor(samples, []int64{1, int64(len(samples))})
	if err != nil {
		return nil, fmt.Errorf("f0: %s input: %w", name, err)
	}

	outputs, err := r.Run(ctx, map[string]*onnx.Tensor{"waveform": input})
	if err != nil {
		return nil, fmt.Errorf("f0: %s: %w", name, err)
	}

	out, ok := outputs["f0"]
	if !ok {
		return nil, fmt.Errorf("f0: %s graph produced no f0 output", name)
	}

	curve, err := out.Float32()
	if err != nil {
		return nil, fmt.Errorf("f0: %s output: %w", name, err)
	}

	return fitLength(curve, n), nil
}

// extractHybrid runs rmvpe and fcpe and merges them deterministically:
// geometric mean where both agree a frame is voiced, the voiced estimate
// where only one does, unvoiced otherwise. The geometric mean keeps the
// merge symmetric in log-frequency, which is where octave errors live.
func (e *Engine) extractHybrid(ctx context.Context, samples []float32, n int) ([]float32, error) {
	a, err := e.runCurveGraph(ctx, "rmvpe", e.paths.RMVPE, samples, n)
	if err != nil {
		return nil, err
	}

	b, err := e.runCurveGraph(ctx, "fcpe", e.paths.FCPE, samples, n)
	if err != nil {
		return nil, err
	}

	return mergeHybrid(a, b), nil
}
