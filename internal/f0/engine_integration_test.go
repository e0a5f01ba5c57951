package f0

import (
	"context"
	"math"
	"testing"

	"github.com/Player124413/PolGen-RVC/internal/onnx"
	"github.com/Player124413/PolGen-RVC/internal/testutil"
)

// Runs the real rmvpe graph when an ONNX runtime and a graph file are
// available; skipped otherwise.
func TestExtractRealRMVPE(t *testing.T) {
	lib := testutil.RequireONNXRuntime(t)
	graph := testutil.RequireFile(t, "POLGEN_RMVPE")

	e := NewEngine(Paths{RMVPE: graph}, onnx.RunnerConfig{LibraryPath: lib})
	defer e.Close()

	// One second of a 220 Hz tone.
	samples := make([]float32, SampleRate)
	for i := range samples {
		samples[i] = float32(0.5 * math.Sin(2*math.Pi*220*float64(i)/SampleRate))
	}

	seq, err := e.Extract(context.Background(), samples, Options{
		Method: MethodRMVPE,
		F0Min:  50,
		F0Max:  1100,
	})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}

	if seq.Len() != FrameCount(len(samples)) {
		t.Fatalf("frames = %d, want %d", seq.Len(), FrameCount(len(samples)))
	}

	voiced := 0

	for i, hz := range seq.F0 {
		if hz == 0 {
			continue
		}

		voiced++

		if hz < 50 || hz > 1100 {
			t.Fatalf("frame %d = %v Hz, outside [50, 1100]", i, hz)
		}
	}

	if voiced == 0 {
		t.Fatal("a steady tone produced no voiced frames")
	}
}
