package content

import (
	"testing"

	"github.com/Player124413/PolGen-RVC/internal/runtime/tensor"
)

func TestUpsampleRepeatsFrames(t *testing.T) {
	emb := mustTensor(t, []float32{
		1, 2,
		3, 4,
	}, []int64{1, 2, 2})

	got, err := Upsample(emb, 2)
	if err != nil {
		t.Fatalf("Upsample: %v", err)
	}

	wantShape := []int64{1, 4, 2}
	for i, d := range wantShape {
		if got.Shape()[i] != d {
			t.Fatalf("shape = %v, want %v", got.Shape(), wantShape)
		}
	}

	want := []float32{1, 2, 1, 2, 3, 4, 3, 4}
	data := got.RawData()
	for i := range want {
		if data[i] != want[i] {
			t.Fatalf("data = %v, want %v", data, want)
		}
	}
}

func TestUpsampleFactorOneClones(t *testing.T) {
	emb := mustTensor(t, []float32{1, 2, 3}, []int64{1, 1, 3})

	got, err := Upsample(emb, 1)
	if err != nil {
		t.Fatalf("Upsample: %v", err)
	}

	got.RawData()[0] = 99
	if emb.RawData()[0] != 1 {
		t.Fatalf("factor 1 did not clone")
	}
}

func TestUpsampleRejectsBadInput(t *testing.T) {
	emb := mustTensor(t, []float32{1, 2}, []int64{1, 2})

	if _, err := Upsample(emb, 2); err == nil {
		t.Fatalf("rank 2 accepted")
	}

	emb3 := mustTensor(t, []float32{1, 2}, []int64{1, 1, 2})
	if _, err := Upsample(emb3, 0); err == nil {
		t.Fatalf("factor 0 accepted")
	}

	if _, err := Upsample(nil, 2); err == nil {
		t.Fatalf("nil embedding accepted")
	}
}

func mustTensor(t *testing.T, data []float32, shape []int64) *tensor.Tensor {
	t.Helper()

	tn, err := tensor.New(data, shape)
	if err != nil {
		t.Fatalf("tensor.New: %v", err)
	}

	return tn
}
