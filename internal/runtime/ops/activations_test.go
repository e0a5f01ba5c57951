package ops

import (
	"math"
	"testing"
)

func TestLeakyReLUInPlace(t *testing.T) {
	x := mustTensorT(t, []float32{-1, 0, 2}, []int64{3})

	LeakyReLUInPlace(x, 0.1)

	want := []float32{-0.1, 0, 2}
	if got := x.Data(); !equalApprox(got, want, 1e-6) {
		t.Fatalf("LeakyReLU = %v, want %v", got, want)
	}
}

func TestTanhInPlaceBounds(t *testing.T) {
	x := mustTensorT(t, []float32{-100, -1, 0, 1, 100}, []int64{5})

	TanhInPlace(x)

	for _, v := range x.Data() {
		if v < -1 || v > 1 {
			t.Fatalf("tanh output %v out of [-1, 1]", v)
		}
	}
}

func TestGatedTanhSigmoid(t *testing.T) {
	// First half = 0 -> tanh 0 -> gate output 0 regardless of sigmoid half.
	x := mustTensorT(t, []float32{0, 0, 5, -5}, []int64{1, 2, 2})

	out, err := GatedTanhSigmoid(x)
	if err != nil {
		t.Fatalf("GatedTanhSigmoid: %v", err)
	}

	if shape := out.Shape(); shape[1] != 1 || shape[2] != 2 {
		t.Fatalf("gate output shape = %v, want [1 1 2]", shape)
	}

	for _, v := range out.Data() {
		if math.Abs(float64(v)) > 1e-6 {
			t.Fatalf("gate with zero tanh half produced %v, want 0", v)
		}
	}
}
