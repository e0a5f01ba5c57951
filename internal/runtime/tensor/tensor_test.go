package tensor

import (
	"math"
	"strings"
	"testing"
)

func mustTensor(t *testing.T, data []float32, shape []int64) *Tensor {
	t.Helper()

	out, err := New(data, shape)
	if err != nil {
		t.Fatalf("New(%v): %v", shape, err)
	}

	return out
}

func equalApprox(got, want []float32, tol float32) bool {
	if len(got) != len(want) {
		return false
	}

	for i := range got {
		if float32(math.Abs(float64(got[i]-want[i]))) > tol {
			return false
		}
	}

	return true
}

func assertErrContains(t *testing.T, err error, want string) {
	t.Helper()

	if err == nil {
		t.Fatalf("expected error containing %q, got nil", want)
	}

	if !strings.Contains(err.Error(), want) {
		t.Fatalf("error %q does not contain %q", err.Error(), want)
	}
}

func TestNewValidatesShape(t *testing.T) {
	_, err := New([]float32{1, 2, 3}, []int64{2, 2})
	assertErrContains(t, err, "does not match shape")
}

func TestDataIsACopy(t *testing.T) {
	src := mustTensor(t, []float32{1, 2, 3}, []int64{3})

	d := src.Data()
	d[0] = 42

	if src.RawData()[0] != 1 {
		t.Fatalf("Data() aliases the tensor backing store")
	}
}

func TestNarrow(t *testing.T) {
	src := mustTensor(t, []float32{
		1, 2, 3, 4,
		5, 6, 7, 8,
	}, []int64{1, 2, 4})

	out, err := src.Narrow(2, 1, 2)
	if err != nil {
		t.Fatalf("Narrow: %v", err)
	}

	want := []float32{2, 3, 6, 7}
	if got := out.Data(); !equalApprox(got, want, 0) {
		t.Fatalf("Narrow = %v, want %v", got, want)
	}
}

func TestNarrowTailKeepsLastFrames(t *testing.T) {
	src := mustTensor(t, []float32{1, 2, 3, 4, 5, 6}, []int64{1, 1, 6})

	out, err := src.Narrow(-1, 4, 2)
	if err != nil {
		t.Fatalf("Narrow tail: %v", err)
	}

	if got := out.Data(); !equalApprox(got, []float32{5, 6}, 0) {
		t.Fatalf("Narrow tail = %v, want [5 6]", got)
	}
}

func TestNarrowOutOfBounds(t *testing.T) {
	src := mustTensor(t, []float32{1, 2, 3}, []int64{3})

	_, err := src.Narrow(0, 2, 4)
	assertErrContains(t, err, "out of bounds")
}

func TestTranspose(t *testing.T) {
	src := mustTensor(t, []float32{
		1, 2, 3,
		4, 5, 6,
	}, []int64{2, 3})

	out, err := src.Transpose(0, 1)
	if err != nil {
		t.Fatalf("Transpose: %v", err)
	}

	want := []float32{1, 4, 2, 5, 3, 6}
	if got := out.Data(); !equalApprox(got, want, 0) {
		t.Fatalf("Transpose = %v, want %v", got, want)
	}

	if shape := out.Shape(); shape[0] != 3 || shape[1] != 2 {
		t.Fatalf("Transpose shape = %v, want [3 2]", shape)
	}
}

func TestConcatLastDim(t *testing.T) {
	a := mustTensor(t, []float32{1, 2, 10, 20}, []int64{1, 2, 2})
	b := mustTensor(t, []float32{3, 30}, []int64{1, 2, 1})

	out, err := Concat([]*Tensor{a, b}, 2)
	if err != nil {
		t.Fatalf("Concat: %v", err)
	}

	want := []float32{1, 2, 3, 10, 20, 30}
	if got := out.Data(); !equalApprox(got, want, 0) {
		t.Fatalf("Concat = %v, want %v", got, want)
	}
}

func TestConcatShapeMismatch(t *testing.T) {
	a := mustTensor(t, []float32{1, 2}, []int64{1, 2})
	b := mustTensor(t, []float32{1, 2, 3}, []int64{1, 3})

	_, err := Concat([]*Tensor{a, b}, 0)
	assertErrContains(t, err, "does not match")
}

func TestReshapePreservesData(t *testing.T) {
	src := mustTensor(t, []float32{1, 2, 3, 4, 5, 6}, []int64{2, 3})

	out, err := src.Reshape([]int64{3, 2})
	if err != nil {
		t.Fatalf("Reshape: %v", err)
	}

	if got := out.Data(); !equalApprox(got, src.Data(), 0) {
		t.Fatalf("Reshape changed data: %v", got)
	}
}

func TestDimNegativeIndex(t *testing.T) {
	src := mustTensor(t, make([]float32, 6), []int64{1, 2, 3})

	if got := src.Dim(-1); got != 3 {
		t.Fatalf("Dim(-1) = %d, want 3", got)
	}

	if got := src.Dim(1); got != 2 {
		t.Fatalf("Dim(1) = %d, want 2", got)
	}
}
