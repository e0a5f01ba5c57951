package onnx

import (
	"strings"
	"testing"
)

func TestNewTensorFloat32(t *testing.T) {
	tr, err := NewTensor([]float32{1, 2, 3, 4}, []int64{2, 2})
	if err != nil {
		t.Fatalf("NewTensor: %v", err)
	}

	if tr.DType() != DTypeFloat32 {
		t.Fatalf("dtype = %s, want float32", tr.DType())
	}

	data, err := tr.Float32()
	if err != nil {
		t.Fatalf("Float32: %v", err)
	}

	if len(data) != 4 || data[3] != 4 {
		t.Fatalf("data = %v", data)
	}
}

func TestNewTensorInt64(t *testing.T) {
	tr, err := NewTensor([]int64{7, 8}, []int64{2})
	if err != nil {
		t.Fatalf("NewTensor: %v", err)
	}

	if tr.DType() != DTypeInt64 {
		t.Fatalf("dtype = %s, want int64", tr.DType())
	}

	if _, err := tr.Float32(); err == nil {
		t.Fatalf("Float32 on int64 tensor succeeded, want error")
	}
}

func TestNewTensorShapeMismatch(t *testing.T) {
	_, err := NewTensor([]float32{1, 2, 3}, []int64{2, 2})
	if err == nil || !strings.Contains(err.Error(), "expects 4 elements") {
		t.Fatalf("err = %v, want element count mismatch", err)
	}
}

func TestNewTensorRejectsNonPositiveDims(t *testing.T) {
	_, err := NewTensor([]float32{}, []int64{0})
	if err == nil {
		t.Fatalf("zero dim accepted, want error")
	}
}

func TestDataIsACopy(t *testing.T) {
	tr, err := NewTensor([]float32{1, 2}, []int64{2})
	if err != nil {
		t.Fatalf("NewTensor: %v", err)
	}

	d, ok := tr.Data().([]float32)
	if !ok {
		t.Fatalf("Data() type = %T, want []float32", tr.Data())
	}

	d[0] = 99

	again, _ := tr.Float32()
	if again[0] != 1 {
		t.Fatalf("Data() aliases the tensor payload")
	}
}
