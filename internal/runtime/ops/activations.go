package ops

import (
	"math"

	"github.com/Player124413/PolGen-RVC/internal/runtime/tensor"
)

// LeakyReLUInPlace applies max(x, slope*x) element-wise.
func LeakyReLUInPlace(t *tensor.Tensor, slope float32) {
	data := t.RawData()
	for i, v := range data {
		if v < 0 {
			data[i] = v * slope
		}
	}
}

// ReLUInPlace zeroes negative elements of t.
func ReLUInPlace(t *tensor.Tensor) {
	data := t.RawData()
	for i, v := range data {
		if v < 0 {
			data[i] = 0
		}
	}
}

// TanhInPlace applies tanh element-wise.
func TanhInPlace(t *tensor.Tensor) {
	data := t.RawData()
	for i, v := range data {
		data[i] = float32(math.Tanh(float64(v)))
	}
}

// GatedTanhSigmoid splits the channels of x ([1, 2C, T]) in half and returns
// tanh(first) * sigmoid(second) as [1, C, T]. This is the WaveNet gate.
func GatedTanhSigmoid(x *tensor.Tensor) (*tensor.Tensor, error) {
	channels := x.Dim(1)
	half := channels / 2

	a, err := x.Narrow(1, 0, half)
	if err != nil {
		return nil, err
	}

	b, err := x.Narrow(1, half, half)
	if err != nil {
		return nil, err
	}

	out := a.RawData()
	gate := b.RawData()

	for i := range out {
		t := math.Tanh(float64(out[i]))
		s := 1 / (1 + math.Exp(-float64(gate[i])))
		out[i] = float32(t * s)
	}

	return a, nil
}
