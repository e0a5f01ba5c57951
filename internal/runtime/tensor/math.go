package tensor

import (
	"errors"
	"fmt"
	"math"
)

// Softmax applies softmax along dim.
func Softmax(x *Tensor, dim int) (*Tensor, error) {
	if x == nil {
		return nil, errors.New("tensor: softmax on nil tensor")
	}

	dim, err := normalizeDim(dim, len(x.shape))
	if err != nil {
		return nil, fmt.Errorf("tensor: softmax: %w", err)
	}

	axis := x.shape[dim]
	if axis <= 0 {
		return nil, fmt.Errorf("tensor: softmax axis dimension must be > 0, got %d", axis)
	}

	inner := int64(1)
	for i := dim + 1; i < len(x.shape); i++ {
		inner *= x.shape[i]
	}

	outer := int64(1)
	for i := range dim {
		outer *= x.shape[i]
	}

	out := x.Clone()

	for o := range outer {
		for in := range inner {
			base := o*axis*inner + in

			maxV := float32(math.Inf(-1))
			for k := range axis {
				if v := out.data[base+k*inner]; v > maxV {
					maxV = v
				}
			}

			var sum float64
			for k := range axis {
				i := base + k*inner
				e := math.Exp(float64(out.data[i] - maxV))
				out.data[i] = float32(e)
				sum += e
			}

			if sum == 0 {
				return nil, errors.New("tensor: softmax encountered zero normalization sum")
			}

			inv := float32(1.0 / sum)
			for k := range axis {
				out.data[base+k*inner] *= inv
			}
		}
	}

	return out, nil
}

// LayerNorm normalizes the last dimension and applies optional weight/bias.
func LayerNorm(x, weight, bias *Tensor, eps float32) (*Tensor, error) {
	if x == nil {
		return nil, errors.New("tensor: layernorm input is nil")
	}

	if x.Rank() < 1 {
		return nil, errors.New("tensor: layernorm requires rank >= 1")
	}

	if eps <= 0 {
		return nil, errors.New("tensor: layernorm eps must be > 0")
	}

	d := x.shape[len(x.shape)-1]
	if d <= 0 {
		return nil, errors.New("tensor: layernorm last dimension must be > 0")
	}

	if weight != nil && (weight.Rank() != 1 || weight.shape[0] != d) {
		return nil, fmt.Errorf("tensor: layernorm weight shape %v does not match last dimension %d", weight.shape, d)
	}

	if bias != nil && (bias.Rank() != 1 || bias.shape[0] != d) {
		return nil, fmt.Errorf("tensor: layernorm bias shape %v does not match last dimension %d", bias.shape, d)
	}

	out := x.Clone()
	dd := int(d)

	for o := range len(x.data) / dd {
		row := out.data[o*dd : (o+1)*dd]

		var mean float64
		for _, v := range row {
			mean += float64(v)
		}

		mean /= float64(dd)

		var variance float64
		for _, v := range row {
			delta := float64(v) - mean
			variance += delta * delta
		}

		variance /= float64(dd)

		invStd := float32(1.0 / math.Sqrt(variance+float64(eps)))
		for i := range dd {
			n := (row[i] - float32(mean)) * invStd
			if weight != nil {
				n *= weight.data[i]
			}

			if bias != nil {
				n += bias.data[i]
			}

			row[i] = n
		}
	}

	return out, nil
}

// MatMul multiplies two tensors of rank 2 or 3. Rank-3 inputs must share the
// same leading batch dimension.
func MatMul(a, b *Tensor) (*Tensor, error) {
	if a == nil || b == nil {
		return nil, errors.New("tensor: matmul requires non-nil inputs")
	}

	if a.Rank() != b.Rank() || a.Rank() < 2 || a.Rank() > 3 {
		return nil, fmt.Errorf("tensor: matmul requires matching rank 2 or 3, got %d and %d", a.Rank(), b.Rank())
	}

	batch := int64(1)
	if a.Rank() == 3 {
		if a.shape[0] != b.shape[0] {
			return nil, fmt.Errorf("tensor: matmul batch mismatch: %d vs %d", a.shape[0], b.shape[0])
		}

		batch = a.shape[0]
	}

	m := a.shape[a.Rank()-2]
	k := a.shape[a.Rank()-1]
	n := b.shape[b.Rank()-1]

	if b.shape[b.Rank()-2] != k {
		return nil, fmt.Errorf("tensor: matmul mismatch: A %v and B %v", a.shape, b.shape)
	}

	outData := make([]float32, batch*m*n)
	mI, kI, nI := int(m), int(k), int(n)

	for bi := range int(batch) {
		aBase := bi * mI * kI
		bBase := bi * kI * nI
		oBase := bi * mI * nI

		for i := range mI {
			aRow := a.data[aBase+i*kI : aBase+(i+1)*kI]
			oRow := outData[oBase+i*nI : oBase+(i+1)*nI]

			for kk, av := range aRow {
				if av == 0 {
					continue
				}

				bRow := b.data[bBase+kk*nI : bBase+(kk+1)*nI]
				for j := range oRow {
					oRow[j] += av * bRow[j]
				}
			}
		}
	}

	outShape := []int64{m, n}
	if a.Rank() == 3 {
		outShape = []int64{batch, m, n}
	}

	return newOwned(outData, outShape), nil
}

// Linear applies y = x * W^T + b where weight shape is [out, in].
func Linear(x, weight, bias *Tensor) (*Tensor, error) {
	if x == nil || weight == nil {
		return nil, errors.New("tensor: linear requires non-nil x and weight")
	}

	if x.Rank() < 1 {
		return nil, errors.New("tensor: linear requires x rank >= 1")
	}

	if weight.Rank() != 2 {
		return nil, fmt.Errorf("tensor: linear weight must be rank 2, got %d", weight.Rank())
	}

	in := x.shape[x.Rank()-1]
	out := weight.shape[0]

	if weight.shape[1] != in {
		return nil, fmt.Errorf("tensor: linear mismatch: x last dim %d, weight in dim %d", in, weight.shape[1])
	}

	if bias != nil && (bias.Rank() != 1 || bias.shape[0] != out) {
		return nil, fmt.Errorf("tensor: linear bias shape %v does not match out dim %d", bias.shape, out)
	}

	inI, outI := int(in), int(out)
	batch := len(x.data) / inI
	outData := make([]float32, batch*outI)

	for bIdx := range batch {
		xRow := x.data[bIdx*inI : (bIdx+1)*inI]
		yBase := bIdx * outI

		for o := range outI {
			sum := DotProduct(xRow, weight.data[o*inI:(o+1)*inI])
			if bias != nil {
				sum += bias.data[o]
			}

			outData[yBase+o] = sum
		}
	}

	outShape := make([]int64, x.Rank())
	copy(outShape, x.shape[:x.Rank()-1])
	outShape[x.Rank()-1] = out

	return newOwned(outData, outShape), nil
}

// DotProduct returns the dot product of two equal-length slices.
func DotProduct(a, b []float32) float32 {
	var sum float32

	n := min(len(a), len(b))
	for i := range n {
		sum += a[i] * b[i]
	}

	return sum
}
