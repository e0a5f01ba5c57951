// Package ops implements the convolution and activation primitives used by
// the native synthesizer.
package ops

import (
	"errors"
	"fmt"

	"github.com/Player124413/PolGen-RVC/internal/runtime/tensor"
)

// Conv1D performs a deterministic CPU Conv1d.
// input: [batch, in_channels, length]
// kernel: [out_channels, in_channels/groups, kernel_size]
func Conv1D(input, kernel, bias *tensor.Tensor, stride, padding, dilation, groups int64) (*tensor.Tensor, error) {
	if input == nil || kernel == nil {
		return nil, errors.New("ops: conv1d requires non-nil input/kernel")
	}

	if stride <= 0 || dilation <= 0 || groups <= 0 {
		return nil, errors.New("ops: conv1d stride/dilation/groups must be > 0")
	}

	inShape := input.Shape()
	kShape := kernel.Shape()

	if len(inShape) != 3 || len(kShape) != 3 {
		return nil, fmt.Errorf("ops: conv1d expects input/kernel rank 3, got %v and %v", inShape, kShape)
	}

	batch, inCh, length := inShape[0], inShape[1], inShape[2]
	outCh, kInCh, kSize := kShape[0], kShape[1], kShape[2]

	if inCh%groups != 0 || outCh%groups != 0 {
		return nil, fmt.Errorf("ops: conv1d channels not divisible by groups (%d, %d, groups=%d)", inCh, outCh, groups)
	}

	if kInCh != inCh/groups {
		return nil, fmt.Errorf("ops: conv1d kernel in_channels/groups mismatch: got %d want %d", kInCh, inCh/groups)
	}

	var biasData []float32
	if bias != nil {
		bShape := bias.Shape()
		if len(bShape) != 1 || bShape[0] != outCh {
			return nil, fmt.Errorf("ops: conv1d bias shape %v does not match out_channels %d", bShape, outCh)
		}

		biasData = bias.RawData()
	}

	outLen := (length+2*padding-dilation*(kSize-1)-1)/stride + 1
	if outLen <= 0 {
		return nil, fmt.Errorf("ops: conv1d produced non-positive output length %d", outLen)
	}

	out, err := tensor.Zeros([]int64{batch, outCh, outLen})
	if err != nil {
		return nil, err
	}

	inData := input.RawData()
	kData := kernel.RawData()
	outData := out.RawData()

	inPerGroup := inCh / groups
	outPerGroup := outCh / groups

	for b := range batch {
		parallelFor(int(outCh), getConvWorkers(), func(ocLo, ocHi int) {
			for oc := int64(ocLo); oc < int64(ocHi); oc++ {
				g := oc / outPerGroup
				inStart := g * inPerGroup
				outRow := outData[(b*outCh+oc)*outLen : (b*outCh+oc+1)*outLen]

				for ox := range outLen {
					sum := float32(0)
					if biasData != nil {
						sum = biasData[oc]
					}

					origin := ox*stride - padding
					for ic := range inPerGroup {
						inRow := inData[(b*inCh+inStart+ic)*length : (b*inCh+inStart+ic+1)*length]
						kRow := kData[(oc*kInCh+ic)*kSize : (oc*kInCh+ic+1)*kSize]

						for kx := range kSize {
							inPos := origin + kx*dilation
							if inPos < 0 || inPos >= length {
								continue
							}

							sum += inRow[inPos] * kRow[kx]
						}
					}

					outRow[ox] = sum
				}
			}
		})
	}

	return out, nil
}
