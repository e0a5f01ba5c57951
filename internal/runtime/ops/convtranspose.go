package ops

import (
	"errors"
	"fmt"

	"github.com/Player124413/PolGen-RVC/internal/runtime/tensor"
)

// ConvTranspose1D performs a deterministic CPU ConvTranspose1d.
// input: [batch, in_channels, length]
// kernel: [in_channels, out_channels/groups, kernel_size]
func ConvTranspose1D(input, kernel, bias *tensor.Tensor, stride, padding, outputPadding, dilation, groups int64) (*tensor.Tensor, error) {
	if input == nil || kernel == nil {
		return nil, errors.New("ops: convtranspose1d requires non-nil input/kernel")
	}

	if stride <= 0 || dilation <= 0 || groups <= 0 {
		return nil, errors.New("ops: convtranspose1d stride/dilation/groups must be > 0")
	}

	if outputPadding < 0 || outputPadding >= stride {
		return nil, fmt.Errorf("ops: convtranspose1d output_padding must be in [0, stride), got %d", outputPadding)
	}

	inShape := input.Shape()
	kShape := kernel.Shape()

	if len(inShape) != 3 || len(kShape) != 3 {
		return nil, fmt.Errorf("ops: convtranspose1d expects input/kernel rank 3, got %v and %v", inShape, kShape)
	}

	batch, inCh, inLen := inShape[0], inShape[1], inShape[2]
	outPerGroup, kSize := kShape[1], kShape[2]

	if kShape[0] != inCh {
		return nil, fmt.Errorf("ops: convtranspose1d kernel in_channels mismatch %d vs %d", kShape[0], inCh)
	}

	if inCh%groups != 0 {
		return nil, fmt.Errorf("ops: convtranspose1d in_channels %d must be divisible by groups %d", inCh, groups)
	}

	outCh := outPerGroup * groups
	inPerGroup := inCh / groups

	var biasData []float32
	if bias != nil {
		bShape := bias.Shape()
		if len(bShape) != 1 || bShape[0] != outCh {
			return nil, fmt.Errorf("ops: convtranspose1d bias shape %v does not match out_channels %d", bShape, outCh)
		}

		biasData = bias.RawData()
	}

	outLen := (inLen-1)*stride - 2*padding + dilation*(kSize-1) + outputPadding + 1
	if outLen <= 0 {
		return nil, fmt.Errorf("ops: convtranspose1d produced non-positive output length %d", outLen)
	}

	out, err := tensor.Zeros([]int64{batch, outCh, outLen})
	if err != nil {
		return nil, err
	}

	inData := input.RawData()
	kData := kernel.RawData()
	outData := out.RawData()

	for b := range batch {
		for ic := range inCh {
			g := ic / inPerGroup
			ocBase := g * outPerGroup
			inRow := inData[(b*inCh+ic)*inLen : (b*inCh+ic+1)*inLen]

			for ix, inVal := range inRow {
				if inVal == 0 {
					continue
				}

				origin := int64(ix)*stride - padding
				for ocg := range outPerGroup {
					oc := ocBase + ocg
					kRow := kData[(ic*outPerGroup+ocg)*kSize : (ic*outPerGroup+ocg+1)*kSize]
					outRow := outData[(b*outCh+oc)*outLen : (b*outCh+oc+1)*outLen]

					for kx := range kSize {
						outPos := origin + kx*dilation
						if outPos >= 0 && outPos < outLen {
							outRow[outPos] += inVal * kRow[kx]
						}
					}
				}
			}
		}

		if biasData != nil {
			for oc := range outCh {
				outRow := outData[(b*outCh+oc)*outLen : (b*outCh+oc+1)*outLen]

				bv := biasData[oc]
				for i := range outRow {
					outRow[i] += bv
				}
			}
		}
	}

	return out, nil
}
