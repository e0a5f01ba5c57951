package vc

import (
	"fmt"

	"github.com/Player124413/PolGen-RVC/internal/audio"
	"github.com/Player124413/PolGen-RVC/internal/f0"
)

// ConversionRequest carries one conversion job with every tuning knob.
// Defaults match DefaultRequest; Validate enforces the documented ranges
// before any model is touched.
type ConversionRequest struct {
	Model   string
	Speaker int

	// Audio is the decoded source clip at its original rate.
	Audio *audio.Buffer

	// PitchShift transposes the extracted pitch, in semitones.
	PitchShift float64

	PitchMethod f0.Method

	// IndexRate blends embeddings toward the voice's retrieval index.
	IndexRate float64

	// FilterRadius applies a median filter to the pitch track when >= 3.
	FilterRadius int

	// RMSMixRate moves the output loudness envelope toward the source.
	RMSMixRate float64

	// Protect preserves original embeddings on unvoiced frames when < 0.5.
	Protect float64

	Autotune bool

	F0Min float64
	F0Max float64

	// CrepeHop is the analysis hop for the crepe methods, in samples.
	CrepeHop int

	// TruncateRate keeps only that trailing fraction of the output when in
	// (0, 1).
	TruncateRate float64

	// Seed fixes the sampling noise; 0 draws a random seed.
	Seed int64

	OutputFormat audio.Format
}

// DefaultRequest returns a request with the standard knob settings.
func DefaultRequest() ConversionRequest {
	return ConversionRequest{
		PitchMethod:  f0.MethodRMVPEPlus,
		IndexRate:    0,
		FilterRadius: 3,
		RMSMixRate:   0.25,
		Protect:      0.33,
		F0Min:        50,
		F0Max:        1100,
		CrepeHop:     128,
		OutputFormat: audio.FormatWAV,
	}
}

// Validate checks every knob against its documented range.
func (r *ConversionRequest) Validate() error {
	switch {
	case r.Model == "":
		return fmt.Errorf("%w: model name is required", ErrInvalidParameter)
	case r.Audio == nil || len(r.Audio.Samples) == 0:
		return fmt.Errorf("%w: audio is required", ErrInvalidParameter)
	case r.Speaker < 0:
		return fmt.Errorf("%w: speaker must be >= 0", ErrInvalidParameter)
	case r.PitchShift < -24 || r.PitchShift > 24:
		return fmt.Errorf("%w: pitch shift %v out of [-24, 24]", ErrInvalidParameter, r.PitchShift)
	case r.IndexRate < 0 || r.IndexRate > 1:
		return fmt.Errorf("%w: index rate %v out of [0, 1]", ErrInvalidParameter, r.IndexRate)
	case r.FilterRadius < 0 || r.FilterRadius > 7:
		return fmt.Errorf("%w: filter radius %d out of [0, 7]", ErrInvalidParameter, r.FilterRadius)
	case r.RMSMixRate < 0 || r.RMSMixRate > 1:
		return fmt.Errorf("%w: rms mix rate %v out of [0, 1]", ErrInvalidParameter, r.RMSMixRate)
	case r.Protect < 0 || r.Protect > 0.5:
		return fmt.Errorf("%w: protect %v out of [0, 0.5]", ErrInvalidParameter, r.Protect)
	case r.F0Min <= 0 || r.F0Max <= r.F0Min:
		return fmt.Errorf("%w: pitch range [%v, %v]", ErrInvalidParameter, r.F0Min, r.F0Max)
	case r.CrepeHop < 8 || r.CrepeHop > 512:
		return fmt.Errorf("%w: crepe hop %d out of [8, 512]", ErrInvalidParameter, r.CrepeHop)
	case r.TruncateRate < 0 || r.TruncateRate >= 1:
		return fmt.Errorf("%w: truncate rate %v out of [0, 1)", ErrInvalidParameter, r.TruncateRate)
	}

	if _, err := f0.ParseMethod(string(r.PitchMethod)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidParameter, err)
	}

	return nil
}
