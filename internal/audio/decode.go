package audio

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/cwbudde/wav"
)

// ErrFormatMismatch is returned when a decoded WAV has a format the pipeline
// cannot consume.
var ErrFormatMismatch = errors.New("WAV format mismatch")

// DecodeWAV decodes WAV bytes into a mono float32 buffer at the file's own
// sample rate. Stereo input is mixed down by channel averaging.
func DecodeWAV(data []byte) (*Buffer, error) {
	if len(data) == 0 {
		return nil, errors.New("audio: empty WAV input")
	}

	r := bytes.NewReader(data)

	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return nil, errors.New("audio: invalid WAV file")
	}

	if dec.NumChans != 1 && dec.NumChans != 2 {
		return nil, fmt.Errorf("%w: %d channels, want mono or stereo", ErrFormatMismatch, dec.NumChans)
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("audio: reading PCM data: %w", err)
	}

	samples := buf.Data
	if dec.NumChans == 2 {
		mono := make([]float32, len(samples)/2)
		for i := range mono {
			mono[i] = (samples[2*i] + samples[2*i+1]) * 0.5
		}

		samples = mono
	}

	return &Buffer{
		SampleRate: int(dec.SampleRate),
		Samples:    samples,
	}, nil
}
