package audio

import (
	"errors"
	"math"
	"testing"
)

func sine(freq float64, sampleRate, n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(0.5 * math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate)))
	}

	return out
}

func TestEncodeDecodeWAVRoundTrip(t *testing.T) {
	in := NewBuffer(sine(440, 16000, 16000), 16000)

	data, err := EncodeWAV(in)
	if err != nil {
		t.Fatalf("EncodeWAV: %v", err)
	}

	out, err := DecodeWAV(data)
	if err != nil {
		t.Fatalf("DecodeWAV: %v", err)
	}

	if out.SampleRate != 16000 {
		t.Fatalf("sample rate = %d, want 16000", out.SampleRate)
	}

	if len(out.Samples) != len(in.Samples) {
		t.Fatalf("decoded %d samples, want %d", len(out.Samples), len(in.Samples))
	}

	// 16-bit quantization bounds the round-trip error.
	for i := 0; i < len(in.Samples); i += 1000 {
		if diff := math.Abs(float64(in.Samples[i] - out.Samples[i])); diff > 1e-3 {
			t.Fatalf("sample %d: round-trip error %v too large", i, diff)
		}
	}
}

func TestDecodeWAVRejectsGarbage(t *testing.T) {
	if _, err := DecodeWAV(nil); err == nil {
		t.Fatalf("DecodeWAV(nil) succeeded, want error")
	}

	if _, err := DecodeWAV([]byte("definitely not a wav file")); err == nil {
		t.Fatalf("DecodeWAV(garbage) succeeded, want error")
	}
}

func TestEncodeUnsupportedFormats(t *testing.T) {
	buf := NewBuffer(sine(440, 16000, 160), 16000)

	for _, format := range []Format{FormatFLAC, FormatMP3} {
		_, err := Encode(buf, format)
		if !errors.Is(err, ErrUnsupportedFormat) {
			t.Fatalf("Encode(%s) err = %v, want ErrUnsupportedFormat", format, err)
		}
	}

	if _, err := Encode(buf, FormatWAV); err != nil {
		t.Fatalf("Encode(wav): %v", err)
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{in: "wav", want: FormatWAV},
		{in: " WAV ", want: FormatWAV},
		{in: "mp3", want: FormatMP3},
		{in: "flac", want: FormatFLAC},
		{in: "ogg", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tc := range tests {
		got, err := ParseFormat(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("ParseFormat(%q) succeeded, want error", tc.in)
			}

			continue
		}

		if err != nil || got != tc.want {
			t.Fatalf("ParseFormat(%q) = %v, %v; want %v", tc.in, got, err, tc.want)
		}
	}
}

func TestResamplePreservesDuration(t *testing.T) {
	in := NewBuffer(sine(440, 44100, 44100), 44100) // 1 second

	out, err := Resample(in, 16000)
	if err != nil {
		t.Fatalf("Resample: %v", err)
	}

	if out.SampleRate != 16000 {
		t.Fatalf("sample rate = %d, want 16000", out.SampleRate)
	}

	if got := len(out.Samples); got < 15999 || got > 16001 {
		t.Fatalf("resampled length = %d, want ~16000", got)
	}
}

func TestResampleSameRateIsACopy(t *testing.T) {
	in := NewBuffer(sine(440, 16000, 1600), 16000)

	out, err := Resample(in, 16000)
	if err != nil {
		t.Fatalf("Resample: %v", err)
	}

	out.Samples[0] = 42
	if in.Samples[0] == 42 {
		t.Fatalf("Resample aliased the input buffer")
	}
}

func TestMixRMSEnvelopeRateOneIsNoop(t *testing.T) {
	src := NewBuffer(sine(440, 16000, 8000), 16000)
	dst := NewBuffer(sine(440, 16000, 8000), 16000)
	want := append([]float32(nil), dst.Samples...)

	if err := MixRMSEnvelope(src, dst, 1); err != nil {
		t.Fatalf("MixRMSEnvelope: %v", err)
	}

	for i := range want {
		if dst.Samples[i] != want[i] {
			t.Fatalf("rate=1 modified sample %d", i)
		}
	}
}

func TestMixRMSEnvelopePullsLoudnessTowardSource(t *testing.T) {
	loud := NewBuffer(sine(440, 16000, 16000), 16000)

	quiet := NewBuffer(nil, 16000)
	quiet.Samples = make([]float32, 16000)
	for i, v := range loud.Samples {
		quiet.Samples[i] = v * 0.1
	}

	before := Peak(quiet.Samples)

	if err := MixRMSEnvelope(loud, quiet, 0); err != nil {
		t.Fatalf("MixRMSEnvelope: %v", err)
	}

	if after := Peak(quiet.Samples); after <= before*2 {
		t.Fatalf("envelope mix did not raise level: before %v, after %v", before, after)
	}
}

func TestMixRMSEnvelopeRejectsBadRate(t *testing.T) {
	buf := NewBuffer(sine(440, 16000, 160), 16000)

	if err := MixRMSEnvelope(buf, buf, 1.5); err == nil {
		t.Fatalf("rate 1.5 accepted, want error")
	}
}

func TestBufferCloneIsDeep(t *testing.T) {
	in := NewBuffer([]float32{1, 2, 3}, 16000)

	dup := in.Clone()
	dup.Samples[0] = 9

	if in.Samples[0] != 1 {
		t.Fatalf("Clone aliases samples")
	}
}
