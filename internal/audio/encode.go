package audio

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/cwbudde/wav"
	goaudio "github.com/go-audio/audio"
)

const encodeBitDepth = 16

// Format is the caller-selected output container.
type Format string

const (
	FormatWAV  Format = "wav"
	FormatFLAC Format = "flac"
	FormatMP3  Format = "mp3"
)

// ErrUnsupportedFormat marks formats the core does not encode itself. FLAC
// and MP3 belong to the post-processing collaborator.
var ErrUnsupportedFormat = errors.New("audio: unsupported output format")

// ParseFormat normalizes a format string.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case FormatWAV:
		return FormatWAV, nil
	case FormatFLAC:
		return FormatFLAC, nil
	case FormatMP3:
		return FormatMP3, nil
	default:
		return "", fmt.Errorf("audio: unknown output format %q", s)
	}
}

// Encode serializes a buffer in the requested format.
func Encode(buf *Buffer, format Format) ([]byte, error) {
	switch format {
	case FormatWAV:
		return EncodeWAV(buf)
	case FormatFLAC, FormatMP3:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	default:
		return nil, fmt.Errorf("audio: unknown output format %q", format)
	}
}

// EncodeWAV encodes a mono buffer as 16-bit PCM WAV bytes.
func EncodeWAV(buf *Buffer) ([]byte, error) {
	if buf == nil || buf.SampleRate <= 0 {
		return nil, errors.New("audio: encode requires a buffer with a positive sample rate")
	}

	var out bytes.Buffer

	// wav.NewEncoder requires an io.WriteSeeker; bytes.Buffer is not one.
	sw := &seekBuffer{buf: &out}

	enc := wav.NewEncoder(sw, buf.SampleRate, encodeBitDepth, 1, 1) // 1 = PCM

	pcmBuf := &goaudio.Float32Buffer{
		Data:           buf.Samples,
		Format:         &goaudio.Format{SampleRate: buf.SampleRate, NumChannels: 1},
		SourceBitDepth: encodeBitDepth,
	}

	if err := enc.Write(pcmBuf); err != nil {
		return nil, fmt.Errorf("audio: writing PCM: %w", err)
	}

	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("audio: closing encoder: %w", err)
	}

	return out.Bytes(), nil
}

// seekBuffer wraps a bytes.Buffer to satisfy io.WriteSeeker.
type seekBuffer struct {
	buf *bytes.Buffer
	pos int
}

func (s *seekBuffer) Write(p []byte) (int, error) {
	if s.pos == s.buf.Len() {
		n, err := s.buf.Write(p)
		s.pos += n

		return n, err
	}

	// Writing in the middle: overwrite existing bytes, extend if needed.
	data := s.buf.Bytes()

	n := copy(data[s.pos:], p)
	if n < len(p) {
		data = append(data, p[n:]...)
		s.buf.Reset()
		s.buf.Write(data)
		n = len(p)
	}

	s.pos += n

	return n, nil
}

func (s *seekBuffer) Seek(offset int64, whence int) (int64, error) {
	var newPos int

	switch whence {
	case 0: // io.SeekStart
		newPos = int(offset)
	case 1: // io.SeekCurrent
		newPos = s.pos + int(offset)
	case 2: // io.SeekEnd
		newPos = s.buf.Len() + int(offset)
	}

	if newPos < 0 {
		return 0, fmt.Errorf("audio: seek before start")
	}

	s.pos = newPos

	return int64(newPos), nil
}
