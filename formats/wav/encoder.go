// SPDX-License-Identifier: EPL-2.0

package wav

import (
	"fmt"
	"io"
	"math"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/ik5/audroute/audio"
)

type sink struct {
	enc    *wav.Encoder
	buf    *goaudio.IntBuffer
	scale  float64
	closed bool
}

func (s *sink) WriteSamples(src []float32) error {
	if s.closed {
		return io.ErrClosedPipe
	}
	if cap(s.buf.Data) < len(src) {
		s.buf.Data = make([]int, len(src))
	}
	s.buf.Data = s.buf.Data[:len(src)]

	for i, v := range src {
		x := math.Max(-1, math.Min(1, float64(v)))
		s.buf.Data[i] = int(math.Round(x * s.scale))
	}

	if err := s.enc.Write(s.buf); err != nil {
		return fmt.Errorf("%w", err)
	}
	return nil
}

// Close patches the RIFF header sizes. The underlying writer stays open.
func (s *sink) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	if err := s.enc.Close(); err != nil {
		return fmt.Errorf("%w", err)
	}
	return nil
}

// Encoder writes integer PCM WAV files at 16, 24 or 32 bits.
type Encoder struct{}

func (Encoder) Encode(w io.WriteSeeker, sampleRate, channels, bitDepth int) (audio.Sink, error) {
	switch bitDepth {
	case 16, 24, 32:
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedBitDepth, bitDepth)
	}
	if sampleRate <= 0 || channels <= 0 {
		return nil, ErrUnsupportedWavLayout
	}

	return &sink{
		enc: wav.NewEncoder(w, sampleRate, bitDepth, channels, pcmFormat),
		buf: &goaudio.IntBuffer{
			Format:         &goaudio.Format{NumChannels: channels, SampleRate: sampleRate},
			SourceBitDepth: bitDepth,
		},
		scale: float64(int64(1)<<(bitDepth-1) - 1),
	}, nil
}
