// SPDX-License-Identifier: EPL-2.0

// Package mp3 decodes MPEG-1/2 layer III through github.com/hajimehoshi/go-mp3.
// The decoder always produces 16-bit stereo.
package mp3

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	gomp3 "github.com/hajimehoshi/go-mp3"
	"github.com/ik5/audroute/audio"
)

// go-mp3 output is always stereo int16.
const (
	channels   = 2
	frameBytes = 4
)

var ErrNotSeekable = errors.New("mp3 input is not seekable")

// mp3Reader is the part of gomp3.Decoder the source uses.
type mp3Reader interface {
	Read([]byte) (int, error)
	SampleRate() int
}

type source struct {
	dec        mp3Reader
	sampleRate int
	buf        []byte
}

func (s *source) SampleRate() int { return s.sampleRate }
func (s *source) Channels() int   { return channels }
func (s *source) Close() error    { return nil }
func (s *source) BufSize() int    { return cap(s.buf) / 2 }

// Frames uses the decoder's byte length, which is only known when the
// input could seek.
func (s *source) Frames() int64 {
	l, ok := s.dec.(interface{ Length() int64 })
	if !ok || l.Length() < 0 {
		return -1
	}
	return l.Length() / frameBytes
}

func (s *source) SeekFrame(frame int64) error {
	sk, ok := s.dec.(io.Seeker)
	if !ok {
		return ErrNotSeekable
	}
	if _, err := sk.Seek(frame*frameBytes, io.SeekStart); err != nil {
		return fmt.Errorf("%w", err)
	}
	return nil
}

func (s *source) ReadSamples(dst []float32) (int, error) {
	if len(dst) == 0 {
		return 0, nil
	}

	need := len(dst) * 2
	if cap(s.buf) < need {
		s.buf = make([]byte, need)
	}
	s.buf = s.buf[:need]

	n, err := s.dec.Read(s.buf)
	samples := n / 2
	if samples == 0 {
		if err != nil {
			return 0, err
		}
		return 0, nil
	}

	for i := range samples {
		dst[i] = float32(int16(binary.LittleEndian.Uint16(s.buf[2*i:]))) / 32768.0
	}
	return samples, err
}

type Decoder struct{}

func (Decoder) Decode(r io.Reader) (audio.Source, error) {
	dec, err := gomp3.NewDecoder(r)
	if err != nil {
		return nil, fmt.Errorf("%w", err)
	}

	return &source{
		dec:        dec,
		sampleRate: dec.SampleRate(),
		buf:        make([]byte, 8192),
	}, nil
}
