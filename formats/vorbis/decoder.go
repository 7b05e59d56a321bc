// SPDX-License-Identifier: EPL-2.0

// Package vorbis decodes Ogg Vorbis through github.com/jfreymuth/oggvorbis.
package vorbis

import (
	"errors"
	"fmt"
	"io"

	"github.com/ik5/audroute/audio"
	"github.com/jfreymuth/oggvorbis"
)

var ErrNotSeekable = errors.New("vorbis input is not seekable")

// oggReader is the part of oggvorbis.Reader the source uses.
type oggReader interface {
	SampleRate() int
	Channels() int
	Read([]float32) (int, error)
}

// positioner is implemented by oggvorbis.Reader when built over an
// io.ReadSeeker.
type positioner interface {
	SetPosition(pos int64) error
	Length() int64
}

type source struct {
	dec        oggReader
	sampleRate int
	channels   int
	seekable   bool
}

func (s *source) SampleRate() int { return s.sampleRate }
func (s *source) Channels() int   { return s.channels }
func (s *source) Close() error    { return nil }
func (s *source) BufSize() int    { return 4096 }

func (s *source) Frames() int64 {
	if p, ok := s.dec.(positioner); ok && s.seekable {
		return p.Length()
	}
	return -1
}

func (s *source) SeekFrame(frame int64) error {
	p, ok := s.dec.(positioner)
	if !ok || !s.seekable {
		return ErrNotSeekable
	}
	if err := p.SetPosition(frame); err != nil {
		return fmt.Errorf("%w", err)
	}
	return nil
}

// ReadSamples returns whole frames only; oggvorbis counts interleaved values.
func (s *source) ReadSamples(dst []float32) (int, error) {
	dst = dst[:len(dst)-len(dst)%s.channels]
	if len(dst) == 0 {
		return 0, nil
	}

	n, err := s.dec.Read(dst)
	if n == 0 && err == nil {
		return 0, nil
	}
	return n, err
}

type Decoder struct{}

func (Decoder) Decode(r io.Reader) (audio.Source, error) {
	dec, err := oggvorbis.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w", err)
	}

	_, seekable := r.(io.Seeker)
	return &source{
		dec:        dec,
		sampleRate: dec.SampleRate(),
		channels:   dec.Channels(),
		seekable:   seekable,
	}, nil
}
