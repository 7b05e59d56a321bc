// SPDX-License-Identifier: EPL-2.0

// Package flac decodes FLAC streams through github.com/mewkiz/flac.
package flac

import (
	"errors"
	"fmt"
	"io"

	"github.com/ik5/audroute/audio"
	"github.com/mewkiz/flac"
	"github.com/mewkiz/flac/frame"
)

var ErrUnsupportedLayout = errors.New("unsupported FLAC layout")

// frameParser is the part of flac.Stream the source uses.
type frameParser interface {
	ParseNext() (*frame.Frame, error)
	Close() error
}

type source struct {
	stream     frameParser
	sampleRate int
	channels   int
	bitDepth   int
	frames     int64

	// decoded samples of the current FLAC frame, per channel
	pending [][]int32
	offset  int
	eof     bool
}

func (s *source) SampleRate() int { return s.sampleRate }
func (s *source) Channels() int   { return s.channels }
func (s *source) BufSize() int    { return 4096 }
func (s *source) Frames() int64   { return s.frames }

func (s *source) Close() error {
	if err := s.stream.Close(); err != nil {
		return fmt.Errorf("%w", err)
	}
	return nil
}

func (s *source) next() error {
	f, err := s.stream.ParseNext()
	if err != nil {
		return err
	}
	if len(f.Subframes) != s.channels {
		return fmt.Errorf("%w: frame has %d subframes", ErrUnsupportedLayout, len(f.Subframes))
	}
	for ch, sub := range f.Subframes {
		s.pending[ch] = sub.Samples
	}
	s.offset = 0
	return nil
}

func (s *source) ReadSamples(dst []float32) (int, error) {
	frames := len(dst) / s.channels
	if frames == 0 {
		return 0, nil
	}

	scale := float32(int64(1) << (s.bitDepth - 1))
	written := 0
	for written < frames {
		if s.offset >= len(s.pending[0]) {
			if s.eof {
				break
			}
			if err := s.next(); err != nil {
				if errors.Is(err, io.EOF) {
					s.eof = true
					break
				}
				return written * s.channels, fmt.Errorf("%w", err)
			}
			continue
		}

		n := min(frames-written, len(s.pending[0])-s.offset)
		for i := range n {
			for ch := range s.channels {
				dst[(written+i)*s.channels+ch] = float32(s.pending[ch][s.offset+i]) / scale
			}
		}
		written += n
		s.offset += n
	}

	if written == 0 && s.eof {
		return 0, io.EOF
	}
	return written * s.channels, nil
}

type Decoder struct{}

func (Decoder) Decode(r io.Reader) (audio.Source, error) {
	stream, err := flac.New(r)
	if err != nil {
		return nil, fmt.Errorf("%w", err)
	}

	info := stream.Info
	if info == nil || info.NChannels == 0 || info.BitsPerSample == 0 || info.BitsPerSample > 32 {
		_ = stream.Close()
		return nil, ErrUnsupportedLayout
	}

	frames := int64(-1)
	if info.NSamples > 0 {
		frames = int64(info.NSamples)
	}
	return newSource(stream, int(info.SampleRate), int(info.NChannels), int(info.BitsPerSample), frames), nil
}

func newSource(stream frameParser, sampleRate, channels, bitDepth int, frames int64) *source {
	return &source{
		stream:     stream,
		sampleRate: sampleRate,
		channels:   channels,
		bitDepth:   bitDepth,
		frames:     frames,
		pending:    make([][]int32, channels),
	}
}
