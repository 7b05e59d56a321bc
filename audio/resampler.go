// SPDX-License-Identifier: EPL-2.0

package audio

import (
	"errors"
	"fmt"
	"io"

	"github.com/ik5/audroute/utils"
)

// Resampler streams from src to target sample rate using cubic interpolation.
// Works on interleaved samples; preserves channel count. When downsampling
// a one-pole low-pass runs ahead of the interpolator.
type Resampler struct {
	src      Source
	dstRate  int
	ratio    float64 // source frames consumed per output frame
	channels int

	// window[1] and window[2] bracket the output position; window[0] and
	// window[3] are the outer spline points.
	window [4][]float32
	valid  [4]bool
	primed bool
	pos    float64
	eof    bool

	frame []float32

	lowpass []float32
	alpha   float32
}

func NewResampler(src Source, dstRate int) *Resampler {
	channels := src.Channels()
	r := &Resampler{
		src:      src,
		dstRate:  dstRate,
		ratio:    float64(src.SampleRate()) / float64(dstRate),
		channels: channels,
		frame:    make([]float32, channels),
		lowpass:  make([]float32, channels),
	}
	if r.ratio > 1 {
		r.alpha = float32(1 / r.ratio)
	}
	for i := range r.window {
		r.window[i] = make([]float32, channels)
	}
	return r
}

func (r *Resampler) SampleRate() int { return r.dstRate }
func (r *Resampler) Channels() int   { return r.channels }
func (r *Resampler) BufSize() int    { return r.src.BufSize() }

func (r *Resampler) Close() error {
	if err := r.src.Close(); err != nil {
		return fmt.Errorf("%w", err)
	}
	return nil
}

// Reset drops interpolation state, e.g. after the source was repositioned.
func (r *Resampler) Reset() {
	r.primed, r.eof, r.pos = false, false, 0
	r.valid = [4]bool{}
	clear(r.lowpass)
}

// readFrame pulls one source frame into r.frame.
func (r *Resampler) readFrame() (bool, error) {
	if r.eof {
		return false, nil
	}
	n, err := r.src.ReadSamples(r.frame)
	if err != nil && !errors.Is(err, io.EOF) {
		return false, fmt.Errorf("%w", err)
	}
	if errors.Is(err, io.EOF) {
		r.eof = true
	}
	if n < r.channels {
		return false, nil
	}
	if r.alpha > 0 {
		for c := range r.channels {
			r.lowpass[c] += r.alpha * (r.frame[c] - r.lowpass[c])
			r.frame[c] = r.lowpass[c]
		}
	}
	return true, nil
}

func (r *Resampler) advance() error {
	r.window[0], r.window[1], r.window[2], r.window[3] = r.window[1], r.window[2], r.window[3], r.window[0]
	r.valid[0], r.valid[1], r.valid[2] = r.valid[1], r.valid[2], r.valid[3]

	ok, err := r.readFrame()
	if ok {
		copy(r.window[3], r.frame)
	}
	r.valid[3] = ok
	return err
}

func (r *Resampler) prime() error {
	ok, err := r.readFrame()
	if err != nil || !ok {
		return err
	}
	if r.alpha > 0 {
		copy(r.lowpass, r.frame)
	}
	// The first frame doubles as the point before it.
	copy(r.window[0], r.frame)
	copy(r.window[1], r.frame)
	r.valid[0], r.valid[1] = true, true

	for i := 2; i < 4; i++ {
		ok, err := r.readFrame()
		if err != nil {
			return err
		}
		if !ok {
			copy(r.window[i], r.window[i-1])
			continue
		}
		copy(r.window[i], r.frame)
		r.valid[i] = true
	}
	r.primed = true
	return nil
}

// ReadSamples produces dst samples at the target rate.
// dst length should be a multiple of r.channels.
func (r *Resampler) ReadSamples(dst []float32) (int, error) {
	if len(dst)%r.channels != 0 {
		return 0, ErrInvalidDstSize
	}
	if !r.primed {
		if err := r.prime(); err != nil {
			return 0, err
		}
		if !r.primed {
			return 0, io.EOF
		}
	}

	frames := len(dst) / r.channels
	written := 0
	for written < frames {
		for r.pos >= 1 {
			r.pos--
			if err := r.advance(); err != nil {
				return written * r.channels, err
			}
		}
		if !r.valid[1] || !r.valid[2] {
			return written * r.channels, io.EOF
		}

		y3 := r.window[3]
		if !r.valid[3] {
			y3 = r.window[2]
		}
		x := float32(r.pos)
		out := dst[written*r.channels : (written+1)*r.channels]
		for c := range out {
			out[c] = utils.CubicInterpolate(r.window[0][c], r.window[1][c], r.window[2][c], y3[c], x)
		}

		written++
		r.pos += r.ratio
	}
	return written * r.channels, nil
}
