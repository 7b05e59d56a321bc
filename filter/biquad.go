// SPDX-License-Identifier: EPL-2.0

package filter

import (
	"fmt"
	"math"
	"strconv"
)

func init() {
	register("lowpass", "f", func(rate float64, channels int) (Filter, error) {
		return newBiquad("lowpass", rate, channels, 1000), nil
	})
	register("highpass", "f", func(rate float64, channels int) (Filter, error) {
		return newBiquad("highpass", rate, channels, 100), nil
	})
}

// biquad is a second order low or high pass using the RBJ cookbook
// coefficients, run in direct form I with per channel history.
type biquad struct {
	kind     string
	rate     float64
	channels int
	freq     float64
	q        float64

	b0, b1, b2, a1, a2 float64

	x1, x2, y1, y2 []float64
}

func newBiquad(kind string, rate float64, channels int, freq float64) *biquad {
	b := &biquad{
		kind:     kind,
		rate:     rate,
		channels: channels,
		freq:     freq,
		q:        math.Sqrt2 / 2,
		x1:       make([]float64, channels),
		x2:       make([]float64, channels),
		y1:       make([]float64, channels),
		y2:       make([]float64, channels),
	}
	b.design()
	return b
}

func (b *biquad) Name() string { return b.kind }

func (b *biquad) design() {
	w0 := 2 * math.Pi * b.freq / b.rate
	cosw, sinw := math.Cos(w0), math.Sin(w0)
	alpha := sinw / (2 * b.q)
	a0 := 1 + alpha

	if b.kind == "lowpass" {
		b.b0 = (1 - cosw) / 2 / a0
		b.b1 = (1 - cosw) / a0
	} else {
		b.b0 = (1 + cosw) / 2 / a0
		b.b1 = -(1 + cosw) / a0
	}
	b.b2 = b.b0
	b.a1 = -2 * cosw / a0
	b.a2 = (1 - alpha) / a0
}

func (b *biquad) Process(samples []float32) error {
	for i, s := range samples {
		ch := i % b.channels
		x := float64(s)
		y := b.b0*x + b.b1*b.x1[ch] + b.b2*b.x2[ch] - b.a1*b.y1[ch] - b.a2*b.y2[ch]
		b.x2[ch], b.x1[ch] = b.x1[ch], x
		b.y2[ch], b.y1[ch] = b.y1[ch], y
		samples[i] = float32(y)
	}
	return nil
}

func (b *biquad) Set(key, value string) error {
	x, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fmt.Errorf("%w: %s=%q", ErrInvalidValue, key, value)
	}

	switch key {
	case "f", "frequency":
		if x <= 0 || x >= b.rate/2 {
			return fmt.Errorf("%w: cutoff %v Hz outside (0, %v)", ErrInvalidValue, x, b.rate/2)
		}
		b.freq = x
	case "q":
		if x <= 0 {
			return fmt.Errorf("%w: q %v", ErrInvalidValue, x)
		}
		b.q = x
	default:
		return fmt.Errorf("%w: %s has no %q", ErrUnknownParameter, b.kind, key)
	}
	b.design()
	return nil
}

func (b *biquad) Reset() {
	clear(b.x1)
	clear(b.x2)
	clear(b.y1)
	clear(b.y2)
}
