// SPDX-License-Identifier: EPL-2.0

package filter

import (
	"fmt"
	"math"
	"strconv"
	"sync/atomic"
)

func init() {
	register("volume", "gain", func(float64, int) (Filter, error) {
		v := &volume{}
		v.gain.Store(math.Float32bits(1))
		return v, nil
	})
}

// volume scales every sample. gain is linear; db sets it in decibels.
type volume struct {
	gain atomic.Uint32
}

func (v *volume) Name() string { return "volume" }

func (v *volume) Process(samples []float32) error {
	g := math.Float32frombits(v.gain.Load())
	if g == 1 {
		return nil
	}
	for i := range samples {
		samples[i] *= g
	}
	return nil
}

func (v *volume) Set(key, value string) error {
	x, err := strconv.ParseFloat(value, 64)
	if err != nil || math.IsNaN(x) || math.IsInf(x, 0) {
		return fmt.Errorf("%w: %s=%q", ErrInvalidValue, key, value)
	}

	switch key {
	case "gain":
		if x < 0 {
			return fmt.Errorf("%w: negative gain %v", ErrInvalidValue, x)
		}
	case "db":
		x = math.Pow(10, x/20)
	default:
		return fmt.Errorf("%w: volume has no %q", ErrUnknownParameter, key)
	}
	v.gain.Store(math.Float32bits(float32(x)))
	return nil
}

func (v *volume) Reset() {}
