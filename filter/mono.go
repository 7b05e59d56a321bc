// SPDX-License-Identifier: EPL-2.0

package filter

import "fmt"

func init() {
	register("mono", "", func(_ float64, channels int) (Filter, error) {
		return mono{channels: channels}, nil
	})
}

// mono writes the mean of every frame into each of its channels.
type mono struct {
	channels int
}

func (mono) Name() string { return "mono" }

func (m mono) Process(samples []float32) error {
	if m.channels == 1 {
		return nil
	}
	for i := 0; i+m.channels <= len(samples); i += m.channels {
		var sum float32
		for _, s := range samples[i : i+m.channels] {
			sum += s
		}
		avg := sum / float32(m.channels)
		for c := range m.channels {
			samples[i+c] = avg
		}
	}
	return nil
}

func (mono) Set(key, _ string) error {
	return fmt.Errorf("%w: mono has no %q", ErrUnknownParameter, key)
}

func (mono) Reset() {}
