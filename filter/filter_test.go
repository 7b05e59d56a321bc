// SPDX-License-Identifier: EPL-2.0

package filter

import (
	"errors"
	"math"
	"testing"
)

func TestParse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		desc    string
		stages  int
		wantErr error
	}{
		{name: "single", desc: "volume=0.5", stages: 1},
		{name: "chain", desc: "volume:db=-6, lowpass=2000:q=0.9 ,mono", stages: 3},
		{name: "empty", desc: "  ", wantErr: ErrEmptyDescription},
		{name: "unknown", desc: "reverb", wantErr: ErrUnknownFilter},
		{name: "bad value", desc: "volume=loud", wantErr: ErrInvalidValue},
		{name: "bad key", desc: "lowpass=500:slope=12", wantErr: ErrUnknownParameter},
		{name: "cutoff above nyquist", desc: "highpass=30000", wantErr: ErrInvalidValue},
		{name: "mono value", desc: "mono=1", wantErr: ErrInvalidValue},
		{name: "missing equals", desc: "lowpass=500:q", wantErr: ErrInvalidValue},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			c, err := Parse(tt.desc, 48000, 2)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Parse(%q) error = %v, want %v", tt.desc, err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse(%q) error = %v", tt.desc, err)
			}
			if c.Len() != tt.stages {
				t.Errorf("Len() = %d, want %d", c.Len(), tt.stages)
			}
		})
	}
}

func TestChain_VolumeAndSet(t *testing.T) {
	t.Parallel()

	c, err := Parse("volume=0.5", 48000, 2)
	if err != nil {
		t.Fatal(err)
	}

	samples := []float32{1, -1, 0.5, 0.25}
	if err := c.Process(samples); err != nil {
		t.Fatal(err)
	}
	want := []float32{0.5, -0.5, 0.25, 0.125}
	for i := range want {
		if samples[i] != want[i] {
			t.Errorf("sample %d = %v, want %v", i, samples[i], want[i])
		}
	}

	if err := c.Set("volume", "db", "0"); err != nil {
		t.Fatal(err)
	}
	samples = []float32{0.3, 0.3}
	_ = c.Process(samples)
	if samples[0] != 0.3 {
		t.Errorf("after db=0 sample = %v, want 0.3", samples[0])
	}

	if err := c.Set("lowpass", "f", "100"); !errors.Is(err, ErrUnknownFilter) {
		t.Errorf("Set(lowpass) error = %v, want ErrUnknownFilter", err)
	}
	if err := c.Process(make([]float32, 3)); !errors.Is(err, ErrChannelCount) {
		t.Errorf("Process(3 samples) error = %v, want ErrChannelCount", err)
	}
}

func TestBiquad(t *testing.T) {
	t.Parallel()

	const rate = 48000
	tone := func(freq float64) []float32 {
		s := make([]float32, rate/10)
		for i := range s {
			s[i] = float32(math.Sin(2 * math.Pi * freq * float64(i) / rate))
		}
		return s
	}
	peak := func(s []float32) float64 {
		p := 0.0
		for _, v := range s[len(s)/2:] {
			p = math.Max(p, math.Abs(float64(v)))
		}
		return p
	}

	tests := []struct {
		desc string
		freq float64
		low  float64
		high float64
	}{
		{desc: "lowpass=500", freq: 100, low: 0.9, high: 1.1},
		{desc: "lowpass=500", freq: 8000, low: 0, high: 0.02},
		{desc: "highpass=2000", freq: 10000, low: 0.9, high: 1.1},
		{desc: "highpass=2000", freq: 50, low: 0, high: 0.01},
	}
	for _, tt := range tests {
		c, err := Parse(tt.desc, rate, 1)
		if err != nil {
			t.Fatal(err)
		}
		s := tone(tt.freq)
		if err := c.Process(s); err != nil {
			t.Fatal(err)
		}
		if p := peak(s); p < tt.low || p > tt.high {
			t.Errorf("%s at %v Hz: peak %v, want [%v, %v]", tt.desc, tt.freq, p, tt.low, tt.high)
		}
	}
}

func TestMono(t *testing.T) {
	t.Parallel()

	c, err := Parse("mono", 44100, 2)
	if err != nil {
		t.Fatal(err)
	}
	s := []float32{1, 0, 0.5, -0.5}
	_ = c.Process(s)
	want := []float32{0.5, 0.5, 0, 0}
	for i := range want {
		if s[i] != want[i] {
			t.Errorf("sample %d = %v, want %v", i, s[i], want[i])
		}
	}
}
