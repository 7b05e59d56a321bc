// SPDX-License-Identifier: EPL-2.0

//go:build opus

package filter

import (
	"math"
	"testing"
)

func TestOpus_RoundTrip(t *testing.T) {
	t.Parallel()

	c, err := Parse("opus=64000", 48000, 2)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	const block = 256
	energy := 0.0
	for n := range 40 {
		s := make([]float32, block*2)
		for i := range block {
			v := float32(0.5 * math.Sin(2*math.Pi*440*float64(n*block+i)/48000))
			s[2*i], s[2*i+1] = v, v
		}
		if err := c.Process(s); err != nil {
			t.Fatal(err)
		}
		if n > 20 {
			for _, v := range s {
				energy += float64(v * v)
			}
		}
	}
	if energy == 0 {
		t.Error("opus round trip produced silence")
	}
}
