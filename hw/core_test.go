// SPDX-License-Identifier: EPL-2.0

package hw

import (
	"encoding/binary"
	"errors"
	"slices"
	"testing"

	"github.com/ik5/audroute/audio"
)

func newTestCore(t *testing.T) *core {
	t.Helper()

	c := &core{}
	c.init(audio.Int16Planar, channelNames("in", 2), channelNames("out", 2))
	if err := c.InitDevice(48000, 4); err != nil {
		t.Fatalf("InitDevice() error = %v", err)
	}
	return c
}

func TestCore_Setup(t *testing.T) {
	t.Parallel()

	c := &core{}
	c.init(audio.Float32, channelNames("in", 1), channelNames("out", 1))
	if err := c.ready(); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("ready() before InitDevice error = %v", err)
	}
	if err := c.CreateBuffers(nil, nil); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("CreateBuffers() before InitDevice error = %v", err)
	}
	if err := c.InitDevice(0, 256); !errors.Is(err, ErrInvalidSetting) {
		t.Errorf("InitDevice(0 Hz) error = %v", err)
	}
	if err := c.InitDevice(48000, 256); err != nil {
		t.Fatal(err)
	}
	if err := c.ready(); !errors.Is(err, ErrNoBuffers) {
		t.Errorf("ready() before CreateBuffers error = %v", err)
	}
	if err := c.CreateBuffers([]int{1}, nil); !errors.Is(err, ErrInvalidChannel) {
		t.Errorf("CreateBuffers(bad input) error = %v", err)
	}
	if err := c.CreateBuffers([]int{0, 0}, []int{0}); err != nil {
		t.Fatal(err)
	}
	if err := c.ready(); err != nil {
		t.Errorf("ready() error = %v", err)
	}

	bufs, err := c.InputBuffers(1, []int{0})
	if err != nil || len(bufs) != 1 || len(bufs[0]) != 256*4 {
		t.Fatalf("InputBuffers() = %d bufs, %v", len(bufs), err)
	}
	if _, err := c.InputBuffers(2, []int{0}); !errors.Is(err, ErrInvalidTick) {
		t.Errorf("InputBuffers(tick 2) error = %v", err)
	}
	if _, err := c.OutputBuffers(0, []int{1}); !errors.Is(err, ErrInvalidChannel) {
		t.Errorf("OutputBuffers(unallocated) error = %v", err)
	}
	if c.NativeFormat() != audio.Float32 {
		t.Errorf("NativeFormat() = %v", c.NativeFormat())
	}
}

func TestCore_ExchangeAdaptsCallbackLength(t *testing.T) {
	t.Parallel()

	c := newTestCore(t)
	if err := c.CreateBuffers([]int{1}, []int{0}); err != nil {
		t.Fatal(err)
	}

	var halves []int
	c.SetCallback(func(tick int) {
		halves = append(halves, tick)
		in, err := c.InputBuffers(tick, []int{1})
		if err != nil {
			t.Errorf("InputBuffers() error = %v", err)
			return
		}
		out, err := c.OutputBuffers(tick, []int{0})
		if err != nil {
			t.Errorf("OutputBuffers() error = %v", err)
			return
		}
		copy(out[0], in[0])
	})

	const total = 12
	in := make([]byte, total*2*2)
	for i := range total {
		binary.LittleEndian.PutUint16(in[(i*2+1)*2:], uint16(i+1))
	}
	out := make([]byte, total*2)
	for off := 0; off < total; off += 3 {
		c.exchange(out[off*2:(off+3)*2], in[off*4:(off+3)*4], 3)
	}

	for i := range total {
		got := int(binary.LittleEndian.Uint16(out[i*2:]))
		want := 0
		if i >= 4 {
			want = i - 3
		}
		if got != want {
			t.Errorf("out[%d] = %d, want %d", i, got, want)
		}
	}
	if !slices.Equal(halves, []int{0, 1, 0}) {
		t.Errorf("callback halves = %v, want [0 1 0]", halves)
	}
	if c.Ticks() != 3 {
		t.Errorf("Ticks() = %d, want 3", c.Ticks())
	}
}
