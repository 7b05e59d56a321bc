// SPDX-License-Identifier: EPL-2.0

package graph

import (
	"encoding/binary"
	"errors"
	"math"
	"testing"

	"github.com/ik5/audroute/audio"
	"github.com/ik5/audroute/hw"
)

func newDevice() *hw.Virtual {
	return hw.NewVirtual(hw.VirtualOptions{Inputs: 4, Outputs: 4, Format: audio.Int32})
}

func int32Channel(frames int, v int32) []byte {
	b := make([]byte, frames*4)
	for i := range frames {
		binary.LittleEndian.PutUint32(b[i*4:], uint32(v))
	}
	return b
}

func sampleF32(b *audio.Buffer, ch, i int) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(b.Sample(ch, i)))
}

func TestHardwareSource_DoubleBuffering(t *testing.T) {
	t.Parallel()

	n := NewHardwareSource("in", newDevice())
	if err := n.Configure(Params{"channels": "0,1"}, testSettings()); err != nil {
		t.Fatal(err)
	}
	defer n.Close()
	if err := n.Start(); err != nil {
		t.Fatal(err)
	}

	var prev *audio.Buffer
	seen := map[*audio.Buffer]int{}
	for tick := range 10 {
		native := [][]byte{
			int32Channel(256, int32(tick+1)<<24),
			int32Channel(256, -int32(tick+1)<<24),
		}
		if err := n.ReceiveNative(tick%2, native); err != nil {
			t.Fatalf("tick %d: ReceiveNative() error = %v", tick, err)
		}
		b := n.Output(0)
		if b == nil {
			t.Fatalf("tick %d: Output() = nil", tick)
		}
		if b == prev {
			t.Errorf("tick %d: buffer did not toggle", tick)
		}
		if b.Frames() != 256 {
			t.Errorf("tick %d: Frames() = %d, want 256", tick, b.Frames())
		}
		want := float32(tick+1) / 128
		if got := sampleF32(b, 0, 100); math.Abs(float64(got-want)) > 1e-6 {
			t.Errorf("tick %d: left = %v, want %v", tick, got, want)
		}
		if got := sampleF32(b, 1, 255); math.Abs(float64(got+want)) > 1e-6 {
			t.Errorf("tick %d: right = %v, want %v", tick, got, -want)
		}
		seen[b]++
		prev = b
	}
	if len(seen) != 2 || seen[prev] != 5 {
		t.Errorf("buffers used = %v, want two alternating", seen)
	}
}

func TestHardwareSource_HeldBufferIsNotOverwritten(t *testing.T) {
	t.Parallel()

	n := NewHardwareSource("in", newDevice())
	if err := n.Configure(Params{"channel_names": "virtual in 3"}, Settings{
		SampleRate: 48000, BufferSize: 16, Format: audio.Float32, Layout: audio.LayoutMono,
	}); err != nil {
		t.Fatal(err)
	}
	defer n.Close()
	_ = n.Start()

	if got := n.DeviceChannels(); len(got) != 1 || got[0] != 2 {
		t.Fatalf("DeviceChannels() = %v, want [2]", got)
	}

	_ = n.ReceiveNative(0, [][]byte{int32Channel(16, 1<<30)})
	held := n.Output(0).Ref()
	defer held.Release()

	_ = n.ReceiveNative(1, [][]byte{int32Channel(16, 0)})
	_ = n.ReceiveNative(0, [][]byte{int32Channel(16, 0)})

	if got := sampleF32(held, 0, 3); got != 0.5 {
		t.Errorf("held sample = %v, want 0.5", got)
	}
	if got := sampleF32(n.Output(0), 0, 3); got != 0 {
		t.Errorf("current sample = %v, want 0", got)
	}
}

func TestHardwareSource_ChannelFailureIsIsolated(t *testing.T) {
	t.Parallel()

	n := NewHardwareSource("in", newDevice())
	if err := n.Configure(Params{"channels": "0,1"}, testSettings()); err != nil {
		t.Fatal(err)
	}
	defer n.Close()
	_ = n.Start()

	err := n.ReceiveNative(0, [][]byte{int32Channel(256, 1<<30), nil})
	if err == nil {
		t.Fatal("ReceiveNative() with a missing channel succeeded")
	}
	b := n.Output(0)
	if got := sampleF32(b, 0, 0); got != 0.5 {
		t.Errorf("converted channel = %v, want 0.5", got)
	}
	if got := sampleF32(b, 1, 0); got != 0 {
		t.Errorf("skipped channel = %v, want silence", got)
	}
	if err := n.ReceiveNative(2, nil); !errors.Is(err, hw.ErrInvalidTick) {
		t.Errorf("ReceiveNative(tick 2) error = %v", err)
	}
}

func TestHardwareSource_ConfigureErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		params  Params
		wantErr error
	}{
		{name: "missing", params: Params{}, wantErr: ErrMissingParam},
		{name: "not a number", params: Params{"channels": "0,x"}, wantErr: ErrInvalidParam},
		{name: "out of range", params: Params{"channels": "0,9"}, wantErr: ErrInvalidParam},
		{name: "count", params: Params{"channels": "0"}, wantErr: ErrChannelMismatch},
		{name: "unknown name", params: Params{"channel_names": "virtual in 1,line"}, wantErr: ErrInvalidParam},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			n := NewHardwareSource("in", newDevice())
			if err := n.Configure(tt.params, testSettings()); !errors.Is(err, tt.wantErr) {
				t.Fatalf("Configure() error = %v, want %v", err, tt.wantErr)
			}
			if n.State() != Unconfigured {
				t.Errorf("State() = %v after failed Configure", n.State())
			}
			if n.db.bufs[0] != nil {
				t.Error("failed Configure kept buffers")
			}
		})
	}
}

func TestHardwareSink_ProvideNative(t *testing.T) {
	t.Parallel()

	dev := hw.NewVirtual(hw.VirtualOptions{Outputs: 2, Format: audio.Int16})
	n := NewHardwareSink("out", dev)
	if err := n.Configure(Params{"channels": "1,0"}, testSettings()); err != nil {
		t.Fatal(err)
	}
	defer n.Close()

	in, _ := audio.NewBuffer(256, 48000, audio.Float32, audio.LayoutStereo)
	defer in.Release()
	samples := make([]float32, 512)
	for i := range 256 {
		samples[2*i], samples[2*i+1] = 0.25, -1
	}
	_ = in.SetInterleaved(samples)

	if err := n.SetInput(in, 0); !errors.Is(err, ErrInvalidState) {
		t.Errorf("SetInput() before Start error = %v", err)
	}
	_ = n.Start()
	if err := n.SetInput(in, 1); !errors.Is(err, ErrInvalidPad) {
		t.Errorf("SetInput(pad 1) error = %v", err)
	}
	if err := n.SetInput(in, 0); err != nil {
		t.Fatal(err)
	}

	native := [][]byte{make([]byte, 512), make([]byte, 512)}
	if err := n.ProvideNative(1, native); err != nil {
		t.Fatal(err)
	}
	left := int16(binary.LittleEndian.Uint16(native[0][20:]))
	right := int16(binary.LittleEndian.Uint16(native[1][20:]))
	if left != 8192 || right != -32767 {
		t.Errorf("native samples = %d, %d; want 8192, -32767", left, right)
	}

	// Nothing new arrived, so the device gets silence.
	if err := n.ProvideNative(0, native); err != nil {
		t.Fatal(err)
	}
	if v := binary.LittleEndian.Uint16(native[0][20:]); v != 0 {
		t.Errorf("stale tick sample = %d, want 0", v)
	}

	mono, _ := audio.NewBuffer(256, 48000, audio.Float32, audio.LayoutMono)
	defer mono.Release()
	if err := n.SetInput(mono, 0); !errors.Is(err, ErrChannelMismatch) {
		t.Errorf("SetInput(mono) error = %v", err)
	}
}
