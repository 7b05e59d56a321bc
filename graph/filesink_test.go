// SPDX-License-Identifier: EPL-2.0

package graph

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/ik5/audroute/audio"
	"github.com/ik5/audroute/formats/wav"
)

func TestFileSink_WritesWAV(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "out.wav")
	n := NewFileSink("rec", nil)
	s := Settings{SampleRate: 16000, BufferSize: 64, Format: audio.Float32Planar, Layout: audio.LayoutStereo}
	if err := n.Configure(Params{"file_path": path, "bit_depth": "24"}, s); err != nil {
		t.Fatal(err)
	}
	if err := n.Start(); err != nil {
		t.Fatal(err)
	}

	buf, _ := audio.NewBuffer(64, 16000, audio.Int16, audio.LayoutStereo)
	samples := make([]float32, 128)
	for i := range 64 {
		samples[2*i], samples[2*i+1] = 0.5, -0.25
	}
	_ = buf.SetInterleaved(samples)
	for range 10 {
		if err := n.SetInput(buf, 0); err != nil {
			t.Fatal(err)
		}
	}
	buf.Release()

	if err := n.Stop(); err != nil {
		t.Fatal(err)
	}
	if err := n.SetInput(buf, 0); !errors.Is(err, ErrInvalidState) {
		t.Errorf("SetInput() after Stop error = %v", err)
	}
	if n.Written() != 640 {
		t.Errorf("Written() = %d, want 640", n.Written())
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	src, err := wav.Decoder{}.Decode(f)
	if err != nil {
		t.Fatal(err)
	}
	if src.Channels() != 2 || src.SampleRate() != 16000 {
		t.Fatalf("file is %d ch @ %d Hz", src.Channels(), src.SampleRate())
	}
	got := make([]float32, 2000)
	k, _ := src.ReadSamples(got)
	if k != 1280 {
		t.Fatalf("file holds %d samples, want 1280", k)
	}
	if math.Abs(float64(got[200]-0.5)) > 1e-3 || math.Abs(float64(got[201]+0.25)) > 1e-3 {
		t.Errorf("samples = %v, %v; want 0.5, -0.25", got[200], got[201])
	}
}

func TestFileSink_ConfigureErrors(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	tests := []struct {
		name    string
		params  Params
		wantErr error
	}{
		{name: "no path", params: Params{}, wantErr: ErrMissingParam},
		{name: "bit depth", params: Params{"file_path": filepath.Join(dir, "a.wav"), "bit_depth": "12"}, wantErr: ErrInvalidParam},
		{name: "no directory", params: Params{"file_path": filepath.Join(dir, "nope", "a.wav")}, wantErr: ErrInvalidParam},
		{name: "queue size", params: Params{"file_path": filepath.Join(dir, "a.wav"), "queue_size": "0"}, wantErr: ErrInvalidParam},
	}
	for _, tt := range tests {
		n := NewFileSink("rec", nil)
		if err := n.Configure(tt.params, testSettings()); !errors.Is(err, tt.wantErr) {
			t.Errorf("%s: Configure() error = %v, want %v", tt.name, err, tt.wantErr)
		}
		if n.State() != Unconfigured {
			t.Errorf("%s: State() = %v", tt.name, n.State())
		}
	}
}
