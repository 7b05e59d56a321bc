// SPDX-License-Identifier: EPL-2.0

package audiotest

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// WriteWAV writes interleaved samples as a 16-bit PCM file under t.TempDir
// and returns its path.
func WriteWAV(t testing.TB, name string, sampleRate, channels int, samples []float32) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	defer f.Close()

	data := make([]int, len(samples))
	for i, s := range samples {
		data[i] = int(math.Round(float64(max(-1, min(1, s))) * 32767))
	}

	enc := wav.NewEncoder(f, sampleRate, 16, channels, 1)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: channels, SampleRate: sampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("close encoder: %v", err)
	}
	return path
}

// Ramp returns frames*channels interleaved samples where frame i holds
// i/frames on every channel.
func Ramp(frames, channels int) []float32 {
	out := make([]float32, frames*channels)
	for i := range frames {
		for ch := range channels {
			out[i*channels+ch] = float32(i) / float32(frames)
		}
	}
	return out
}
