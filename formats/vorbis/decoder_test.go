// SPDX-License-Identifier: EPL-2.0

package vorbis

import (
	"bytes"
	"errors"
	"io"
	"testing"
)

type mockOggReader struct {
	channels int
	samples  []float32
	pos      int
}

func (m *mockOggReader) SampleRate() int { return 48000 }
func (m *mockOggReader) Channels() int   { return m.channels }
func (m *mockOggReader) Length() int64   { return int64(len(m.samples) / m.channels) }

func (m *mockOggReader) Read(p []float32) (int, error) {
	if m.pos >= len(m.samples) {
		return 0, io.EOF
	}
	n := copy(p, m.samples[m.pos:])
	m.pos += n
	return n, nil
}

func (m *mockOggReader) SetPosition(frame int64) error {
	m.pos = int(frame) * m.channels
	return nil
}

func TestDecoder_Invalid(t *testing.T) {
	t.Parallel()

	if _, err := (Decoder{}).Decode(bytes.NewReader([]byte("OggS but not really"))); err == nil {
		t.Error("Decode() error = nil")
	}
}

func TestSource_ReadCountsValues(t *testing.T) {
	t.Parallel()

	dec := &mockOggReader{channels: 2, samples: []float32{0.1, 0.2, 0.3, 0.4, 0.5, 0.6}}
	src := &source{dec: dec, sampleRate: 48000, channels: 2, seekable: true}

	dst := make([]float32, 5) // rounded down to two frames
	n, err := src.ReadSamples(dst)
	if err != nil || n != 4 {
		t.Fatalf("ReadSamples() = %d, %v; want 4 values", n, err)
	}

	if err := src.SeekFrame(2); err != nil {
		t.Fatal(err)
	}
	n, _ = src.ReadSamples(dst)
	if n != 2 || dst[0] != 0.5 {
		t.Errorf("after SeekFrame(2): n = %d, dst[0] = %v", n, dst[0])
	}
	if src.Frames() != 3 {
		t.Errorf("Frames() = %d, want 3", src.Frames())
	}
	if _, err := src.ReadSamples(dst); !errors.Is(err, io.EOF) {
		t.Errorf("ReadSamples() at end error = %v, want io.EOF", err)
	}
}

func TestSource_NotSeekable(t *testing.T) {
	t.Parallel()

	src := &source{dec: &mockOggReader{channels: 1}, channels: 1}
	if err := src.SeekFrame(1); !errors.Is(err, ErrNotSeekable) {
		t.Errorf("SeekFrame() error = %v, want ErrNotSeekable", err)
	}
	if src.Frames() != -1 {
		t.Errorf("Frames() = %d, want -1", src.Frames())
	}
}
