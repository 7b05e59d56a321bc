// SPDX-License-Identifier: EPL-2.0

package aiff

import (
	"bytes"
	"errors"
	"io"
	"testing"

	goaudio "github.com/go-audio/audio"
)

type mockAiffReader struct {
	samples []int
	fail    bool
}

func (m *mockAiffReader) PCMBuffer(buf *goaudio.IntBuffer) (int, error) {
	if m.fail {
		return 0, io.ErrUnexpectedEOF
	}
	n := copy(buf.Data, m.samples)
	m.samples = m.samples[n:]
	if len(m.samples) == 0 {
		return n, io.EOF
	}
	return n, nil
}

func TestDecoder_Invalid(t *testing.T) {
	t.Parallel()

	for _, data := range [][]byte{nil, []byte("This is not AIFF data")} {
		if _, err := (Decoder{}).Decode(bytes.NewReader(data)); err == nil {
			t.Errorf("Decode(%q) error = nil", data)
		}
	}
}

func TestSource_Normalization(t *testing.T) {
	t.Parallel()

	tests := []struct {
		bitDepth int
		in       int
		want     float32
	}{
		{bitDepth: 8, in: -64, want: -0.5},
		{bitDepth: 16, in: 16384, want: 0.5},
		{bitDepth: 24, in: -8388608, want: -1},
		{bitDepth: 32, in: 1 << 30, want: 0.5},
	}

	for _, tt := range tests {
		src := &source{dec: &mockAiffReader{samples: []int{tt.in}}, channels: 1, bitDepth: tt.bitDepth}
		dst := make([]float32, 4)
		n, err := src.ReadSamples(dst)
		if n != 1 || !errors.Is(err, io.EOF) {
			t.Fatalf("%d-bit: ReadSamples() = %d, %v", tt.bitDepth, n, err)
		}
		if dst[0] != tt.want {
			t.Errorf("%d-bit: got %v, want %v", tt.bitDepth, dst[0], tt.want)
		}
	}
}

func TestSource_ReadError(t *testing.T) {
	t.Parallel()

	src := &source{dec: &mockAiffReader{fail: true}, channels: 2, bitDepth: 16}
	if _, err := src.ReadSamples(make([]float32, 4)); !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("ReadSamples() error = %v, want io.ErrUnexpectedEOF", err)
	}
}
