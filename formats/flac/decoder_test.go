// SPDX-License-Identifier: EPL-2.0

package flac

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/mewkiz/flac/frame"
)

type mockStream struct {
	frames [][][]int32 // frame -> channel -> samples
	closed bool
}

func (m *mockStream) ParseNext() (*frame.Frame, error) {
	if len(m.frames) == 0 {
		return nil, io.EOF
	}
	f := &frame.Frame{}
	for _, ch := range m.frames[0] {
		f.Subframes = append(f.Subframes, &frame.Subframe{Samples: ch})
	}
	m.frames = m.frames[1:]
	return f, nil
}

func (m *mockStream) Close() error {
	m.closed = true
	return nil
}

func TestDecoder_Invalid(t *testing.T) {
	t.Parallel()

	if _, err := (Decoder{}).Decode(bytes.NewReader([]byte("fLaC? no"))); err == nil {
		t.Error("Decode() error = nil")
	}
}

func TestSource_SpansFrames(t *testing.T) {
	t.Parallel()

	stream := &mockStream{frames: [][][]int32{
		{{0, 16384, -32768}, {1, 2, 3}},
		{{8192}, {4}},
	}}
	src := newSource(stream, 44100, 2, 16, 4)

	dst := make([]float32, 6)
	n, err := src.ReadSamples(dst)
	if err != nil || n != 6 {
		t.Fatalf("ReadSamples() = %d, %v", n, err)
	}
	if dst[2] != 0.5 || dst[4] != -1 {
		t.Errorf("dst = %v", dst)
	}

	n, err = src.ReadSamples(dst)
	if err != nil || n != 2 || dst[0] != 0.25 {
		t.Fatalf("second ReadSamples() = %d, %v, dst[0] = %v", n, err, dst[0])
	}

	if _, err := src.ReadSamples(dst); !errors.Is(err, io.EOF) {
		t.Errorf("ReadSamples() at end error = %v, want io.EOF", err)
	}
	if err := src.Close(); err != nil || !stream.closed {
		t.Error("Close() did not close the stream")
	}
}

func TestSource_SubframeMismatch(t *testing.T) {
	t.Parallel()

	src := newSource(&mockStream{frames: [][][]int32{{{1}}}}, 44100, 2, 16, -1)
	if _, err := src.ReadSamples(make([]float32, 4)); !errors.Is(err, ErrUnsupportedLayout) {
		t.Errorf("ReadSamples() error = %v, want ErrUnsupportedLayout", err)
	}
}
