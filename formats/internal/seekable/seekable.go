// SPDX-License-Identifier: EPL-2.0

// Package seekable adapts plain readers for codecs that need to seek.
package seekable

import (
	"errors"
	"fmt"
	"io"
)

var ErrNegativePosition = errors.New("negative position")

// From returns r itself when it can seek, otherwise it buffers r fully in
// memory.
func From(r io.Reader) (io.ReadSeeker, error) {
	if rs, ok := r.(io.ReadSeeker); ok {
		return rs, nil
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("buffering input: %w", err)
	}
	return &memory{data: data}, nil
}

type memory struct {
	data   []byte
	offset int64
}

func (m *memory) Read(p []byte) (int, error) {
	if m.offset >= int64(len(m.data)) {
		return 0, io.EOF
	}
	n := copy(p, m.data[m.offset:])
	m.offset += int64(n)
	return n, nil
}

func (m *memory) Seek(offset int64, whence int) (int64, error) {
	var pos int64
	switch whence {
	case io.SeekStart:
		pos = offset
	case io.SeekCurrent:
		pos = m.offset + offset
	case io.SeekEnd:
		pos = int64(len(m.data)) + offset
	default:
		return 0, fmt.Errorf("invalid whence: %d", whence)
	}
	if pos < 0 {
		return 0, ErrNegativePosition
	}
	m.offset = pos
	return pos, nil
}
