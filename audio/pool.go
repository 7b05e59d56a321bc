// SPDX-License-Identifier: EPL-2.0

package audio

import (
	"sync"
	"sync/atomic"
)

// planePool recycles plane storage between buffers of similar size.
type planePool struct {
	pool sync.Pool
}

func newPlanePool(initialSize int) *planePool {
	return &planePool{
		pool: sync.Pool{
			New: func() any {
				b := make([]byte, initialSize)
				return &b
			},
		},
	}
}

// Get returns a zeroed slice of exactly size bytes.
func (p *planePool) Get(size int) []byte {
	bp := p.pool.Get().(*[]byte)
	if cap(*bp) < size {
		return make([]byte, size)
	}
	buf := (*bp)[:size]
	clear(buf)
	return buf
}

func (p *planePool) Put(buf []byte) {
	buf = buf[:cap(buf)]
	p.pool.Put(&buf)
}

var planes = newPlanePool(4096)

var liveStorages atomic.Int64

// Outstanding reports how many buffer storages are currently allocated and
// not yet freed. Tests use it to detect leaked references.
func Outstanding() int64 {
	return liveStorages.Load()
}
