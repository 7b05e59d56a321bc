// SPDX-License-Identifier: EPL-2.0

package audio

import (
	"fmt"
	"sync"
	"sync/atomic"
)

const (
	MaxChannels = 64
	MaxFrames   = 1 << 24
)

// storage is the shared arena behind one or more Buffer handles. It is
// freed when the last handle referencing it is released.
type storage struct {
	mu     sync.Mutex
	refs   atomic.Int32
	planes [][]byte
	frames int
	rate   float64
	format SampleFormat
	layout ChannelLayout
}

func newStorage(frames int, rate float64, f SampleFormat, l ChannelLayout) (*storage, error) {
	if frames < 0 || frames > MaxFrames {
		return nil, fmt.Errorf("%w: %d", ErrInvalidFrames, frames)
	}
	if rate <= 0 {
		return nil, fmt.Errorf("%w: sample rate %v", ErrInvalidFrames, rate)
	}
	if !f.Valid() {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedFormat, f)
	}
	if !l.Valid() {
		return nil, fmt.Errorf("%w: %d channels", ErrUnsupportedLayout, l.Channels)
	}

	st := &storage{frames: frames, rate: rate, format: f, layout: l}
	bps := f.BytesPerSample()
	if f.IsPlanar() {
		st.planes = make([][]byte, l.Channels)
		for i := range st.planes {
			st.planes[i] = planes.Get(frames * bps)
		}
	} else {
		st.planes = [][]byte{planes.Get(frames * bps * l.Channels)}
	}
	st.refs.Store(1)
	liveStorages.Add(1)

	return st, nil
}

// acquire increments the reference count unless the storage is already
// being freed.
func (s *storage) acquire() bool {
	for {
		n := s.refs.Load()
		if n <= 0 {
			return false
		}
		if s.refs.CompareAndSwap(n, n+1) {
			return true
		}
	}
}

func (s *storage) release() {
	if s.refs.Add(-1) != 0 {
		return
	}

	s.mu.Lock()
	for _, p := range s.planes {
		planes.Put(p)
	}
	s.planes = nil
	s.mu.Unlock()
	liveStorages.Add(-1)
}

// frameBytes is the byte distance between consecutive frames in one plane.
func (s *storage) frameBytes() int {
	if s.format.IsPlanar() {
		return s.format.BytesPerSample()
	}
	return s.format.BytesPerSample() * s.layout.Channels
}

// Buffer is a handle onto reference-counted sample storage. A handle either
// owns its storage exclusively, shares it with other handles created by Ref,
// or is a view onto a frame window of another buffer's storage.
//
// A Buffer is not usable after Release.
type Buffer struct {
	mu     sync.Mutex
	st     *storage
	offset int
	frames int
	view   bool
}

// NewBuffer allocates a zeroed buffer.
func NewBuffer(frames int, sampleRate float64, f SampleFormat, l ChannelLayout) (*Buffer, error) {
	b := &Buffer{}
	if err := b.Allocate(frames, sampleRate, f, l); err != nil {
		return nil, err
	}
	return b, nil
}

// Allocate gives b fresh zeroed storage of the given shape. When b shared its
// previous storage with other handles, those handles keep the old data.
// On error b is left unchanged.
func (b *Buffer) Allocate(frames int, sampleRate float64, f SampleFormat, l ChannelLayout) error {
	st, err := newStorage(frames, sampleRate, f, l)
	if err != nil {
		return err
	}

	b.mu.Lock()
	old := b.st
	b.st, b.offset, b.frames, b.view = st, 0, frames, false
	b.mu.Unlock()

	if old != nil {
		old.release()
	}
	return nil
}

func (b *Buffer) snapshot() (*storage, int, int) {
	if b == nil {
		return nil, 0, 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.st, b.offset, b.frames
}

// IsValid reports whether b refers to live storage.
func (b *Buffer) IsValid() bool {
	st, _, _ := b.snapshot()
	if st == nil {
		return false
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.planes != nil
}

func (b *Buffer) Frames() int {
	_, _, n := b.snapshot()
	return n
}

func (b *Buffer) SampleRate() float64 {
	if st, _, _ := b.snapshot(); st != nil {
		return st.rate
	}
	return 0
}

func (b *Buffer) Format() SampleFormat {
	if st, _, _ := b.snapshot(); st != nil {
		return st.format
	}
	return FormatNone
}

func (b *Buffer) Layout() ChannelLayout {
	if st, _, _ := b.snapshot(); st != nil {
		return st.layout
	}
	return ChannelLayout{}
}

func (b *Buffer) Channels() int {
	return b.Layout().Channels
}

// Planes is the channel count for planar formats and 1 otherwise.
func (b *Buffer) Planes() int {
	st, _, _ := b.snapshot()
	if st == nil {
		return 0
	}
	return len(st.planes)
}

func (b *Buffer) IsView() bool {
	if b == nil {
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.view
}

// RefCount is the number of live handles sharing b's storage.
func (b *Buffer) RefCount() int {
	st, _, _ := b.snapshot()
	if st == nil {
		return 0
	}
	return int(st.refs.Load())
}

// Stride is the byte distance between consecutive samples of one channel.
func (b *Buffer) Stride() int {
	st, _, _ := b.snapshot()
	if st == nil {
		return 0
	}
	return st.frameBytes()
}

// PlaneData returns the bytes of plane p within b's frame window, or nil
// when p is out of range.
func (b *Buffer) PlaneData(p int) []byte {
	st, off, n := b.snapshot()
	if st == nil || p < 0 || p >= len(st.planes) {
		return nil
	}
	fb := st.frameBytes()
	return st.planes[p][off*fb : (off+n)*fb]
}

// ChannelData returns the bytes starting at the first sample of channel ch.
// For interleaved formats consecutive samples of ch are Stride bytes apart;
// use Sample to address one sample directly.
func (b *Buffer) ChannelData(ch int) []byte {
	st, off, n := b.snapshot()
	if st == nil || ch < 0 || ch >= st.layout.Channels {
		return nil
	}
	fb := st.frameBytes()
	if st.format.IsPlanar() {
		return st.planes[ch][off*fb : (off+n)*fb]
	}
	if n == 0 {
		return st.planes[0][off*fb : off*fb]
	}
	bps := st.format.BytesPerSample()
	return st.planes[0][off*fb+ch*bps : (off+n)*fb]
}

// Sample returns the bytes of sample i of channel ch, or nil when either
// index is out of range.
func (b *Buffer) Sample(ch, i int) []byte {
	st, off, n := b.snapshot()
	if st == nil || ch < 0 || ch >= st.layout.Channels || i < 0 || i >= n {
		return nil
	}
	bps := st.format.BytesPerSample()
	if st.format.IsPlanar() {
		pos := (off + i) * bps
		return st.planes[ch][pos : pos+bps]
	}
	pos := (off+i)*bps*st.layout.Channels + ch*bps
	return st.planes[0][pos : pos+bps]
}

// Ref returns a new handle sharing b's storage. No samples are copied.
// It returns nil when b is not valid.
func (b *Buffer) Ref() *Buffer {
	if b == nil {
		return nil
	}
	b.mu.Lock()
	st, off, n, view := b.st, b.offset, b.frames, b.view
	b.mu.Unlock()

	if st == nil || !st.acquire() {
		return nil
	}
	return &Buffer{st: st, offset: off, frames: n, view: view}
}

// Release drops b's reference. The storage is freed once no handle refers
// to it. Releasing twice is a no-op.
func (b *Buffer) Release() {
	if b == nil {
		return
	}
	b.mu.Lock()
	st := b.st
	b.st = nil
	b.mu.Unlock()

	if st != nil {
		st.release()
	}
}

// NewView returns a handle onto frames [start, start+n) of src. Writes
// through the view are visible in src.
func NewView(src *Buffer, start, n int) (*Buffer, error) {
	st, off, frames := src.snapshot()
	if st == nil {
		return nil, ErrInvalidBuffer
	}
	if start < 0 || n < 0 || start+n > frames {
		return nil, fmt.Errorf("%w: [%d, %d) of %d", ErrViewOutOfRange, start, start+n, frames)
	}
	if !st.acquire() {
		return nil, ErrInvalidBuffer
	}
	return &Buffer{st: st, offset: off + start, frames: n, view: true}, nil
}

// CopyFrom deep-copies other into b, reallocating b first when the shapes
// differ.
func (b *Buffer) CopyFrom(other *Buffer) error {
	if !other.IsValid() {
		return ErrInvalidBuffer
	}
	ost, _, on := other.snapshot()

	st, _, n := b.snapshot()
	if st == nil || n != on || st.format != ost.format || st.layout != ost.layout || st.rate != ost.rate {
		if err := b.Allocate(on, ost.rate, ost.format, ost.layout); err != nil {
			return err
		}
		st, _, _ = b.snapshot()
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	for p := range len(st.planes) {
		copy(b.PlaneData(p), other.PlaneData(p))
	}
	return nil
}

// Clone returns an owning deep copy of b.
func (b *Buffer) Clone() (*Buffer, error) {
	c := &Buffer{}
	if err := c.CopyFrom(b); err != nil {
		return nil, err
	}
	return c, nil
}

// NewConverted returns an owning buffer holding src's samples converted to
// format f and layout l. The channel count of l must match src.
func NewConverted(src *Buffer, f SampleFormat, l ChannelLayout) (*Buffer, error) {
	if !src.IsValid() {
		return nil, ErrInvalidBuffer
	}
	if l.Channels != src.Channels() {
		return nil, fmt.Errorf("%w: %d -> %d", ErrChannelMismatch, src.Channels(), l.Channels)
	}

	dst, err := NewBuffer(src.Frames(), src.SampleRate(), f, l)
	if err != nil {
		return nil, err
	}

	for ch := range l.Channels {
		err := ConvertSamples(dst.ChannelData(ch), f, dst.Stride(),
			src.ChannelData(ch), src.Format(), src.Stride(), src.Frames())
		if err != nil {
			dst.Release()
			return nil, fmt.Errorf("channel %d: %w", ch, err)
		}
	}
	return dst, nil
}

// Interleaved decodes every sample of b into interleaved float32 values,
// reusing dst when it is large enough.
func (b *Buffer) Interleaved(dst []float32) ([]float32, error) {
	st, _, n := b.snapshot()
	if st == nil {
		return dst[:0], ErrInvalidBuffer
	}
	chans := st.layout.Channels
	if cap(dst) < n*chans {
		dst = make([]float32, n*chans)
	}
	dst = dst[:n*chans]

	stride := st.frameBytes()
	bps := st.format.BytesPerSample()
	for ch := range chans {
		data := b.ChannelData(ch)
		for i := range n {
			dst[i*chans+ch] = float32(decodeSample(st.format, data[i*stride:i*stride+bps]))
		}
	}
	return dst, nil
}

// SetInterleaved encodes interleaved float32 values into b's format. src
// must hold at least Frames*Channels values.
func (b *Buffer) SetInterleaved(src []float32) error {
	st, _, n := b.snapshot()
	if st == nil {
		return ErrInvalidBuffer
	}
	chans := st.layout.Channels
	if len(src) < n*chans {
		return fmt.Errorf("%w: have %d, need %d", ErrShortBuffer, len(src), n*chans)
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	stride := st.frameBytes()
	bps := st.format.BytesPerSample()
	for ch := range chans {
		data := b.ChannelData(ch)
		for i := range n {
			encodeSample(st.format, data[i*stride:i*stride+bps], float64(src[i*chans+ch]))
		}
	}
	return nil
}

// Silence zeroes every sample in b's frame window.
func (b *Buffer) Silence() {
	st, _, _ := b.snapshot()
	if st == nil {
		return
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	for p := range len(st.planes) {
		clear(b.PlaneData(p))
	}
}

func (b *Buffer) String() string {
	st, off, n := b.snapshot()
	if st == nil {
		return "Buffer(invalid)"
	}
	if b.IsView() {
		return fmt.Sprintf("Buffer(%d frames @%d, %v, %v, %gHz, view)", n, off, st.format, st.layout, st.rate)
	}
	return fmt.Sprintf("Buffer(%d frames, %v, %v, %gHz)", n, st.format, st.layout, st.rate)
}
