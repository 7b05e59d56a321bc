// SPDX-License-Identifier: EPL-2.0

package audio

import (
	"io"
	"sort"
	"sync"
)

// Source is a pull stream of interleaved float32 samples produced by a
// decoder or by a stage wrapping another Source.
type Source interface {
	// SampleRate of the PCM stream in Hz.
	SampleRate() int
	// Channels count (e.g., 1=mono, 2=stereo).
	Channels() int
	// ReadSamples fills dst with interleaved float32 samples in [-1,1].
	// Returns number of float32 values written (not frames). When n == 0 with err == io.EOF, the stream is finished.
	ReadSamples(dst []float32) (n int, err error)

	BufSize() int

	// Close releases any resources.
	Close() error
}

// Seeker is implemented by sources that can reposition themselves.
type Seeker interface {
	// SeekFrame moves the decode position to frame (per channel).
	SeekFrame(frame int64) error
}

// Lengther is implemented by sources that know their total length.
type Lengther interface {
	// Frames returns the total number of frames, or -1 when unknown.
	Frames() int64
}

// Sink consumes interleaved float32 samples and encodes them.
type Sink interface {
	WriteSamples(src []float32) error
	// Close flushes pending data and finalizes the container.
	Close() error
}

// Decoder constructs a Source from an input reader.
type Decoder interface {
	Decode(r io.Reader) (Source, error)
}

// Encoder constructs a Sink writing to w.
type Encoder interface {
	Encode(w io.WriteSeeker, sampleRate, channels, bitDepth int) (Sink, error)
}

// Registry for codecs by format key (e.g., "wav", "mp3", "ogg vorbis").
type Registry struct {
	codecs   map[string]Decoder
	encoders map[string]Encoder

	mtx *sync.Mutex
}

func NewRegistry() *Registry {
	return &Registry{
		codecs:   make(map[string]Decoder),
		encoders: make(map[string]Encoder),
		mtx:      &sync.Mutex{},
	}
}

func (r *Registry) Register(format string, d Decoder) {
	r.mtx.Lock()
	defer r.mtx.Unlock()

	r.codecs[format] = d
}

func (r *Registry) RegisterEncoder(format string, e Encoder) {
	r.mtx.Lock()
	defer r.mtx.Unlock()

	r.encoders[format] = e
}

func (r *Registry) Get(format string) (Decoder, bool) {
	r.mtx.Lock()
	defer r.mtx.Unlock()

	d, ok := r.codecs[format]
	return d, ok
}

func (r *Registry) GetEncoder(format string) (Encoder, bool) {
	r.mtx.Lock()
	defer r.mtx.Unlock()

	e, ok := r.encoders[format]
	return e, ok
}

// Formats lists the registered decoder keys in sorted order.
func (r *Registry) Formats() []string {
	r.mtx.Lock()
	defer r.mtx.Unlock()

	keys := make([]string, 0, len(r.codecs))
	for k := range r.codecs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
