// SPDX-License-Identifier: EPL-2.0

package graph

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"

	"github.com/ik5/audroute/audio"
	"github.com/ik5/audroute/formats"
	"github.com/ik5/audroute/internal/log"
	"github.com/ik5/audroute/internal/queue"
)

// DefaultQueueSize is the number of buffers a file node queues.
const DefaultQueueSize = 8

// block is one decoded buffer. gen tags it with the seek generation it was
// read in so blocks queued before a seek can be told apart.
type block struct {
	buf   *audio.Buffer
	gen   uint64
	frame int64 // engine-rate frame of the first sample
}

// FileSource decodes a file on a reader goroutine into a bounded queue.
type FileSource struct {
	base
	codecs *audio.Registry

	path   string
	format string
	loop   bool
	mix    bool
	qsize  int

	// guarded by seekMu
	seekMu  sync.Mutex
	file    *os.File
	raw     audio.Source
	src     audio.Source
	resamp  *audio.Resampler
	readPos int64

	fileRate float64
	frames   int64 // file length in file frames, -1 when unknown

	gen    atomic.Uint64
	seeked chan struct{}
	q      *queue.Bounded[block] // written under seekMu
	wg     sync.WaitGroup

	// engine thread
	cur    *audio.Buffer
	popped bool

	pos atomic.Int64
	eos atomic.Bool
}

func NewFileSource(name string, codecs *audio.Registry) *FileSource {
	if codecs == nil {
		codecs = formats.NewRegistry()
	}
	return &FileSource{
		base:   base{name: name, typ: FileSourceType},
		codecs: codecs,
		seeked: make(chan struct{}, 1),
	}
}

func (n *FileSource) Inputs() int  { return 0 }
func (n *FileSource) Outputs() int { return 1 }

// Configure opens and probes the file. Parameters: file_path (required),
// format, loop, channel_mode (strict or mix) and queue_size.
func (n *FileSource) Configure(p Params, s Settings) error {
	if err := n.checkConfigure(s); err != nil {
		return err
	}

	path, err := p.Path("file_path")
	if err != nil {
		return fmt.Errorf("%s: %w", n.name, err)
	}
	name, _ := p.Get("format")
	format, err := formats.Resolve(name, path)
	if err != nil {
		return fmt.Errorf("%s: %w", n.name, err)
	}
	if _, ok := n.codecs.Get(format); !ok {
		return fmt.Errorf("%s: %w: %s", n.name, formats.ErrUnknownFormat, format)
	}
	loop, err := p.Bool("loop", false)
	if err != nil {
		return fmt.Errorf("%s: %w", n.name, err)
	}
	qsize, err := p.Int("queue_size", DefaultQueueSize)
	if err != nil || qsize <= 0 {
		return fmt.Errorf("%s: %w: queue_size", n.name, ErrInvalidParam)
	}
	mix := false
	switch mode, _ := p.Get("channel_mode"); mode {
	case "", "strict":
	case "mix":
		mix = true
	default:
		return fmt.Errorf("%s: %w: channel_mode=%q", n.name, ErrInvalidParam, mode)
	}

	n.path, n.format, n.loop, n.mix, n.qsize = path, format, loop, mix, qsize
	n.settings = s

	n.seekMu.Lock()
	err = n.open()
	n.seekMu.Unlock()
	if err != nil {
		return fmt.Errorf("%s: %w", n.name, err)
	}

	n.pos.Store(0)
	n.eos.Store(false)
	n.setState(Configured)
	log.WithFields(log.Fields{
		"node":     n.name,
		"file":     n.path,
		"format":   n.format,
		"duration": n.Duration(),
	}).Info("file source configured")
	return nil
}

// open (re)opens the file and builds the decode chain. Caller holds seekMu.
func (n *FileSource) open() error {
	n.closeFile()

	dec, _ := n.codecs.Get(n.format)
	f, err := os.Open(n.path)
	if err != nil {
		return err
	}
	raw, err := dec.Decode(f)
	if err != nil {
		f.Close()
		return err
	}

	want := n.settings.Layout.Channels
	if raw.Channels() != want && !n.mix {
		raw.Close()
		f.Close()
		return fmt.Errorf("%w: file has %d channels, layout %d (set channel_mode=mix)", ErrChannelMismatch, raw.Channels(), want)
	}

	n.file, n.raw, n.src, n.resamp = f, raw, raw, nil
	n.fileRate = float64(raw.SampleRate())
	n.frames = -1
	if l, ok := raw.(audio.Lengther); ok {
		n.frames = l.Frames()
	}

	if raw.Channels() != want {
		n.src = audio.NewChannelMixer(n.src, want)
	}
	if int(n.fileRate) != int(n.settings.SampleRate) {
		n.resamp = audio.NewResampler(n.src, int(n.settings.SampleRate))
		n.src = n.resamp
	}
	n.readPos = 0
	return nil
}

func (n *FileSource) closeFile() {
	if n.src != nil {
		n.src.Close()
	}
	if n.file != nil {
		n.file.Close()
	}
	n.file, n.raw, n.src, n.resamp = nil, nil, nil, nil
}

func (n *FileSource) Start() error {
	if err := n.transition(Running, Configured, Stopped); err != nil {
		return err
	}

	q := queue.New[block](n.qsize)
	n.seekMu.Lock()
	n.q = q
	n.seekMu.Unlock()
	n.popped = false
	n.wg.Add(1)
	go n.read(q)
	return nil
}

// Stop closes the queue, joins the reader and releases every queued block.
func (n *FileSource) Stop() error {
	if err := n.transition(Stopped, Running); err != nil {
		return nil
	}

	n.q.Close()
	n.wg.Wait()
	for _, b := range n.q.Flush() {
		b.buf.Release()
	}
	n.cur.Release()
	n.cur = nil
	return nil
}

func (n *FileSource) Close() error {
	_ = n.Stop()

	n.seekMu.Lock()
	n.closeFile()
	n.seekMu.Unlock()

	n.setState(Unconfigured)
	return nil
}

// Process starts a new tick: the buffer handed out for the previous tick
// is released.
func (n *FileSource) Process() error {
	n.cur.Release()
	n.cur = nil
	n.popped = false
	return nil
}

// Output pops the next block, waiting at most Wait. It returns nil on an
// underrun and once the file has ended. Blocks queued before a seek are
// dropped. Every call within one tick returns the same buffer.
func (n *FileSource) Output(pad int) *audio.Buffer {
	if pad != 0 || !n.running() {
		return nil
	}
	if n.popped {
		return n.cur
	}
	n.popped = true

	for {
		b, err := n.q.Receive(Wait)
		switch {
		case errors.Is(err, queue.ErrDrained):
			n.eos.Store(true)
			return nil
		case err != nil:
			return nil
		case b.gen != n.gen.Load():
			b.buf.Release()
			continue
		}
		n.cur = b.buf
		n.pos.Store(b.frame + int64(b.buf.Frames()))
		return n.cur
	}
}

func (n *FileSource) SetInput(*audio.Buffer, int) error {
	return ErrNoInput
}

// SeekTo moves playback to seconds from the start. Queued blocks are
// discarded and end of stream is cleared.
func (n *FileSource) SeekTo(seconds float64) error {
	if st := n.State(); st == Unconfigured {
		return fmt.Errorf("%w: %s is %v", ErrInvalidState, n.name, st)
	}
	if seconds < 0 {
		return fmt.Errorf("%w: negative position %v", ErrInvalidParam, seconds)
	}

	n.seekMu.Lock()
	defer n.seekMu.Unlock()

	frame := int64(seconds * n.fileRate)
	if err := n.seekFile(frame); err != nil {
		return fmt.Errorf("%s: seek: %w", n.name, err)
	}
	n.readPos = int64(seconds * n.settings.SampleRate)

	n.gen.Add(1)
	if n.q != nil {
		for _, b := range n.q.Reset() {
			b.buf.Release()
		}
	}
	n.eos.Store(false)
	n.pos.Store(n.readPos)
	select {
	case n.seeked <- struct{}{}:
	default:
	}

	log.WithFields(log.Fields{"node": n.name, "seconds": seconds}).Debug("file source seek")
	return nil
}

// seekFile positions the decoder at a file frame. Decoders that cannot
// seek are reopened and read forward. Caller holds seekMu.
func (n *FileSource) seekFile(frame int64) error {
	if s, ok := n.raw.(audio.Seeker); ok {
		if err := s.SeekFrame(frame); err == nil {
			if n.resamp != nil {
				n.resamp.Reset()
			}
			return nil
		}
	}

	if err := n.open(); err != nil {
		return err
	}
	ch := n.raw.Channels()
	skip := make([]float32, 4096*ch)
	for left := frame * int64(ch); left > 0; {
		k, err := n.raw.ReadSamples(skip[:min(int64(len(skip)), left)])
		left -= int64(k)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if k == 0 {
			return nil
		}
	}
	return nil
}

// Position is the playback position in seconds of the last buffer handed
// out.
func (n *FileSource) Position() float64 {
	return float64(n.pos.Load()) / n.settings.SampleRate
}

// Duration is the file length in seconds, or 0 when unknown.
func (n *FileSource) Duration() float64 {
	n.seekMu.Lock()
	defer n.seekMu.Unlock()

	if n.frames < 0 || n.fileRate <= 0 {
		return 0
	}
	return float64(n.frames) / n.fileRate
}

// EOF reports whether the consumer has seen the end of the file.
func (n *FileSource) EOF() bool { return n.eos.Load() }

func (n *FileSource) read(q *queue.Bounded[block]) {
	defer n.wg.Done()

	s := n.settings
	chans := s.Layout.Channels
	scratch := make([]float32, s.BufferSize*chans)
	l := log.WithField("node", n.name)

	for {
		select {
		case <-q.Done():
			return
		default:
		}

		n.seekMu.Lock()
		gen := n.gen.Load()
		start := n.readPos
		filled, err := readFull(n.src, scratch)
		n.readPos += int64(filled / chans)
		n.seekMu.Unlock()

		if filled > 0 {
			clear(scratch[filled:])
			if !n.push(q, scratch, gen, start) {
				return
			}
		}

		switch {
		case err == nil:
			continue
		case errors.Is(err, io.EOF) && n.loop:
			n.seekMu.Lock()
			serr := n.seekFile(0)
			n.readPos = 0
			n.seekMu.Unlock()
			if serr == nil {
				l.Debug("file source looped")
				continue
			}
			l.Errorf("loop seek: %v", serr)
		case errors.Is(err, io.EOF):
			l.Debug("file source reached end of file")
		default:
			l.Errorf("decode: %v", err)
		}

		q.Finish()
		if !n.waitSeek(q, gen) {
			return
		}
	}
}

// waitSeek blocks at end of stream until a seek newer than gen or Stop.
func (n *FileSource) waitSeek(q *queue.Bounded[block], gen uint64) bool {
	for {
		select {
		case <-q.Done():
			return false
		case <-n.seeked:
			if n.gen.Load() == gen {
				continue
			}
			// The seek may have landed before Finish; start clean.
			for _, b := range q.Reset() {
				b.buf.Release()
			}
			return true
		}
	}
}

// push queues one block, retrying until there is room, the block goes
// stale or the queue is closed. It reports whether the reader should go on.
func (n *FileSource) push(q *queue.Bounded[block], samples []float32, gen uint64, frame int64) bool {
	s := n.settings
	buf, err := audio.NewBuffer(s.BufferSize, s.SampleRate, s.Format, s.Layout)
	if err != nil {
		log.WithField("node", n.name).Errorf("allocate: %v", err)
		return true
	}
	if err := buf.SetInterleaved(samples); err != nil {
		buf.Release()
		log.WithField("node", n.name).Errorf("fill: %v", err)
		return true
	}

	for {
		err := q.Send(block{buf: buf, gen: gen, frame: frame}, Wait)
		switch {
		case err == nil:
			return true
		case errors.Is(err, queue.ErrClosed):
			buf.Release()
			return false
		case gen != n.gen.Load():
			buf.Release()
			return true
		}
	}
}

// readFull reads until dst is full or the source fails. It returns the
// number of values read.
func readFull(src audio.Source, dst []float32) (int, error) {
	total := 0
	for total < len(dst) {
		k, err := src.ReadSamples(dst[total:])
		total += k
		if err != nil {
			return total, err
		}
		if k == 0 {
			return total, io.EOF
		}
	}
	return total, nil
}
