// SPDX-License-Identifier: EPL-2.0

package graph

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/ik5/audroute/audio"
	"github.com/ik5/audroute/formats"
	"github.com/ik5/audroute/internal/log"
	"github.com/ik5/audroute/internal/queue"
)

// FileSink encodes its input on a writer goroutine.
type FileSink struct {
	base
	codecs *audio.Registry

	path     string
	format   string
	bitDepth int
	qsize    int

	q  *queue.Bounded[*audio.Buffer]
	wg sync.WaitGroup

	written atomic.Int64 // frames
	failed  atomic.Int64 // buffers that could not be written
}

func NewFileSink(name string, codecs *audio.Registry) *FileSink {
	if codecs == nil {
		codecs = formats.NewRegistry()
	}
	return &FileSink{base: base{name: name, typ: FileSinkType}, codecs: codecs}
}

func (n *FileSink) Inputs() int  { return 1 }
func (n *FileSink) Outputs() int { return 0 }

// Configure checks the target. Parameters: file_path (required), format,
// bit_depth (16, 24 or 32) and queue_size. The file is created by Start.
func (n *FileSink) Configure(p Params, s Settings) error {
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
	if _, ok := n.codecs.GetEncoder(format); !ok {
		return fmt.Errorf("%s: %w: no encoder for %s", n.name, formats.ErrUnknownFormat, format)
	}
	depth, err := p.Int("bit_depth", 16)
	if err != nil {
		return fmt.Errorf("%s: %w", n.name, err)
	}
	switch depth {
	case 16, 24, 32:
	default:
		return fmt.Errorf("%s: %w: bit_depth=%d", n.name, ErrInvalidParam, depth)
	}
	qsize, err := p.Int("queue_size", DefaultQueueSize)
	if err != nil || qsize <= 0 {
		return fmt.Errorf("%s: %w: queue_size", n.name, ErrInvalidParam)
	}
	if dir := filepath.Dir(path); dir != "" {
		if fi, err := os.Stat(dir); err != nil || !fi.IsDir() {
			return fmt.Errorf("%s: %w: no directory %s", n.name, ErrInvalidParam, dir)
		}
	}

	n.path, n.format, n.bitDepth, n.qsize = path, format, depth, qsize
	n.settings = s
	n.setState(Configured)
	return nil
}

// Start creates the file and the writer. A restart after Stop truncates
// the file.
func (n *FileSink) Start() error {
	st := n.State()
	if st != Configured && st != Stopped {
		return fmt.Errorf("%w: %s is %v", ErrInvalidState, n.name, st)
	}

	f, err := os.Create(n.path)
	if err != nil {
		return fmt.Errorf("%s: %w", n.name, err)
	}
	enc, _ := n.codecs.GetEncoder(n.format)
	sink, err := enc.Encode(f, int(n.settings.SampleRate), n.settings.Layout.Channels, n.bitDepth)
	if err != nil {
		f.Close()
		return fmt.Errorf("%s: %w", n.name, err)
	}

	n.q = queue.New[*audio.Buffer](n.qsize)
	n.written.Store(0)
	n.failed.Store(0)
	n.wg.Add(1)
	go n.write(n.q, f, sink)

	n.setState(Running)
	log.WithFields(log.Fields{"node": n.name, "file": n.path}).Info("file sink started")
	return nil
}

// Stop refuses further input, lets the writer drain what is queued and
// finalize the file, then joins it.
func (n *FileSink) Stop() error {
	if err := n.transition(Stopped, Running); err != nil {
		return nil
	}

	n.q.Finish()
	n.wg.Wait()
	n.q.Close()
	for _, b := range n.q.Flush() {
		b.Release()
	}
	return nil
}

func (n *FileSink) Close() error {
	_ = n.Stop()
	n.setState(Unconfigured)
	return nil
}

func (n *FileSink) Output(int) *audio.Buffer { return nil }

func (n *FileSink) Process() error { return nil }

// SetInput queues a reference to buf, waiting at most Wait for room.
func (n *FileSink) SetInput(buf *audio.Buffer, pad int) error {
	if pad != 0 {
		return fmt.Errorf("%w: %s has no input %d", ErrInvalidPad, n.name, pad)
	}
	if !n.running() {
		return ErrInvalidState
	}
	if buf.Channels() != n.settings.Layout.Channels {
		return fmt.Errorf("%w: %d channels into %d", ErrChannelMismatch, buf.Channels(), n.settings.Layout.Channels)
	}

	ref := buf.Ref()
	if ref == nil {
		return audio.ErrInvalidBuffer
	}
	if err := n.q.Send(ref, Wait); err != nil {
		ref.Release()
		if errors.Is(err, queue.ErrTimeout) {
			return fmt.Errorf("%w: %s", ErrQueueFull, n.name)
		}
		return fmt.Errorf("%w: %w", ErrInvalidState, err)
	}
	return nil
}

// Written is the number of frames encoded since Start.
func (n *FileSink) Written() int64 { return n.written.Load() }

func (n *FileSink) write(q *queue.Bounded[*audio.Buffer], f *os.File, sink audio.Sink) {
	defer n.wg.Done()

	l := log.WithField("node", n.name)
	var samples []float32
	for {
		buf, err := q.Receive(Wait)
		if errors.Is(err, queue.ErrTimeout) {
			continue
		}
		if err != nil {
			break
		}

		samples, err = buf.Interleaved(samples)
		frames := buf.Frames()
		buf.Release()
		if err == nil {
			err = sink.WriteSamples(samples)
		}
		if err != nil {
			if n.failed.Add(1) == 1 {
				l.Errorf("write: %v", err)
			}
			continue
		}
		n.written.Add(int64(frames))
	}

	if err := sink.Close(); err != nil {
		l.Errorf("finalize: %v", err)
	}
	if err := f.Close(); err != nil {
		l.Errorf("close: %v", err)
	}
	l.WithField("frames", n.written.Load()).Info("file sink closed")
}
