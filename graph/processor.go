// SPDX-License-Identifier: EPL-2.0

package graph

import (
	"fmt"
	"sync"

	"github.com/ik5/audroute/audio"
	"github.com/ik5/audroute/filter"
)

// Processor runs a filter chain over its single input. The input delivered
// in one tick is processed by the next Process call.
type Processor struct {
	base

	mu      sync.Mutex
	chain   *filter.Chain
	in      *audio.Buffer
	out     *audio.Buffer
	ready   bool
	scratch []float32
}

func NewProcessor(name string) *Processor {
	return &Processor{base: base{name: name, typ: ProcessorType}}
}

func (n *Processor) Inputs() int  { return 1 }
func (n *Processor) Outputs() int { return 1 }

// Configure parses filter_description into a chain.
func (n *Processor) Configure(p Params, s Settings) error {
	if err := n.checkConfigure(s); err != nil {
		return err
	}
	desc, err := p.Required("filter_description")
	if err != nil {
		return fmt.Errorf("%s: %w", n.name, err)
	}
	chain, err := filter.Parse(desc, s.SampleRate, s.Layout.Channels)
	if err != nil {
		return fmt.Errorf("%s: %w: %w", n.name, ErrInvalidParam, err)
	}
	out, err := audio.NewBuffer(s.BufferSize, s.SampleRate, s.Format, s.Layout)
	if err != nil {
		chain.Close()
		return fmt.Errorf("%s: %w", n.name, err)
	}

	n.mu.Lock()
	n.chain = chain
	n.out = out
	n.mu.Unlock()
	n.scratch = make([]float32, s.BufferSize*s.Layout.Channels)
	n.settings = s
	n.setState(Configured)
	return nil
}

func (n *Processor) Start() error {
	if err := n.transition(Running, Configured, Stopped); err != nil {
		return err
	}
	n.mu.Lock()
	n.chain.Reset()
	n.mu.Unlock()
	return nil
}

func (n *Processor) Stop() error {
	if err := n.transition(Stopped, Running); err != nil {
		return nil
	}

	n.mu.Lock()
	n.in.Release()
	n.in = nil
	n.ready = false
	n.mu.Unlock()
	return nil
}

func (n *Processor) Close() error {
	_ = n.Stop()

	n.mu.Lock()
	n.out.Release()
	n.out = nil
	var err error
	if n.chain != nil {
		err = n.chain.Close()
		n.chain = nil
	}
	n.mu.Unlock()

	n.setState(Unconfigured)
	return err
}

// SetInput keeps a reference to buf until the next Process.
func (n *Processor) SetInput(buf *audio.Buffer, pad int) error {
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

	n.mu.Lock()
	old := n.in
	n.in = ref
	n.mu.Unlock()

	old.Release()
	return nil
}

// Process filters the pending input into the output buffer. Without input
// the node has no output for this tick.
func (n *Processor) Process() error {
	n.mu.Lock()
	in := n.in
	chain := n.chain
	n.in = nil
	n.ready = false
	n.mu.Unlock()

	if in == nil || chain == nil || !n.running() {
		in.Release()
		return nil
	}
	defer in.Release()

	samples, err := in.Interleaved(n.scratch)
	if err != nil {
		return err
	}
	n.scratch = samples
	if err := chain.Process(samples); err != nil {
		return err
	}

	s := n.settings
	n.mu.Lock()
	defer n.mu.Unlock()

	// A consumer still holding last tick's output keeps it; write to fresh
	// storage instead.
	if n.out.RefCount() > 1 || n.out.Frames() != in.Frames() {
		if err := n.out.Allocate(in.Frames(), s.SampleRate, s.Format, s.Layout); err != nil {
			return err
		}
	}
	if err := n.out.SetInterleaved(samples); err != nil {
		return err
	}
	n.ready = true
	return nil
}

func (n *Processor) Output(pad int) *audio.Buffer {
	if pad != 0 {
		return nil
	}
	n.mu.Lock()
	defer n.mu.Unlock()

	if !n.ready {
		return nil
	}
	return n.out
}

// UpdateParameter changes one parameter of a stage in the running chain.
func (n *Processor) UpdateParameter(filterName, key, value string) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.chain == nil {
		return fmt.Errorf("%w: %s is %v", ErrInvalidState, n.name, n.State())
	}
	return n.chain.Set(filterName, key, value)
}
