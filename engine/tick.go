// SPDX-License-Identifier: EPL-2.0

package engine

import (
	"time"

	"github.com/ik5/audroute/graph"
)

// ProcessBlock runs one tick on the caller's goroutine. Ticks driven by
// the device or the clock call the same code.
func (e *Engine) ProcessBlock() error {
	if !e.processBlock() {
		return ErrNotRunning
	}
	return nil
}

func (e *Engine) processBlock() bool {
	e.tickMu.Lock()
	defer e.tickMu.Unlock()

	if !e.running.Load() {
		return false
	}
	for _, n := range e.order {
		e.process(n)
	}
	for _, c := range e.conns {
		e.transfer(c)
	}
	e.ticks.Add(1)
	return true
}

func (e *Engine) process(n graph.Node) {
	defer func() {
		if r := recover(); r != nil {
			e.status.emitf(Warning, "node %s panicked: %v", n.Name(), r)
		}
	}()
	if err := n.Process(); err != nil {
		e.status.emitf(Warning, "node %s: %v", n.Name(), err)
	}
}

func (e *Engine) transfer(c graph.Connection) {
	defer func() {
		if r := recover(); r != nil {
			e.status.emitf(Warning, "connection %v panicked: %v", c, r)
		}
	}()
	buf := c.Source.Output(c.SourcePad)
	if buf == nil {
		return
	}
	if err := c.Sink.SetInput(buf, c.SinkPad); err != nil {
		e.status.emitf(Warning, "connection %v: %v", c, err)
	}
}

// deviceTick runs on the device thread. Inputs are pulled before the tick
// and outputs pushed after it, both in the half the device is working on.
func (e *Engine) deviceTick(half int) {
	if !e.running.Load() {
		return
	}

	for _, s := range e.sources {
		native, err := e.device.InputBuffers(half, s.DeviceChannels())
		if err == nil {
			err = s.ReceiveNative(half, native)
		}
		if err != nil {
			e.status.emitf(Warning, "%s: %v", s.Name(), err)
		}
	}

	e.processBlock()

	for _, s := range e.sinks {
		native, err := e.device.OutputBuffers(half, s.DeviceChannels())
		if err == nil {
			err = s.ProvideNative(half, native)
		}
		if err != nil {
			e.status.emitf(Warning, "%s: %v", s.Name(), err)
		}
	}
}

// Period is the duration of one tick at the configured rate.
func (e *Engine) Period() time.Duration {
	return time.Duration(float64(e.cfg.BufferSize) / e.cfg.SampleRate * float64(time.Second))
}

func (e *Engine) startClock() {
	stop := make(chan struct{})
	e.clockStop = stop
	e.clockWG.Add(1)
	go e.clock(e.Period(), stop)
}

// clock drives ticks when there is no device. A tick that runs past the
// next deadline counts as an overrun; the schedule then restarts from the
// moment it finished rather than trying to catch up.
func (e *Engine) clock(period time.Duration, stop <-chan struct{}) {
	defer e.clockWG.Done()

	next := time.Now().Add(period)
	timer := time.NewTimer(period)
	defer timer.Stop()

	for {
		select {
		case <-stop:
			return
		case <-timer.C:
		}

		e.processBlock()

		done := time.Now()
		next = next.Add(period)
		if done.After(next) {
			e.overruns.Add(1)
			e.status.emitf(Warning, "tick overran by %v", done.Sub(next).Round(time.Microsecond))
			next = done
		}
		timer.Reset(time.Until(next))
	}
}
