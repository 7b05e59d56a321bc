// SPDX-License-Identifier: EPL-2.0

// Package engine builds a node graph from a configuration and runs it one
// tick at a time. Ticks come from the hardware device callback, or from a
// software clock when no device is configured.
//
// Each tick runs every node's Process in topological order, then walks the
// connections handing each source's output to its sink. A failing node or
// connection is reported on the status channel and the tick goes on.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/ik5/audroute/audio"
	"github.com/ik5/audroute/config"
	"github.com/ik5/audroute/control"
	"github.com/ik5/audroute/formats"
	"github.com/ik5/audroute/graph"
	"github.com/ik5/audroute/hw"
)

type State uint8

const (
	Uninitialized State = iota
	Initialized
	Running
	Stopped
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Initialized:
		return "initialized"
	case Running:
		return "running"
	case Stopped:
		return "stopped"
	default:
		return fmt.Sprintf("State(%d)", uint8(s))
	}
}

// Controller receives the configured startup commands, in order.
type Controller interface {
	Send(ctx context.Context, command string) error
	Close() error
}

// Options overrides collaborators the configuration would otherwise
// build. The engine does not close a Device or Controller passed here.
type Options struct {
	Device     hw.Manager
	Codecs     *audio.Registry
	Controller Controller
	// Manual leaves ticking to the caller through ProcessBlock when there
	// is no device. Offline rendering uses it to run faster than real time.
	Manual bool
}

type Engine struct {
	id     uuid.UUID
	cfg    *config.Config
	opts   Options
	status *statusBus

	// mu serializes lifecycle calls and guards the graph.
	mu            sync.Mutex
	state         State
	settings      graph.Settings
	device        hw.Manager
	ownDevice     bool
	controller    Controller
	ownController bool
	nodes         []graph.Node
	byName        map[string]graph.Node
	conns         []graph.Connection
	order         []graph.Node
	sources       []*graph.HardwareSource
	sinks         []*graph.HardwareSink

	// tickMu is held for the whole of one tick.
	tickMu    sync.Mutex
	running   atomic.Bool
	ticks     atomic.Int64
	overruns  atomic.Int64
	clockStop chan struct{}
	clockWG   sync.WaitGroup
}

func New(cfg *config.Config, opts Options) *Engine {
	if opts.Codecs == nil {
		opts.Codecs = formats.NewRegistry()
	}
	id := uuid.New()
	return &Engine{
		id:     id,
		cfg:    cfg,
		opts:   opts,
		status: newStatusBus(id.String()),
	}
}

func (e *Engine) ID() string { return e.id.String() }

func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// AddStatusCallback subscribes fn to status events. Callbacks run on one
// dispatcher goroutine, never on the audio path; a panic in fn is
// recovered and logged.
func (e *Engine) AddStatusCallback(fn StatusFunc) uuid.UUID {
	return e.status.add(fn)
}

// RemoveStatusCallback reports whether id was subscribed.
func (e *Engine) RemoveStatusCallback(id uuid.UUID) bool {
	return e.status.remove(id)
}

// Initialize opens the device, builds and configures every node, checks
// the connections, computes the process order and replays the controller
// commands. On error everything built so far is released and the engine
// stays Uninitialized.
func (e *Engine) Initialize(ctx context.Context) error {
	e.mu.Lock()

	if e.state != Uninitialized {
		e.mu.Unlock()
		return fmt.Errorf("%w: initialize while %v", ErrInvalidState, e.state)
	}

	e.status.start()
	if err := e.initialize(ctx); err != nil {
		e.status.emitf(Error, "initialize: %v", err)
		e.teardown()
		flush := e.status.detach()
		e.mu.Unlock()
		// subscribers may call back into the engine
		flush()
		return err
	}
	e.state = Initialized
	e.status.emitf(Info, "engine initialized with %d nodes and %d connections", len(e.nodes), len(e.conns))
	e.mu.Unlock()
	return nil
}

func (e *Engine) initialize(ctx context.Context) error {
	if err := e.cfg.Validate(); err != nil {
		return err
	}
	format, _ := e.cfg.Format()
	layout, _ := e.cfg.Layout()
	e.settings = graph.Settings{
		SampleRate: e.cfg.SampleRate,
		BufferSize: e.cfg.BufferSize,
		Format:     format,
		Layout:     layout,
	}

	if err := e.openDevice(); err != nil {
		return err
	}
	if err := e.buildNodes(); err != nil {
		return err
	}
	if err := e.buildConnections(); err != nil {
		return err
	}
	order, err := CalculateProcessOrder(e.nodes, e.conns)
	if err != nil {
		return err
	}
	e.order = order
	if err := e.createBuffers(); err != nil {
		return err
	}
	return e.connectController(ctx)
}

func (e *Engine) openDevice() error {
	switch {
	case e.opts.Device != nil:
		e.device = e.opts.Device
	case e.cfg.Driver != "":
		dev, err := hw.Open(e.cfg.Driver)
		if err != nil {
			return err
		}
		e.device, e.ownDevice = dev, true
		if err := dev.LoadDriver(e.cfg.Device); err != nil {
			return fmt.Errorf("load driver %s: %w", e.cfg.Driver, err)
		}
	default:
		return nil
	}

	if err := e.device.InitDevice(e.settings.SampleRate, e.settings.BufferSize); err != nil {
		return fmt.Errorf("init device: %w", err)
	}
	return nil
}

func (e *Engine) buildNodes() error {
	env := graph.Env{Device: e.device, Codecs: e.opts.Codecs}
	e.byName = make(map[string]graph.Node, len(e.cfg.Nodes))

	for _, nc := range e.cfg.Nodes {
		t, err := graph.ParseType(nc.Type)
		if err != nil {
			return fmt.Errorf("node %s: %w", nc.Name, err)
		}
		n, err := graph.New(t, nc.Name, env)
		if err != nil {
			return err
		}
		if err := n.Configure(graph.Params(nc.Params), e.settings); err != nil {
			return fmt.Errorf("configure %s: %w", nc.Name, err)
		}

		e.nodes = append(e.nodes, n)
		e.byName[nc.Name] = n
		switch v := n.(type) {
		case *graph.HardwareSource:
			e.sources = append(e.sources, v)
		case *graph.HardwareSink:
			e.sinks = append(e.sinks, v)
		}
		e.status.emitf(Info, "node %s (%v) configured", nc.Name, t)
	}
	return nil
}

type pad struct {
	node graph.Node
	pad  int
}

func (e *Engine) buildConnections() error {
	used := make(map[pad]bool, len(e.cfg.Connections))

	for _, cc := range e.cfg.Connections {
		c := graph.Connection{
			Source:    e.byName[cc.Source],
			SourcePad: cc.SourcePad,
			Sink:      e.byName[cc.Sink],
			SinkPad:   cc.SinkPad,
		}
		if c.Source == nil || c.Sink == nil {
			return fmt.Errorf("%w: %s -> %s", ErrUnknownNode, cc.Source, cc.Sink)
		}
		if err := c.Validate(); err != nil {
			return err
		}
		in := pad{c.Sink, c.SinkPad}
		if used[in] {
			return fmt.Errorf("%w: %s:%d", ErrPadInUse, cc.Sink, cc.SinkPad)
		}
		used[in] = true
		e.conns = append(e.conns, c)
	}
	return nil
}

func (e *Engine) createBuffers() error {
	if e.device == nil {
		return nil
	}
	var inputs, outputs []int
	for _, s := range e.sources {
		inputs = append(inputs, s.DeviceChannels()...)
	}
	for _, s := range e.sinks {
		outputs = append(outputs, s.DeviceChannels()...)
	}
	if err := e.device.CreateBuffers(inputs, outputs); err != nil {
		return fmt.Errorf("create device buffers: %w", err)
	}
	return nil
}

// connectController dials the controller, if one is configured, and
// replays the startup commands. Not reaching the controller is fatal; a
// command that fails is only a warning.
func (e *Engine) connectController(ctx context.Context) error {
	ctrl := e.opts.Controller
	if ctrl == nil {
		if !e.cfg.Control.Enabled() {
			if len(e.cfg.Commands) > 0 {
				e.status.emitf(Warning, "%d controller commands ignored: no controller configured", len(e.cfg.Commands))
			}
			return nil
		}
		ws, err := control.Dial(ctx, e.cfg.Control)
		if err != nil {
			return fmt.Errorf("controller: %w", err)
		}
		ctrl, e.ownController = ws, true
	}
	e.controller = ctrl

	timeout := time.Duration(e.cfg.Control.Timeout)
	if timeout <= 0 {
		timeout = config.DefaultControlTimeout
	}
	sent := 0
	for i, cmd := range e.cfg.Commands {
		cctx, cancel := context.WithTimeout(ctx, timeout)
		err := ctrl.Send(cctx, cmd)
		cancel()
		if err != nil {
			e.status.emitf(Warning, "controller command %d %q: %v", i, cmd, err)
			continue
		}
		sent++
	}
	if len(e.cfg.Commands) > 0 {
		e.status.emitf(Info, "replayed %d of %d controller commands", sent, len(e.cfg.Commands))
	}
	return nil
}

// Run starts every node, then the device or the software clock. Running
// an engine that already runs is a no-op.
func (e *Engine) Run() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch e.state {
	case Running:
		return nil
	case Initialized, Stopped:
	default:
		return fmt.Errorf("%w: run while %v", ErrInvalidState, e.state)
	}

	started := make([]graph.Node, 0, len(e.order))
	for _, n := range e.order {
		if err := n.Start(); err != nil {
			for _, s := range started {
				_ = s.Stop()
			}
			e.status.emitf(Error, "start %s: %v", n.Name(), err)
			return fmt.Errorf("start %s: %w", n.Name(), err)
		}
		started = append(started, n)
	}

	e.running.Store(true)
	if e.device != nil {
		e.device.SetCallback(e.deviceTick)
		if err := e.device.Start(); err != nil {
			e.running.Store(false)
			e.device.SetCallback(nil)
			for _, s := range started {
				_ = s.Stop()
			}
			e.status.emitf(Error, "start device: %v", err)
			return fmt.Errorf("start device: %w", err)
		}
	} else if !e.opts.Manual {
		e.startClock()
	}

	e.state = Running
	e.status.emit(Info, "engine running")
	return nil
}

// Stop halts the tick source, waits for an in-flight tick and stops every
// node. It returns once every thread the engine owns has exited.
func (e *Engine) Stop() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stop()
}

func (e *Engine) stop() error {
	if e.state != Running {
		return nil
	}

	e.running.Store(false)
	var errs []error
	if e.device != nil {
		if err := e.device.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("stop device: %w", err))
		}
		e.device.SetCallback(nil)
	}
	if e.clockStop != nil {
		close(e.clockStop)
		e.clockWG.Wait()
		e.clockStop = nil
	}
	// a manual ProcessBlock may still be in flight
	e.tickMu.Lock()
	e.tickMu.Unlock()

	for _, n := range e.order {
		if err := n.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("stop %s: %w", n.Name(), err))
		}
	}

	e.state = Stopped
	e.status.emit(Info, "engine stopped")
	return errors.Join(errs...)
}

// Cleanup stops a running engine and returns it to Initialized so it can
// run again. The graph is kept.
func (e *Engine) Cleanup() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	err := e.stop()
	if e.state == Stopped {
		e.state = Initialized
		e.status.emit(Info, "engine cleaned up")
	}
	return err
}

// Close stops the engine, closes every node and whatever device or
// controller it opened, and flushes the status channel. The engine is
// Uninitialized afterwards. Close is idempotent.
func (e *Engine) Close() error {
	e.mu.Lock()
	err := e.stop()
	if e.state != Uninitialized {
		err = errors.Join(err, e.teardown())
		e.state = Uninitialized
		e.status.emit(Info, "engine closed")
	}
	flush := e.status.detach()
	e.mu.Unlock()

	flush()
	return err
}

func (e *Engine) teardown() error {
	var errs []error
	for i := len(e.nodes) - 1; i >= 0; i-- {
		if err := e.nodes[i].Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", e.nodes[i].Name(), err))
		}
	}
	e.nodes, e.byName, e.conns, e.order = nil, nil, nil, nil
	e.sources, e.sinks = nil, nil

	if e.controller != nil && e.ownController {
		if err := e.controller.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close controller: %w", err))
		}
	}
	e.controller, e.ownController = nil, false

	if e.device != nil {
		e.device.SetCallback(nil)
		if e.ownDevice {
			if err := e.device.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close device: %w", err))
			}
		}
	}
	e.device, e.ownDevice = nil, false
	return errors.Join(errs...)
}

// Node returns the node called name, or nil.
func (e *Engine) Node(name string) graph.Node {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.byName[name]
}

// UpdateParameter changes key on one filter of a processor node while it
// runs.
func (e *Engine) UpdateParameter(node, filter, key, value string) error {
	n := e.Node(node)
	if n == nil {
		return fmt.Errorf("%w: %s", ErrUnknownNode, node)
	}
	p, ok := n.(*graph.Processor)
	if !ok {
		return fmt.Errorf("%w: %s is %v", ErrNotProcessor, node, n.Type())
	}
	return p.UpdateParameter(filter, key, value)
}

type NodeStatus struct {
	Name  string
	Type  graph.Type
	State graph.State
}

// Status is a point in time snapshot of the engine.
type Status struct {
	ID       string
	State    State
	Ticks    int64
	Overruns int64
	// Dropped counts status events lost to a full queue or emitted while
	// no dispatcher ran.
	Dropped int64
	Nodes   []NodeStatus
}

func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()

	st := Status{
		ID:       e.id.String(),
		State:    e.state,
		Ticks:    e.ticks.Load(),
		Overruns: e.overruns.Load(),
		Dropped:  e.status.dropped.Load(),
		Nodes:    make([]NodeStatus, 0, len(e.nodes)),
	}
	for _, n := range e.nodes {
		st.Nodes = append(st.Nodes, NodeStatus{Name: n.Name(), Type: n.Type(), State: n.State()})
	}
	return st
}

// ProcessOrder returns the node names in the order they are processed.
func (e *Engine) ProcessOrder() []string {
	e.mu.Lock()
	defer e.mu.Unlock()

	names := make([]string, len(e.order))
	for i, n := range e.order {
		names[i] = n.Name()
	}
	return names
}
