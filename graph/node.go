// SPDX-License-Identifier: EPL-2.0

// Package graph holds the node variants the engine wires together. The set
// of variants is closed: HardwareSource, HardwareSink, FileSource, FileSink
// and Processor.
package graph

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ik5/audroute/audio"
	"github.com/ik5/audroute/hw"
)

var (
	ErrUnknownType     = errors.New("unknown node type")
	ErrInvalidState    = errors.New("invalid node state")
	ErrMissingParam    = errors.New("missing required parameter")
	ErrInvalidParam    = errors.New("invalid parameter")
	ErrInvalidSettings = errors.New("invalid stream settings")
	ErrInvalidPad      = errors.New("invalid pad")
	ErrNoInput         = errors.New("node has no inputs")
	ErrNoDevice        = errors.New("hardware device not available")
	ErrQueueFull       = errors.New("node queue full")
	ErrChannelMismatch = errors.New("channel count mismatch")
)

// Wait bounds every queue wait a file node does, so Stop is observed
// within one period.
const Wait = 500 * time.Millisecond

type Type uint8

const (
	HardwareSourceType Type = iota + 1
	HardwareSinkType
	FileSourceType
	FileSinkType
	ProcessorType
)

var typeNames = map[Type]string{
	HardwareSourceType: "hardware_source",
	HardwareSinkType:   "hardware_sink",
	FileSourceType:     "file_source",
	FileSinkType:       "file_sink",
	ProcessorType:      "processor",
}

var typeAliases = map[string]Type{
	"asio_source":      HardwareSourceType,
	"asio_sink":        HardwareSinkType,
	"ffmpeg_processor": ProcessorType,
}

func ParseType(s string) (Type, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for t, name := range typeNames {
		if name == s {
			return t, nil
		}
	}
	if t, ok := typeAliases[s]; ok {
		return t, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownType, s)
}

func (t Type) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("Type(%d)", uint8(t))
}

type State uint8

const (
	Unconfigured State = iota
	Configured
	Running
	Stopped
)

func (s State) String() string {
	switch s {
	case Unconfigured:
		return "unconfigured"
	case Configured:
		return "configured"
	case Running:
		return "running"
	case Stopped:
		return "stopped"
	default:
		return fmt.Sprintf("State(%d)", uint8(s))
	}
}

// Settings is the stream shape every node is configured with.
type Settings struct {
	SampleRate float64
	BufferSize int
	Format     audio.SampleFormat
	Layout     audio.ChannelLayout
}

func (s Settings) Validate() error {
	switch {
	case s.SampleRate <= 0:
		return fmt.Errorf("%w: sample rate %v", ErrInvalidSettings, s.SampleRate)
	case s.BufferSize <= 0 || s.BufferSize > audio.MaxFrames:
		return fmt.Errorf("%w: buffer size %d", ErrInvalidSettings, s.BufferSize)
	case !s.Format.Valid():
		return fmt.Errorf("%w: format %v", ErrInvalidSettings, s.Format)
	case !s.Layout.Valid():
		return fmt.Errorf("%w: layout %v", ErrInvalidSettings, s.Layout)
	}
	return nil
}

// Node is implemented only by the variants in this package. The engine
// dispatches on the concrete type.
type Node interface {
	Name() string
	Type() Type
	State() State
	Inputs() int
	Outputs() int

	// Configure is valid only while Unconfigured. On error the node stays
	// Unconfigured and holds no allocations.
	Configure(p Params, s Settings) error
	Start() error
	// Stop is idempotent.
	Stop() error
	// Close stops the node and releases everything it owns. The node is
	// Unconfigured afterwards.
	Close() error

	// Output returns the buffer available on pad for this tick, or nil.
	// The buffer is borrowed until the next Process call.
	Output(pad int) *audio.Buffer
	// SetInput hands the node a buffer borrowed for the current tick.
	SetInput(buf *audio.Buffer, pad int) error
	// Process does the node's per tick work. It never blocks unboundedly.
	Process() error

	sealed()
}

// Env carries the collaborators nodes are built with.
type Env struct {
	Device hw.Manager
	Codecs *audio.Registry
}

// New builds an unconfigured node of type t.
func New(t Type, name string, env Env) (Node, error) {
	switch t {
	case HardwareSourceType:
		if env.Device == nil {
			return nil, fmt.Errorf("%w: %s needs a device", ErrNoDevice, name)
		}
		return NewHardwareSource(name, env.Device), nil
	case HardwareSinkType:
		if env.Device == nil {
			return nil, fmt.Errorf("%w: %s needs a device", ErrNoDevice, name)
		}
		return NewHardwareSink(name, env.Device), nil
	case FileSourceType:
		return NewFileSource(name, env.Codecs), nil
	case FileSinkType:
		return NewFileSink(name, env.Codecs), nil
	case ProcessorType:
		return NewProcessor(name), nil
	default:
		return nil, fmt.Errorf("%w: %v", ErrUnknownType, t)
	}
}

// base carries the name, state and settings every variant shares.
type base struct {
	name     string
	typ      Type
	stateMu  sync.Mutex
	state    State
	settings Settings
}

func (b *base) Name() string { return b.name }
func (b *base) Type() Type   { return b.typ }
func (b *base) sealed()      {}

func (b *base) State() State {
	b.stateMu.Lock()
	defer b.stateMu.Unlock()
	return b.state
}

func (b *base) running() bool {
	return b.State() == Running
}

func (b *base) setState(s State) {
	b.stateMu.Lock()
	b.state = s
	b.stateMu.Unlock()
}

// transition moves from any of the given states to next.
func (b *base) transition(next State, from ...State) error {
	b.stateMu.Lock()
	defer b.stateMu.Unlock()

	for _, s := range from {
		if b.state == s {
			b.state = next
			return nil
		}
	}
	return fmt.Errorf("%w: %s is %v, want %v", ErrInvalidState, b.name, b.state, from)
}

// checkConfigure validates the common part of Configure.
func (b *base) checkConfigure(s Settings) error {
	if st := b.State(); st != Unconfigured {
		return fmt.Errorf("%w: %s is %v", ErrInvalidState, b.name, st)
	}
	return s.Validate()
}

func (b *base) String() string {
	return fmt.Sprintf("%s(%s)", b.typ, b.name)
}
