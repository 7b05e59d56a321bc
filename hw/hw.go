// SPDX-License-Identifier: EPL-2.0

// Package hw is the boundary between the engine and audio devices. A
// Manager owns one device, exposes per-channel native-format memory for the
// current tick, and calls back once per tick from the device thread.
package hw

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/ik5/audroute/audio"
)

var (
	ErrUnknownDriver     = errors.New("unknown hardware driver")
	ErrDriverUnavailable = errors.New("hardware driver not available in this build")
	ErrNotInitialized    = errors.New("device not initialized")
	ErrNoBuffers         = errors.New("device buffers not created")
	ErrInvalidChannel    = errors.New("invalid device channel")
	ErrInvalidTick       = errors.New("tick index must be 0 or 1")
	ErrRunning           = errors.New("device is running")
	ErrInvalidSetting    = errors.New("invalid device setting")
)

// Callback runs on the device thread once per tick. tick is the index (0
// or 1) of the buffer half that holds this tick's data.
type Callback func(tick int)

type Manager interface {
	// LoadDriver selects a device by name; "" picks the default.
	LoadDriver(device string) error
	InitDevice(sampleRate float64, bufferSize int) error
	// CreateBuffers allocates double buffers for the given device channel
	// indices. It must be called before Start.
	CreateBuffers(inputs, outputs []int) error
	Start() error
	Stop() error
	SetCallback(fn Callback)

	// InputBuffers returns one native-format slice per requested input
	// channel for the given tick half. Valid only inside the callback.
	InputBuffers(tick int, channels []int) ([][]byte, error)
	OutputBuffers(tick int, channels []int) ([][]byte, error)

	NativeFormat() audio.SampleFormat
	InputChannels() []string
	OutputChannels() []string
	SampleRate() float64
	BufferSize() int

	Close() error
}

// Factory builds an unopened Manager.
type Factory func() Manager

var (
	driversMu sync.Mutex
	drivers   = map[string]Factory{}
)

// Register makes a driver available to Open. Registering a name twice
// replaces the earlier factory.
func Register(name string, f Factory) {
	driversMu.Lock()
	defer driversMu.Unlock()

	drivers[name] = f
}

// Open returns a new Manager for the named driver.
func Open(name string) (Manager, error) {
	driversMu.Lock()
	f, ok := drivers[name]
	driversMu.Unlock()

	if !ok {
		return nil, fmt.Errorf("%w: %q (have %v)", ErrUnknownDriver, name, Drivers())
	}
	return f(), nil
}

// Drivers lists registered driver names in sorted order.
func Drivers() []string {
	driversMu.Lock()
	defer driversMu.Unlock()

	names := make([]string, 0, len(drivers))
	for name := range drivers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ResolveChannels maps channel names to indices within names.
func ResolveChannels(names []string, wanted []string) ([]int, error) {
	out := make([]int, 0, len(wanted))
	for _, w := range wanted {
		idx := -1
		for i, n := range names {
			if n == w {
				idx = i
				break
			}
		}
		if idx < 0 {
			return nil, fmt.Errorf("%w: %q", ErrInvalidChannel, w)
		}
		out = append(out, idx)
	}
	return out, nil
}

func channelNames(prefix string, n int) []string {
	names := make([]string, n)
	for i := range names {
		names[i] = fmt.Sprintf("%s %d", prefix, i+1)
	}
	return names
}
