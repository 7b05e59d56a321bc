// SPDX-License-Identifier: EPL-2.0

package graph

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ik5/audroute/audio"
	"github.com/ik5/audroute/hw"
)

// deviceChannels reads "channels" (indices) or "channel_names" and checks
// them against the device's channel list.
func deviceChannels(p Params, names []string, want int) ([]int, error) {
	var (
		chans []int
		err   error
	)
	switch {
	case len(p.List("channels")) > 0:
		chans, err = p.Ints("channels")
		if err != nil {
			return nil, err
		}
		for _, ch := range chans {
			if ch >= len(names) {
				return nil, fmt.Errorf("%w: channel %d, device has %d", ErrInvalidParam, ch, len(names))
			}
		}
	case len(p.List("channel_names")) > 0:
		chans, err = hw.ResolveChannels(names, p.List("channel_names"))
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidParam, err)
		}
	default:
		return nil, fmt.Errorf("%w: %q or %q", ErrMissingParam, "channels", "channel_names")
	}

	if len(chans) != want {
		return nil, fmt.Errorf("%w: %d device channels for a %d channel layout", ErrChannelMismatch, len(chans), want)
	}
	return chans, nil
}

// doubleBuffer is the pair of buffers a hardware node alternates between.
// cur is the one visible to the engine; the other is written next.
type doubleBuffer struct {
	mu   sync.Mutex
	bufs [2]*audio.Buffer
	cur  int
}

func (d *doubleBuffer) alloc(s Settings) error {
	for i := range d.bufs {
		b, err := audio.NewBuffer(s.BufferSize, s.SampleRate, s.Format, s.Layout)
		if err != nil {
			d.free()
			return err
		}
		d.bufs[i] = b
	}
	d.cur = 0
	return nil
}

func (d *doubleBuffer) free() {
	for i, b := range d.bufs {
		b.Release()
		d.bufs[i] = nil
	}
}

func (d *doubleBuffer) current() *audio.Buffer {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.bufs[d.cur]
}

// back returns the buffer to write next. When a consumer still holds a
// reference to its storage the handle is moved to fresh storage first.
func (d *doubleBuffer) back(s Settings) (*audio.Buffer, error) {
	d.mu.Lock()
	b := d.bufs[1-d.cur]
	d.mu.Unlock()

	if b.RefCount() > 1 {
		if err := b.Allocate(s.BufferSize, s.SampleRate, s.Format, s.Layout); err != nil {
			return nil, err
		}
	}
	return b, nil
}

func (d *doubleBuffer) flip() {
	d.mu.Lock()
	d.cur = 1 - d.cur
	d.mu.Unlock()
}

// HardwareSource exposes device input channels as one output pad.
type HardwareSource struct {
	base
	dev      hw.Manager
	native   audio.SampleFormat
	channels []int
	db       doubleBuffer
}

func NewHardwareSource(name string, dev hw.Manager) *HardwareSource {
	return &HardwareSource{base: base{name: name, typ: HardwareSourceType}, dev: dev}
}

func (n *HardwareSource) Inputs() int  { return 0 }
func (n *HardwareSource) Outputs() int { return 1 }

// DeviceChannels are the device input indices feeding the node, in layout
// order.
func (n *HardwareSource) DeviceChannels() []int { return n.channels }

func (n *HardwareSource) Configure(p Params, s Settings) error {
	if err := n.checkConfigure(s); err != nil {
		return err
	}
	chans, err := deviceChannels(p, n.dev.InputChannels(), s.Layout.Channels)
	if err != nil {
		return fmt.Errorf("%s: %w", n.name, err)
	}
	if err := n.db.alloc(s); err != nil {
		return fmt.Errorf("%s: %w", n.name, err)
	}

	n.channels = chans
	n.native = n.dev.NativeFormat()
	n.settings = s
	n.setState(Configured)
	return nil
}

func (n *HardwareSource) Start() error {
	if err := n.transition(Running, Configured, Stopped); err != nil {
		return err
	}
	n.db.mu.Lock()
	n.db.cur = 0
	n.db.mu.Unlock()
	return nil
}

func (n *HardwareSource) Stop() error {
	_ = n.transition(Stopped, Running)
	return nil
}

func (n *HardwareSource) Close() error {
	_ = n.Stop()
	n.db.free()
	n.setState(Unconfigured)
	return nil
}

func (n *HardwareSource) Output(pad int) *audio.Buffer {
	if pad != 0 || !n.running() {
		return nil
	}
	return n.db.current()
}

func (n *HardwareSource) SetInput(*audio.Buffer, int) error {
	return ErrNoInput
}

// Process has nothing to do; data arrives through ReceiveNative.
func (n *HardwareSource) Process() error { return nil }

// ReceiveNative converts one tick of device memory, one slice per entry of
// DeviceChannels, into the hidden buffer and makes it current. A channel
// that cannot be converted is left silent and reported in the returned
// error; the tick itself still completes.
func (n *HardwareSource) ReceiveNative(tick int, native [][]byte) error {
	if tick != 0 && tick != 1 {
		return hw.ErrInvalidTick
	}
	if !n.running() {
		return ErrInvalidState
	}

	dst, err := n.db.back(n.settings)
	if err != nil {
		return err
	}

	var errs []error
	bps := n.native.BytesPerSample()
	for i := range n.channels {
		out := dst.ChannelData(i)
		if i >= len(native) || native[i] == nil {
			errs = append(errs, fmt.Errorf("channel %d: no device buffer", n.channels[i]))
			clearChannel(dst, i)
			continue
		}
		frames := min(dst.Frames(), len(native[i])/max(bps, 1))
		if err := audio.ConvertSamples(out, dst.Format(), dst.Stride(), native[i], n.native, bps, frames); err != nil {
			errs = append(errs, fmt.Errorf("channel %d: %w", n.channels[i], err))
			clearChannel(dst, i)
		}
	}

	n.db.flip()
	return errors.Join(errs...)
}

// clearChannel zeroes one channel of b.
func clearChannel(b *audio.Buffer, ch int) {
	for i := range b.Frames() {
		clear(b.Sample(ch, i))
	}
}

// HardwareSink plays its single input pad on device output channels.
type HardwareSink struct {
	base
	dev      hw.Manager
	native   audio.SampleFormat
	channels []int
	db       doubleBuffer
	fresh    bool // an input arrived since the last ProvideNative
}

func NewHardwareSink(name string, dev hw.Manager) *HardwareSink {
	return &HardwareSink{base: base{name: name, typ: HardwareSinkType}, dev: dev}
}

func (n *HardwareSink) Inputs() int  { return 1 }
func (n *HardwareSink) Outputs() int { return 0 }

// DeviceChannels are the device output indices the node drives.
func (n *HardwareSink) DeviceChannels() []int { return n.channels }

func (n *HardwareSink) Configure(p Params, s Settings) error {
	if err := n.checkConfigure(s); err != nil {
		return err
	}
	chans, err := deviceChannels(p, n.dev.OutputChannels(), s.Layout.Channels)
	if err != nil {
		return fmt.Errorf("%s: %w", n.name, err)
	}
	if err := n.db.alloc(s); err != nil {
		return fmt.Errorf("%s: %w", n.name, err)
	}

	n.channels = chans
	n.native = n.dev.NativeFormat()
	n.settings = s
	n.setState(Configured)
	return nil
}

func (n *HardwareSink) Start() error {
	if err := n.transition(Running, Configured, Stopped); err != nil {
		return err
	}
	n.db.mu.Lock()
	n.fresh = false
	n.db.mu.Unlock()
	return nil
}

func (n *HardwareSink) Stop() error {
	_ = n.transition(Stopped, Running)
	return nil
}

func (n *HardwareSink) Close() error {
	_ = n.Stop()
	n.db.free()
	n.setState(Unconfigured)
	return nil
}

func (n *HardwareSink) Output(int) *audio.Buffer { return nil }

func (n *HardwareSink) Process() error { return nil }

// SetInput converts buf into the hidden buffer and makes it current. A
// shorter input is padded with silence.
func (n *HardwareSink) SetInput(buf *audio.Buffer, pad int) error {
	if pad != 0 {
		return fmt.Errorf("%w: %s has no input %d", ErrInvalidPad, n.name, pad)
	}
	if !n.running() {
		return ErrInvalidState
	}
	if !buf.IsValid() {
		return audio.ErrInvalidBuffer
	}
	if buf.Channels() != len(n.channels) {
		return fmt.Errorf("%w: %d channels into %d", ErrChannelMismatch, buf.Channels(), len(n.channels))
	}

	dst, err := n.db.back(n.settings)
	if err != nil {
		return err
	}
	dst.Silence()
	frames := min(dst.Frames(), buf.Frames())
	for ch := range len(n.channels) {
		err := audio.ConvertSamples(dst.ChannelData(ch), dst.Format(), dst.Stride(),
			buf.ChannelData(ch), buf.Format(), buf.Stride(), frames)
		if err != nil {
			return fmt.Errorf("channel %d: %w", ch, err)
		}
	}

	n.db.flip()
	n.db.mu.Lock()
	n.fresh = true
	n.db.mu.Unlock()
	return nil
}

// ProvideNative writes the current buffer into device memory, one slice per
// entry of DeviceChannels. Without a new input since the previous call the
// device gets silence.
func (n *HardwareSink) ProvideNative(tick int, native [][]byte) error {
	if tick != 0 && tick != 1 {
		return hw.ErrInvalidTick
	}

	n.db.mu.Lock()
	fresh := n.fresh
	n.fresh = false
	src := n.db.bufs[n.db.cur]
	n.db.mu.Unlock()

	if !fresh || !n.running() {
		for _, b := range native {
			clear(b)
		}
		return nil
	}

	var errs []error
	bps := n.native.BytesPerSample()
	for i := range n.channels {
		if i >= len(native) || native[i] == nil {
			errs = append(errs, fmt.Errorf("channel %d: no device buffer", n.channels[i]))
			continue
		}
		frames := min(src.Frames(), len(native[i])/max(bps, 1))
		if err := audio.ConvertSamples(native[i], n.native, bps, src.ChannelData(i), src.Format(), src.Stride(), frames); err != nil {
			clear(native[i])
			errs = append(errs, fmt.Errorf("channel %d: %w", n.channels[i], err))
		}
	}
	return errors.Join(errs...)
}
