// SPDX-License-Identifier: EPL-2.0

package hw

import (
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/ik5/audroute/audio"
)

// core holds the state every backend shares: device settings, the per
// channel double buffers and the adapter from device callbacks of any
// length to fixed-size ticks.
//
// Devices exchange interleaved native samples. core stages them until a
// full period is collected, splits the period into per-channel buffers,
// runs the callback, and interleaves the output half back. Output is
// therefore one period behind input.
type core struct {
	mu       sync.Mutex
	rate     float64
	frames   int
	format   audio.SampleFormat
	inNames  []string
	outNames []string
	running  bool

	inputs  []int // device channel per input slot
	outputs []int
	inSlot  map[int]int
	outSlot map[int]int
	in      [2][][]byte
	out     [2][][]byte

	// interleaved staging, inWidth/outWidth channels wide
	inWidth  int
	outWidth int
	inStage  []byte
	outStage []byte
	pos      int
	tick     int

	cb    atomic.Pointer[Callback]
	ticks atomic.Int64
}

func (c *core) init(format audio.SampleFormat, inNames, outNames []string) {
	c.format = format.Packed()
	c.inNames = inNames
	c.outNames = outNames
}

func (c *core) InitDevice(sampleRate float64, bufferSize int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return ErrRunning
	}
	if sampleRate <= 0 || bufferSize <= 0 || bufferSize > audio.MaxFrames {
		return fmt.Errorf("%w: %v Hz, %d frames", ErrInvalidSetting, sampleRate, bufferSize)
	}
	c.rate = sampleRate
	c.frames = bufferSize
	return nil
}

func (c *core) CreateBuffers(inputs, outputs []int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return ErrRunning
	}
	if c.frames == 0 {
		return ErrNotInitialized
	}
	for _, ch := range inputs {
		if ch < 0 || ch >= len(c.inNames) {
			return fmt.Errorf("%w: input %d of %d", ErrInvalidChannel, ch, len(c.inNames))
		}
	}
	for _, ch := range outputs {
		if ch < 0 || ch >= len(c.outNames) {
			return fmt.Errorf("%w: output %d of %d", ErrInvalidChannel, ch, len(c.outNames))
		}
	}

	c.inputs = dedupe(inputs)
	c.outputs = dedupe(outputs)
	c.inSlot = slotIndex(c.inputs)
	c.outSlot = slotIndex(c.outputs)

	bps := c.format.BytesPerSample()
	for half := range 2 {
		c.in[half] = allocChannels(len(c.inputs), c.frames*bps)
		c.out[half] = allocChannels(len(c.outputs), c.frames*bps)
	}

	c.inWidth, c.outWidth = 0, 0
	if len(c.inputs) > 0 {
		c.inWidth = slices.Max(c.inputs) + 1
	}
	if len(c.outputs) > 0 {
		c.outWidth = slices.Max(c.outputs) + 1
	}
	c.inStage = make([]byte, c.frames*c.inWidth*bps)
	c.outStage = make([]byte, c.frames*c.outWidth*bps)
	c.pos, c.tick = 0, 0
	return nil
}

func dedupe(chans []int) []int {
	out := slices.Clone(chans)
	slices.Sort(out)
	return slices.Compact(out)
}

func slotIndex(chans []int) map[int]int {
	m := make(map[int]int, len(chans))
	for slot, ch := range chans {
		m[ch] = slot
	}
	return m
}

func allocChannels(n, size int) [][]byte {
	out := make([][]byte, n)
	for i := range out {
		out[i] = make([]byte, size)
	}
	return out
}

func (c *core) SetCallback(fn Callback) {
	if fn == nil {
		c.cb.Store(nil)
		return
	}
	c.cb.Store(&fn)
}

func (c *core) InputBuffers(tick int, channels []int) ([][]byte, error) {
	return lookup(c.in, c.inSlot, tick, channels)
}

func (c *core) OutputBuffers(tick int, channels []int) ([][]byte, error) {
	return lookup(c.out, c.outSlot, tick, channels)
}

func lookup(halves [2][][]byte, slots map[int]int, tick int, channels []int) ([][]byte, error) {
	if tick != 0 && tick != 1 {
		return nil, ErrInvalidTick
	}
	if slots == nil {
		return nil, ErrNoBuffers
	}
	out := make([][]byte, len(channels))
	for i, ch := range channels {
		slot, ok := slots[ch]
		if !ok {
			return nil, fmt.Errorf("%w: %d has no buffer", ErrInvalidChannel, ch)
		}
		out[i] = halves[tick][slot]
	}
	return out, nil
}

func (c *core) NativeFormat() audio.SampleFormat { return c.format }
func (c *core) InputChannels() []string           { return slices.Clone(c.inNames) }
func (c *core) OutputChannels() []string          { return slices.Clone(c.outNames) }

func (c *core) SampleRate() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rate
}

func (c *core) BufferSize() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.frames
}

// Ticks is the number of completed ticks since buffers were created.
func (c *core) Ticks() int64 {
	return c.ticks.Load()
}

func (c *core) setRunning(v bool) {
	c.mu.Lock()
	c.running = v
	c.mu.Unlock()
}

// ready reports whether Start may proceed.
func (c *core) ready() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case c.frames == 0:
		return ErrNotInitialized
	case c.inSlot == nil:
		return ErrNoBuffers
	}
	return nil
}

// exchange is called from the device thread with interleaved native bytes.
// in may be nil for playback-only devices and out for capture-only ones.
func (c *core) exchange(out, in []byte, frames int) {
	bps := c.format.BytesPerSample()
	inFrame := c.inWidth * bps
	outFrame := c.outWidth * bps

	done := 0
	for done < frames {
		n := min(frames-done, c.frames-c.pos)
		if inFrame > 0 && len(in) >= (done+n)*inFrame {
			copy(c.inStage[c.pos*inFrame:(c.pos+n)*inFrame], in[done*inFrame:(done+n)*inFrame])
		}
		if outFrame > 0 && len(out) >= (done+n)*outFrame {
			copy(out[done*outFrame:(done+n)*outFrame], c.outStage[c.pos*outFrame:(c.pos+n)*outFrame])
		}
		c.pos += n
		done += n
		if c.pos == c.frames {
			c.runTick()
			c.pos = 0
		}
	}
}

func (c *core) runTick() {
	bps := c.format.BytesPerSample()
	half := c.tick & 1

	for slot, ch := range c.inputs {
		dst := c.in[half][slot]
		for i := range c.frames {
			src := (i*c.inWidth + ch) * bps
			copy(dst[i*bps:(i+1)*bps], c.inStage[src:src+bps])
		}
	}

	if cb := c.cb.Load(); cb != nil {
		(*cb)(half)
	}

	for slot, ch := range c.outputs {
		src := c.out[half][slot]
		for i := range c.frames {
			dst := (i*c.outWidth + ch) * bps
			copy(c.outStage[dst:dst+bps], src[i*bps:(i+1)*bps])
		}
	}

	c.tick++
	c.ticks.Add(1)
}
