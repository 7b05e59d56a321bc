// SPDX-License-Identifier: EPL-2.0

package hw

import (
	"encoding/binary"
	"math"
	"sync"
	"time"

	"github.com/ik5/audroute/audio"
)

// VirtualOptions shape a Virtual device.
type VirtualOptions struct {
	Inputs  int
	Outputs int
	Format  audio.SampleFormat
	// Frequency of the sine generated on every input channel; 0 gives
	// silence.
	Frequency float64
	// Clocked makes Start run a goroutine that ticks at the device period.
	// Otherwise the caller drives the device with Tick.
	Clocked bool
}

// Virtual is an in-process device. It generates a sine on its inputs and
// records the last period written to its outputs.
type Virtual struct {
	core
	opts VirtualOptions

	phase   float64
	inBuf   []byte
	outBuf  []byte
	toNat   audio.SampleConverter
	fromNat audio.SampleConverter

	outMu   sync.Mutex
	lastOut []byte

	stop chan struct{}
	wg   sync.WaitGroup
}

func NewVirtual(opts VirtualOptions) *Virtual {
	if !opts.Format.Valid() {
		opts.Format = audio.Float32
	}
	v := &Virtual{opts: opts}
	v.init(opts.Format, channelNames("virtual in", opts.Inputs), channelNames("virtual out", opts.Outputs))
	v.toNat, _ = audio.NewSampleConverter(audio.Float64, v.format)
	v.fromNat, _ = audio.NewSampleConverter(v.format, audio.Float64)
	return v
}

func init() {
	Register("virtual", func() Manager {
		return NewVirtual(VirtualOptions{Inputs: 8, Outputs: 8, Format: audio.Float32, Frequency: 440, Clocked: true})
	})
}

// LoadDriver accepts any device name.
func (v *Virtual) LoadDriver(string) error { return nil }

func (v *Virtual) Start() error {
	if err := v.ready(); err != nil {
		return err
	}

	v.mu.Lock()
	if v.running {
		v.mu.Unlock()
		return nil
	}
	v.running = true
	bps := v.format.BytesPerSample()
	v.inBuf = make([]byte, v.frames*v.inWidth*bps)
	v.outBuf = make([]byte, v.frames*v.outWidth*bps)
	period := time.Duration(float64(v.frames) / v.rate * float64(time.Second))
	v.mu.Unlock()

	if v.opts.Clocked {
		v.stop = make(chan struct{})
		v.wg.Add(1)
		go v.clock(period, v.stop)
	}
	return nil
}

func (v *Virtual) clock(period time.Duration, stop <-chan struct{}) {
	defer v.wg.Done()

	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			v.Tick()
		}
	}
}

func (v *Virtual) Stop() error {
	v.mu.Lock()
	if !v.running {
		v.mu.Unlock()
		return nil
	}
	v.running = false
	stop := v.stop
	v.stop = nil
	v.mu.Unlock()

	if stop != nil {
		close(stop)
		v.wg.Wait()
	}
	return nil
}

func (v *Virtual) Close() error {
	return v.Stop()
}

// Tick runs one device period: it fills the inputs, exchanges one period
// with the engine and records the outputs.
func (v *Virtual) Tick() {
	if v.inBuf == nil {
		return
	}

	bps := v.format.BytesPerSample()
	var scratch [8]byte
	step := 2 * math.Pi * v.opts.Frequency / v.rate
	for i := range v.frames {
		s := 0.5 * math.Sin(v.phase)
		v.phase = math.Mod(v.phase+step, 2*math.Pi)
		binary.LittleEndian.PutUint64(scratch[:], math.Float64bits(s))
		for ch := range v.inWidth {
			off := (i*v.inWidth + ch) * bps
			v.toNat(v.inBuf[off:off+bps], scratch[:])
		}
	}

	v.exchange(v.outBuf, v.inBuf, v.frames)

	v.outMu.Lock()
	v.lastOut = append(v.lastOut[:0], v.outBuf...)
	v.outMu.Unlock()
}

// LastOutput decodes the most recent period written to device output ch.
// It returns nil when ch carries no buffer.
func (v *Virtual) LastOutput(ch int) []float64 {
	v.outMu.Lock()
	defer v.outMu.Unlock()

	if ch < 0 || ch >= v.outWidth || len(v.lastOut) == 0 {
		return nil
	}
	bps := v.format.BytesPerSample()
	out := make([]float64, v.frames)
	var scratch [8]byte
	for i := range out {
		off := (i*v.outWidth + ch) * bps
		v.fromNat(scratch[:], v.lastOut[off:off+bps])
		out[i] = math.Float64frombits(binary.LittleEndian.Uint64(scratch[:]))
	}
	return out
}
