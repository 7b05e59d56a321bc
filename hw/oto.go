// SPDX-License-Identifier: EPL-2.0

package hw

import (
	"fmt"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"

	"github.com/ik5/audroute/audio"
	"github.com/ik5/audroute/internal/log"
)

const otoChannels = 2

// oto allows a single context per process, so it is shared by every Oto
// manager and fixed by the first Start.
var (
	otoMu       sync.Mutex
	otoCtx      *oto.Context
	otoRate     int
	otoChannelN int
)

func otoContext(rate, channels int, period time.Duration) (*oto.Context, error) {
	otoMu.Lock()
	defer otoMu.Unlock()

	if otoCtx != nil {
		if rate != otoRate || channels != otoChannelN {
			return nil, fmt.Errorf("%w: oto already opened at %d Hz, %d channels", ErrInvalidSetting, otoRate, otoChannelN)
		}
		return otoCtx, nil
	}

	ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   rate,
		ChannelCount: channels,
		Format:       oto.FormatFloat32LE,
		BufferSize:   period,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDriverUnavailable, err)
	}
	<-ready

	otoCtx, otoRate, otoChannelN = ctx, rate, channels
	return ctx, nil
}

// Oto is a playback-only backend. The player pulls bytes from the tick
// adapter, so ticks follow the pace oto consumes audio at.
type Oto struct {
	core
	player *oto.Player
}

func NewOto() *Oto {
	o := &Oto{}
	o.init(audio.Float32, nil, channelNames("out", otoChannels))
	return o
}

func init() {
	Register("oto", func() Manager { return NewOto() })
}

// LoadDriver accepts only the default device.
func (o *Oto) LoadDriver(device string) error {
	if device != "" {
		return fmt.Errorf("%w: oto has no device selection", ErrDriverUnavailable)
	}
	return nil
}

func (o *Oto) Start() error {
	if err := o.ready(); err != nil {
		return err
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.running {
		return nil
	}
	if o.outWidth == 0 {
		return ErrNoBuffers
	}

	period := time.Duration(float64(o.frames) / o.rate * float64(time.Second))
	ctx, err := otoContext(int(o.rate), o.outWidth, period)
	if err != nil {
		return err
	}

	o.player = ctx.NewPlayer(otoReader{o})
	o.player.Play()
	o.running = true
	log.WithField("rate", o.rate).Info("oto playback started")
	return nil
}

// otoReader feeds oto whole frames from the tick adapter.
type otoReader struct{ o *Oto }

func (r otoReader) Read(p []byte) (int, error) {
	frameBytes := r.o.outWidth * r.o.format.BytesPerSample()
	frames := len(p) / frameBytes
	if frames == 0 {
		return 0, nil
	}
	n := frames * frameBytes
	r.o.exchange(p[:n], nil, frames)
	return n, nil
}

func (o *Oto) Stop() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.running {
		return nil
	}
	o.running = false
	if o.player != nil {
		o.player.Pause()
		if err := o.player.Close(); err != nil {
			log.Warnf("oto: player close: %v", err)
		}
		o.player = nil
	}
	return nil
}

func (o *Oto) Close() error {
	return o.Stop()
}
