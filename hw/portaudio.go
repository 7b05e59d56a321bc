// SPDX-License-Identifier: EPL-2.0

//go:build portaudio

package hw

import (
	"fmt"
	"strings"
	"unsafe"

	"github.com/gordonklaus/portaudio"

	"github.com/ik5/audroute/audio"
	"github.com/ik5/audroute/internal/log"
)

// PortAudio drives a PortAudio stream with interleaved float32 buffers.
type PortAudio struct {
	core
	in, out *portaudio.DeviceInfo
	stream  *portaudio.Stream
	loaded  bool
}

func NewPortAudio() *PortAudio {
	p := &PortAudio{}
	p.init(audio.Float32, nil, nil)
	return p
}

func init() {
	Register("portaudio", func() Manager { return NewPortAudio() })
}

// LoadDriver initializes PortAudio and picks the devices. An empty device
// selects the host defaults; otherwise the first device whose name contains
// device is used for both directions.
func (p *PortAudio) LoadDriver(device string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return ErrRunning
	}
	if !p.loaded {
		if err := portaudio.Initialize(); err != nil {
			return fmt.Errorf("%w: %w", ErrDriverUnavailable, err)
		}
		p.loaded = true
	}

	var err error
	if device == "" {
		if p.in, err = portaudio.DefaultInputDevice(); err != nil {
			p.in = nil
		}
		if p.out, err = portaudio.DefaultOutputDevice(); err != nil {
			return fmt.Errorf("%w: %w", ErrDriverUnavailable, err)
		}
	} else {
		devices, err := portaudio.Devices()
		if err != nil {
			return fmt.Errorf("enumerate devices: %w", err)
		}
		p.in, p.out = nil, nil
		for _, d := range devices {
			if strings.Contains(strings.ToLower(d.Name), strings.ToLower(device)) {
				p.in, p.out = d, d
				break
			}
		}
		if p.out == nil {
			return fmt.Errorf("%w: no device matches %q", ErrDriverUnavailable, device)
		}
	}

	inCount := 0
	if p.in != nil {
		inCount = p.in.MaxInputChannels
	}
	p.inNames = channelNames("in", inCount)
	p.outNames = channelNames("out", p.out.MaxOutputChannels)
	log.WithField("device", p.out.Name).Debug("portaudio device selected")
	return nil
}

func (p *PortAudio) Start() error {
	if err := p.ready(); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return nil
	}
	if !p.loaded {
		return ErrNotInitialized
	}

	params := portaudio.LowLatencyParameters(p.in, p.out)
	params.Input.Channels = p.inWidth
	params.Output.Channels = p.outWidth
	params.SampleRate = p.rate
	params.FramesPerBuffer = p.frames

	cb := func(in, out []float32) {
		frames := len(out)
		if p.outWidth > 0 {
			frames /= p.outWidth
		} else if p.inWidth > 0 {
			frames = len(in) / p.inWidth
		}
		p.exchange(float32Bytes(out), float32Bytes(in), frames)
	}
	stream, err := portaudio.OpenStream(params, cb)
	if err != nil {
		return fmt.Errorf("open stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return fmt.Errorf("start stream: %w", err)
	}

	p.stream = stream
	p.running = true
	return nil
}

// float32Bytes views little-endian float32 samples as bytes.
func float32Bytes(s []float32) []byte {
	if len(s) == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(&s[0])), len(s)*4)
}

func (p *PortAudio) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running {
		return nil
	}
	p.running = false
	if p.stream != nil {
		if err := p.stream.Stop(); err != nil {
			log.Warnf("portaudio: stream stop: %v", err)
		}
		p.stream.Close()
		p.stream = nil
	}
	return nil
}

func (p *PortAudio) Close() error {
	if err := p.Stop(); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.loaded {
		p.loaded = false
		return portaudio.Terminate()
	}
	return nil
}
