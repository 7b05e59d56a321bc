// SPDX-License-Identifier: EPL-2.0

package hw

import (
	"fmt"
	"strings"
	"unsafe"

	"github.com/gen2brain/malgo"

	"github.com/ik5/audroute/audio"
	"github.com/ik5/audroute/internal/log"
)

const malgoChannels = 8

// Malgo drives a miniaudio device in duplex float32 mode. The period
// requested from miniaudio equals the engine buffer size, and any other
// callback length is absorbed by the tick adapter.
type Malgo struct {
	core
	ctx      *malgo.AllocatedContext
	device   *malgo.Device
	deviceID unsafe.Pointer
	name     string
}

func NewMalgo() *Malgo {
	m := &Malgo{}
	m.init(audio.Float32, channelNames("in", malgoChannels), channelNames("out", malgoChannels))
	return m
}

func init() {
	Register("malgo", func() Manager { return NewMalgo() })
}

// LoadDriver opens the miniaudio context. An empty device selects the
// system default; otherwise the first device whose name contains device
// (case insensitive) is used.
func (m *Malgo) LoadDriver(device string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return ErrRunning
	}
	if m.ctx == nil {
		ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrDriverUnavailable, err)
		}
		m.ctx = ctx
	}

	m.deviceID, m.name = nil, ""
	if device == "" {
		return nil
	}

	for _, kind := range []malgo.DeviceType{malgo.Playback, malgo.Capture} {
		infos, err := m.ctx.Devices(kind)
		if err != nil {
			return fmt.Errorf("enumerate devices: %w", err)
		}
		for _, info := range infos {
			if strings.Contains(strings.ToLower(info.Name()), strings.ToLower(device)) {
				m.deviceID = info.ID.Pointer()
				m.name = info.Name()
				log.WithField("device", m.name).Debug("malgo device selected")
				return nil
			}
		}
	}
	return fmt.Errorf("%w: no device matches %q", ErrDriverUnavailable, device)
}

func (m *Malgo) Start() error {
	if err := m.ready(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return nil
	}
	if m.ctx == nil {
		return ErrNotInitialized
	}

	var cfg malgo.DeviceConfig
	switch {
	case m.inWidth > 0 && m.outWidth > 0:
		cfg = malgo.DefaultDeviceConfig(malgo.Duplex)
	case m.inWidth > 0:
		cfg = malgo.DefaultDeviceConfig(malgo.Capture)
	case m.outWidth > 0:
		cfg = malgo.DefaultDeviceConfig(malgo.Playback)
	default:
		return ErrNoBuffers
	}
	cfg.SampleRate = uint32(m.rate)
	cfg.PeriodSizeInFrames = uint32(m.frames)
	cfg.Capture.Format = malgo.FormatF32
	cfg.Capture.Channels = uint32(m.inWidth)
	cfg.Playback.Format = malgo.FormatF32
	cfg.Playback.Channels = uint32(m.outWidth)
	if m.deviceID != nil {
		cfg.Capture.DeviceID = m.deviceID
		cfg.Playback.DeviceID = m.deviceID
	}

	onData := func(out, in []byte, frameCount uint32) {
		m.exchange(out, in, int(frameCount))
	}
	device, err := malgo.InitDevice(m.ctx.Context, cfg, malgo.DeviceCallbacks{Data: onData})
	if err != nil {
		return fmt.Errorf("init device: %w", err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		return fmt.Errorf("start device: %w", err)
	}

	m.device = device
	m.running = true
	log.WithFields(log.Fields{
		"rate":    m.rate,
		"frames":  m.frames,
		"inputs":  m.inWidth,
		"outputs": m.outWidth,
	}).Info("malgo device started")
	return nil
}

func (m *Malgo) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return nil
	}
	m.running = false
	if m.device != nil {
		if err := m.device.Stop(); err != nil {
			log.Warnf("malgo: device stop: %v", err)
		}
		m.device.Uninit()
		m.device = nil
	}
	return nil
}

func (m *Malgo) Close() error {
	if err := m.Stop(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ctx != nil {
		if err := m.ctx.Uninit(); err != nil {
			log.Warnf("malgo: context uninit: %v", err)
		}
		m.ctx.Free()
		m.ctx = nil
	}
	return nil
}
