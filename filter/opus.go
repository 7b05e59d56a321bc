// SPDX-License-Identifier: EPL-2.0

//go:build opus

package filter

import (
	"fmt"
	"strconv"

	"gopkg.in/hraban/opus.v2"
)

func init() {
	register("opus", "bitrate", newOpus)
}

// opusFrameMs is the codec frame length.
const opusFrameMs = 20

// opusTrip encodes and decodes the stream through Opus so the result can
// be auditioned at a given bitrate. Output lags input by one codec frame.
type opusTrip struct {
	enc      *opus.Encoder
	dec      *opus.Decoder
	channels int
	frame    int // samples per channel per codec frame

	in     []float32
	out    []float32
	packet []byte
	pcm    []float32
}

func newOpus(rate float64, channels int) (Filter, error) {
	switch int(rate) {
	case 8000, 12000, 16000, 24000, 48000:
	default:
		return nil, fmt.Errorf("%w: opus needs 8, 12, 16, 24 or 48 kHz, have %v", ErrInvalidValue, rate)
	}
	if channels > 2 {
		return nil, fmt.Errorf("%w: opus handles at most 2 channels, have %d", ErrInvalidValue, channels)
	}

	enc, err := opus.NewEncoder(int(rate), channels, opus.AppAudio)
	if err != nil {
		return nil, fmt.Errorf("opus encoder: %w", err)
	}
	dec, err := opus.NewDecoder(int(rate), channels)
	if err != nil {
		return nil, fmt.Errorf("opus decoder: %w", err)
	}

	frame := int(rate) * opusFrameMs / 1000
	return &opusTrip{
		enc:      enc,
		dec:      dec,
		channels: channels,
		frame:    frame,
		out:      make([]float32, frame*channels),
		packet:   make([]byte, 4000),
		pcm:      make([]float32, frame*channels),
	}, nil
}

func (o *opusTrip) Name() string { return "opus" }

func (o *opusTrip) Process(samples []float32) error {
	o.in = append(o.in, samples...)

	n := o.frame * o.channels
	for len(o.in) >= n {
		size, err := o.enc.EncodeFloat32(o.in[:n], o.packet)
		if err != nil {
			return fmt.Errorf("encode: %w", err)
		}
		got, err := o.dec.DecodeFloat32(o.packet[:size], o.pcm)
		if err != nil {
			return fmt.Errorf("decode: %w", err)
		}
		o.out = append(o.out, o.pcm[:got*o.channels]...)
		o.in = o.in[n:]
	}

	k := copy(samples, o.out)
	clear(samples[k:])
	o.out = o.out[k:]
	return nil
}

func (o *opusTrip) Set(key, value string) error {
	switch key {
	case "bitrate":
		bps, err := strconv.Atoi(value)
		if err != nil || bps <= 0 {
			return fmt.Errorf("%w: bitrate=%q", ErrInvalidValue, value)
		}
		return o.enc.SetBitrate(bps)
	case "complexity":
		c, err := strconv.Atoi(value)
		if err != nil || c < 0 || c > 10 {
			return fmt.Errorf("%w: complexity=%q", ErrInvalidValue, value)
		}
		return o.enc.SetComplexity(c)
	default:
		return fmt.Errorf("%w: opus has no %q", ErrUnknownParameter, key)
	}
}

func (o *opusTrip) Reset() {
	o.in = o.in[:0]
	o.out = append(o.out[:0], make([]float32, o.frame*o.channels)...)
}
