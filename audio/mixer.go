// SPDX-License-Identifier: EPL-2.0

package audio

import "fmt"

// ChannelMixer adapts a Source to a different channel count. Folding down
// averages every source channel c into output channel c % n; expanding
// copies source channel j % src.Channels() into output channel j.
type ChannelMixer struct {
	src Source
	out int
	tmp []float32
}

func NewChannelMixer(src Source, channels int) *ChannelMixer {
	return &ChannelMixer{
		src: src,
		out: channels,
		tmp: make([]float32, 4096),
	}
}

// NewMonoMixer folds every channel of src into one.
func NewMonoMixer(src Source) *ChannelMixer {
	return NewChannelMixer(src, 1)
}

func (m *ChannelMixer) SampleRate() int { return m.src.SampleRate() }
func (m *ChannelMixer) Channels() int   { return m.out }
func (m *ChannelMixer) BufSize() int    { return m.src.BufSize() }

func (m *ChannelMixer) Close() error {
	if err := m.src.Close(); err != nil {
		return fmt.Errorf("%w", err)
	}
	return nil
}

func (m *ChannelMixer) ReadSamples(dst []float32) (int, error) {
	in := m.src.Channels()
	if in == m.out {
		return m.src.ReadSamples(dst)
	}
	if len(dst)%m.out != 0 {
		return 0, ErrInvalidDstSize
	}

	frames := len(dst) / m.out
	if frames == 0 {
		return 0, nil
	}
	need := frames * in
	if cap(m.tmp) < need {
		m.tmp = make([]float32, max(need, 8192))
	}
	tmp := m.tmp[:need]

	n, err := m.src.ReadSamples(tmp)
	got := n / in
	if got == 0 {
		return 0, err
	}

	if in > m.out {
		m.fold(dst, tmp, got, in)
	} else {
		for f := range got {
			for j := range m.out {
				dst[f*m.out+j] = tmp[f*in+j%in]
			}
		}
	}
	return got * m.out, err
}

func (m *ChannelMixer) fold(dst, src []float32, frames, in int) {
	if m.out == 1 && in == 2 {
		for f := range frames {
			dst[f] = (src[2*f] + src[2*f+1]) * 0.5
		}
		return
	}

	// counts[j] is how many source channels land on output channel j.
	var counts [MaxChannels]float32
	for c := range in {
		counts[c%m.out]++
	}
	for f := range frames {
		out := dst[f*m.out : (f+1)*m.out]
		clear(out)
		for c := range in {
			out[c%m.out] += src[f*in+c]
		}
		for j := range out {
			out[j] /= counts[j]
		}
	}
}
