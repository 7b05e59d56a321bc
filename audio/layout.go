// SPDX-License-Identifier: EPL-2.0

package audio

import (
	"fmt"
	"strconv"
	"strings"
)

// ChannelLayout is an ordered channel count plus an opaque layout mask.
// Two layouts with the same count but different masks are distinct.
type ChannelLayout struct {
	Channels int
	Mask     uint64
}

var (
	LayoutMono       = ChannelLayout{Channels: 1, Mask: 0x4}
	LayoutStereo     = ChannelLayout{Channels: 2, Mask: 0x3}
	LayoutQuad       = ChannelLayout{Channels: 4, Mask: 0x33}
	LayoutSurround51 = ChannelLayout{Channels: 6, Mask: 0x3f}
	LayoutSurround71 = ChannelLayout{Channels: 8, Mask: 0x63f}
)

var layoutNames = map[string]ChannelLayout{
	"mono":   LayoutMono,
	"stereo": LayoutStereo,
	"quad":   LayoutQuad,
	"5.1":    LayoutSurround51,
	"7.1":    LayoutSurround71,
}

// DefaultLayout returns the well-known layout for n channels, or an
// unnamed layout (mask 0) when there is none.
func DefaultLayout(n int) ChannelLayout {
	for _, l := range layoutNames {
		if l.Channels == n {
			return l
		}
	}
	return ChannelLayout{Channels: n}
}

// ParseChannelLayout accepts a layout name or a bare channel count.
func ParseChannelLayout(s string) (ChannelLayout, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if l, ok := layoutNames[s]; ok {
		return l, nil
	}
	n, err := strconv.Atoi(strings.TrimSuffix(s, "c"))
	if err != nil || n <= 0 || n > MaxChannels {
		return ChannelLayout{}, fmt.Errorf("%w: %q", ErrUnsupportedLayout, s)
	}
	return DefaultLayout(n), nil
}

func (l ChannelLayout) Valid() bool {
	return l.Channels > 0 && l.Channels <= MaxChannels
}

func (l ChannelLayout) String() string {
	for name, known := range layoutNames {
		if known == l {
			return name
		}
	}
	return fmt.Sprintf("%dc", l.Channels)
}
