// SPDX-License-Identifier: EPL-2.0

package audio

import (
	"fmt"
	"strings"
)

// SampleFormat identifies the sample encoding and whether channels are
// stored in separate planes or interleaved in one.
type SampleFormat uint8

const (
	FormatNone SampleFormat = iota

	Int16
	Int32
	Int24 // 24-bit sample in the low three bytes of a 32-bit word
	Float32
	Float64

	Int16Planar
	Int32Planar
	Int24Planar
	Float32Planar
	Float64Planar
)

const planarOffset = Int16Planar - Int16

var formatNames = map[SampleFormat]string{
	Int16:         "s16",
	Int32:         "s32",
	Int24:         "s24",
	Float32:       "flt",
	Float64:       "dbl",
	Int16Planar:   "s16p",
	Int32Planar:   "s32p",
	Int24Planar:   "s24p",
	Float32Planar: "fltp",
	Float64Planar: "dblp",
}

var formatAliases = map[string]SampleFormat{
	"int16":    Int16,
	"int32":    Int32,
	"int24":    Int24,
	"float32":  Float32,
	"float64":  Float64,
	"int16p":   Int16Planar,
	"int32p":   Int32Planar,
	"int24p":   Int24Planar,
	"float32p": Float32Planar,
	"float64p": Float64Planar,
}

// ParseSampleFormat accepts both short ("fltp") and long ("float32p") names.
func ParseSampleFormat(s string) (SampleFormat, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if f, ok := formatAliases[s]; ok {
		return f, nil
	}
	for f, name := range formatNames {
		if name == s {
			return f, nil
		}
	}
	return FormatNone, fmt.Errorf("%w: %q", ErrUnsupportedFormat, s)
}

func (f SampleFormat) String() string {
	if name, ok := formatNames[f]; ok {
		return name
	}
	return fmt.Sprintf("SampleFormat(%d)", uint8(f))
}

func (f SampleFormat) Valid() bool {
	return f >= Int16 && f <= Float64Planar
}

func (f SampleFormat) IsPlanar() bool {
	return f >= Int16Planar && f <= Float64Planar
}

// Packed returns the interleaved counterpart of f.
func (f SampleFormat) Packed() SampleFormat {
	if f.IsPlanar() {
		return f - planarOffset
	}
	return f
}

// Planar returns the planar counterpart of f.
func (f SampleFormat) Planar() SampleFormat {
	if f.Valid() && !f.IsPlanar() {
		return f + planarOffset
	}
	return f
}

func (f SampleFormat) IsFloat() bool {
	p := f.Packed()
	return p == Float32 || p == Float64
}

// BytesPerSample is the storage width of one sample of one channel.
// Int24 occupies a full 32-bit word.
func (f SampleFormat) BytesPerSample() int {
	switch f.Packed() {
	case Int16:
		return 2
	case Int32, Int24, Float32:
		return 4
	case Float64:
		return 8
	default:
		return 0
	}
}
