// SPDX-License-Identifier: EPL-2.0

package audio

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/ik5/audroute/utils"
)

var le = binary.LittleEndian

// intBits is the significant bit width of an integer format.
func intBits(f SampleFormat) int {
	switch f.Packed() {
	case Int16:
		return 16
	case Int24:
		return 24
	case Int32:
		return 32
	default:
		return 0
	}
}

func readInt(f SampleFormat, b []byte) int32 {
	switch f.Packed() {
	case Int16:
		return int32(int16(le.Uint16(b)))
	case Int24:
		return utils.SignExtend24(le.Uint32(b))
	default:
		return int32(le.Uint32(b))
	}
}

func writeInt(f SampleFormat, b []byte, v int32) {
	switch f.Packed() {
	case Int16:
		le.PutUint16(b, uint16(int16(v)))
	case Int24:
		le.PutUint32(b, utils.Pack24(v))
	default:
		le.PutUint32(b, uint32(v))
	}
}

// decodeSample returns the normalized value of one sample.
func decodeSample(f SampleFormat, b []byte) float64 {
	switch f.Packed() {
	case Int16:
		return utils.Int16ToFloat(int16(le.Uint16(b)))
	case Int24:
		return utils.Int24ToFloat(utils.SignExtend24(le.Uint32(b)))
	case Int32:
		return utils.Int32ToFloat(int32(le.Uint32(b)))
	case Float32:
		return float64(math.Float32frombits(le.Uint32(b)))
	case Float64:
		return math.Float64frombits(le.Uint64(b))
	default:
		return 0
	}
}

// encodeSample stores v in format f. Integer targets clamp to [-1, 1] and
// round; float targets store v unchanged.
func encodeSample(f SampleFormat, b []byte, v float64) {
	switch f.Packed() {
	case Int16:
		le.PutUint16(b, uint16(utils.FloatToInt16(v)))
	case Int24:
		le.PutUint32(b, utils.Pack24(utils.FloatToInt24(v)))
	case Int32:
		le.PutUint32(b, uint32(utils.FloatToInt32(v)))
	case Float32:
		le.PutUint32(b, math.Float32bits(float32(v)))
	case Float64:
		le.PutUint64(b, math.Float64bits(v))
	}
}

// SampleConverter converts one sample from src into dst.
type SampleConverter func(dst, src []byte)

// NewSampleConverter returns the conversion for one (from, to) pair. Planar
// and interleaved variants of a format convert identically.
//
// Integer to integer conversions shift by the difference in bit width, so
// int16 -> int24 -> int16 is lossless and int24 -> int32 is a left shift
// by 8. Integer to float divides by 2^(bits-1). Float to integer clamps and
// rounds against 2^(bits-1)-1. Identical formats copy bytes.
func NewSampleConverter(from, to SampleFormat) (SampleConverter, error) {
	from, to = from.Packed(), to.Packed()
	if !from.Valid() || !to.Valid() {
		return nil, fmt.Errorf("%w: %v -> %v", ErrUnsupportedConversion, from, to)
	}

	if from == to {
		n := from.BytesPerSample()
		return func(dst, src []byte) { copy(dst[:n], src[:n]) }, nil
	}

	switch {
	case !from.IsFloat() && !to.IsFloat():
		shift := intBits(to) - intBits(from)
		return func(dst, src []byte) {
			v := readInt(from, src)
			if shift > 0 {
				v <<= shift
			} else {
				v >>= -shift
			}
			writeInt(to, dst, v)
		}, nil
	default:
		return func(dst, src []byte) {
			encodeSample(to, dst, decodeSample(from, src))
		}, nil
	}
}

// ConvertSamples converts n samples of one channel. Strides are the byte
// distance between consecutive samples on each side.
func ConvertSamples(dst []byte, to SampleFormat, dstStride int, src []byte, from SampleFormat, srcStride int, n int) error {
	conv, err := NewSampleConverter(from, to)
	if err != nil {
		return err
	}
	if n <= 0 {
		return nil
	}
	if len(src) < (n-1)*srcStride+from.BytesPerSample() || len(dst) < (n-1)*dstStride+to.BytesPerSample() {
		return ErrShortBuffer
	}

	for i := range n {
		conv(dst[i*dstStride:], src[i*srcStride:])
	}
	return nil
}
