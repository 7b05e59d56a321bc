// SPDX-License-Identifier: EPL-2.0

package utils

import "math"

const (
	maxInt16 = 32767
	maxInt24 = 1<<23 - 1
	maxInt32 = 1<<31 - 1
)

// Clamp limits x to [-1, 1].
func Clamp(x float64) float64 {
	if x > 1 {
		return 1
	} else if x < -1 {
		return -1
	}
	return x
}

func Float32ToInt16(x float32) int16 {
	return FloatToInt16(float64(x))
}

// FloatToInt16 clamps x and scales it by 32767 with rounding.
func FloatToInt16(x float64) int16 {
	return int16(math.Round(Clamp(x) * maxInt16))
}

// FloatToInt24 returns a 24-bit sample held in the low bits of an int32.
func FloatToInt24(x float64) int32 {
	return int32(math.Round(Clamp(x) * maxInt24))
}

// FloatToInt32 scales by 2^31-1. The product is computed in float64 so that
// 1.0 maps to exactly math.MaxInt32.
func FloatToInt32(x float64) int32 {
	return int32(math.Round(Clamp(x) * maxInt32))
}

func Int16ToFloat(s int16) float64 { return float64(s) / 32768.0 }
func Int24ToFloat(s int32) float64 { return float64(s) / (1 << 23) }
func Int32ToFloat(s int32) float64 { return float64(s) / (1 << 31) }
