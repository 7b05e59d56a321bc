// SPDX-License-Identifier: EPL-2.0

package utils

// SignExtend24 interprets the low three bytes of w as a signed 24-bit sample.
func SignExtend24(w uint32) int32 {
	return int32(w<<8) >> 8
}

// Pack24 stores a 24-bit sample in the low three bytes of a 32-bit word.
// The top byte is left zero.
func Pack24(s int32) uint32 {
	return uint32(s) & 0x00ffffff
}
