// SPDX-License-Identifier: EPL-2.0

// Package wav decodes and encodes integer PCM WAV files through
// github.com/go-audio/wav.
//
// The decoder accepts 8, 16, 24 and 32-bit files and reports the total
// frame count from the data chunk size. The encoder writes 16, 24 or 32-bit
// files and needs an io.WriteSeeker so the header can be patched on Close.
//
//	src, err := wav.Decoder{}.Decode(file)
//	sink, err := wav.Encoder{}.Encode(out, 48000, 2, 24)
package wav
