// SPDX-License-Identifier: EPL-2.0

// Package utils holds scalar sample helpers shared by the audio, hw and
// formats packages: float/integer scaling with the clamp and rounding rules
// used everywhere in the engine, 24-bit packing, and cubic interpolation.
package utils
