// SPDX-License-Identifier: EPL-2.0

package audio

import "errors"

var (
	ErrInvalidDstSize        = errors.New("dst size must be multiple of channels")
	ErrInvalidFrames         = errors.New("invalid frame count")
	ErrUnsupportedFormat     = errors.New("unsupported sample format")
	ErrUnsupportedLayout     = errors.New("unsupported channel layout")
	ErrInvalidBuffer         = errors.New("buffer is not valid")
	ErrViewOutOfRange        = errors.New("view range exceeds source frames")
	ErrChannelMismatch       = errors.New("channel counts differ and no mix rule was given")
	ErrUnsupportedConversion = errors.New("unsupported sample conversion")
	ErrShortBuffer           = errors.New("sample slice shorter than buffer")
)
