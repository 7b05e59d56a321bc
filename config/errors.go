// SPDX-License-Identifier: EPL-2.0

package config

import "errors"

var (
	ErrNoNodes           = errors.New("configuration has no nodes")
	ErrMissingNodeName   = errors.New("node name is required")
	ErrMissingNodeType   = errors.New("node type is required")
	ErrDuplicateNode     = errors.New("duplicate node name")
	ErrInvalidSampleRate = errors.New("sample rate must be positive")
	ErrInvalidBufferSize = errors.New("buffer size must be positive")
	ErrUnknownNode       = errors.New("connection names an unknown node")
	ErrInvalidPad        = errors.New("pad index must not be negative")
	ErrInvalidTimeout    = errors.New("invalid control timeout")
)
