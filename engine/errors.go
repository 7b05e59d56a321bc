// SPDX-License-Identifier: EPL-2.0

package engine

import "errors"

var (
	ErrInvalidState = errors.New("invalid engine state")
	ErrNotRunning   = errors.New("engine not running")
	ErrCycle        = errors.New("connection graph has a cycle")
	ErrUnknownNode  = errors.New("unknown node")
	ErrNotProcessor = errors.New("node is not a processor")
	ErrPadInUse     = errors.New("input pad already connected")
)
