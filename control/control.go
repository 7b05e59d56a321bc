// SPDX-License-Identifier: EPL-2.0

// Package control talks to the external mixing device controller. The
// engine only needs an ordered channel for textual commands; message
// semantics belong to the device.
package control

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ik5/audroute/config"
	"github.com/ik5/audroute/internal/log"
)

var (
	ErrNotConfigured = errors.New("no controller configured")
	ErrNotFound      = errors.New("controller service not found")
	ErrClosed        = errors.New("controller connection closed")
	ErrEmptyCommand  = errors.New("empty command")
)

const DefaultDomain = "local"

// Dial connects to the configured controller. An explicit URL is used as
// is; otherwise the service is looked up over mDNS first.
func Dial(ctx context.Context, cfg config.Control) (*WebSocket, error) {
	timeout := time.Duration(cfg.Timeout)
	if timeout <= 0 {
		timeout = config.DefaultControlTimeout
	}

	url := cfg.URL
	if url == "" {
		if cfg.Service == "" {
			return nil, ErrNotConfigured
		}
		ep, err := Discover(ctx, cfg.Service, cfg.Domain, timeout)
		if err != nil {
			return nil, err
		}
		url = ep.URL()
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ws, err := DialWebSocket(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("controller %s: %w", url, err)
	}
	log.WithField("url", url).Info("controller connected")
	return ws, nil
}
