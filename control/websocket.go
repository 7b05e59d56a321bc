// SPDX-License-Identifier: EPL-2.0

package control

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const writeWait = 2 * time.Second

// WebSocket sends each command as one text message. Writes are serialized
// so commands arrive in the order Send was called.
type WebSocket struct {
	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool
}

func DialWebSocket(ctx context.Context, url string) (*WebSocket, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}
	return &WebSocket{conn: conn}, nil
}

// Send writes command. The write deadline is the context deadline, or a
// short default.
func (w *WebSocket) Send(ctx context.Context, command string) error {
	command = strings.TrimSpace(command)
	if command == "" {
		return ErrEmptyCommand
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrClosed
	}
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(writeWait)
	}
	if err := w.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	if err := w.conn.WriteMessage(websocket.TextMessage, []byte(command)); err != nil {
		return fmt.Errorf("send %q: %w", command, err)
	}
	return nil
}

// Replay sends commands in order and returns the error of every command
// that failed, keyed by its index. It keeps going after a failure.
func (w *WebSocket) Replay(ctx context.Context, commands []string) map[int]error {
	failed := map[int]error{}
	for i, cmd := range commands {
		if err := w.Send(ctx, cmd); err != nil {
			failed[i] = err
		}
	}
	return failed
}

func (w *WebSocket) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = w.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
	return w.conn.Close()
}
