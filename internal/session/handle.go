package session

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"time"
)

// ErrHandleClosed is returned by Send after Close.
var ErrHandleClosed = errors.New("connection closed")

// TransportError wraps a failed read or write on a device connection. It is
// fatal to that connection only.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Handle is the live stream connection of one device. The connection
// goroutine creates and closes it; the registry only keeps a reference.
// Writes are serialized so that acks from the read loop and pushes from the
// command path never interleave on the wire.
type Handle struct {
	conn         net.Conn
	writeTimeout time.Duration
	openedAt     time.Time

	mu     sync.Mutex
	closed bool
}

func NewHandle(conn net.Conn, writeTimeout time.Duration) *Handle {
	return &Handle{
		conn:         conn,
		writeTimeout: writeTimeout,
		openedAt:     time.Now(),
	}
}

// Send writes one complete frame.
func (h *Handle) Send(frame []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return &TransportError{Op: "write", Err: ErrHandleClosed}
	}
	if h.writeTimeout > 0 {
		_ = h.conn.SetWriteDeadline(time.Now().Add(h.writeTimeout))
	}
	if _, err := h.conn.Write(frame); err != nil {
		return &TransportError{Op: "write", Err: err}
	}
	return nil
}

// Close closes the underlying connection. Safe to call more than once.
func (h *Handle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil
	}
	h.closed = true
	return h.conn.Close()
}

func (h *Handle) RemoteAddr() string {
	if addr := h.conn.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return ""
}

func (h *Handle) OpenedAt() time.Time {
	return h.openedAt
}
