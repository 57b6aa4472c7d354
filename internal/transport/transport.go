// Package transport implements the byte-level duplex link to the
// controller: a local serial port or a buffered TCP connection,
// uniform behind one interface with write-buffer watermarks and a
// drain primitive for the streaming engine's backpressure.
package transport

import (
	"context"
	"errors"
)

// ErrConnectionLost is returned by Drain (and by Write) when the link
// closes unexpectedly mid-session. Hooks.OnClosed receives the
// underlying I/O error instead.
var ErrConnectionLost = errors.New("transport: connection lost")

// Hooks are the event callbacks a Transport delivers to its owner
// (the session loop). All fields are optional.
type Hooks struct {
	// OnBytes delivers raw incoming bytes as they arrive.
	OnBytes func([]byte)
	// OnClosed fires exactly once, whether Close was called locally or
	// the link failed. err is nil for a clean local Close.
	OnClosed func(err error)
	// OnPause/OnResume fire when the outbound write buffer crosses its
	// high/low watermark (network transport only).
	OnPause  func()
	OnResume func()
}

// Transport is a uniform duplex link: open by one of the package's
// constructors, write G-code or API bytes, and await a drain point
// before writing more once paused.
type Transport interface {
	// Write sends bytes to the device. Returns ErrConnectionLost if
	// the link has already failed.
	Write(p []byte) error

	// Drain blocks until the outbound queue has drained below the low
	// watermark, or returns immediately if it was never above the
	// high watermark. Serial links always return immediately (backed
	// by a real tcdrain). Returns ErrConnectionLost if the link closes
	// while a drain is pending.
	Drain(ctx context.Context) error

	// Close is idempotent; OnClosed fires exactly once regardless of
	// how many times Close is called.
	Close() error
}
