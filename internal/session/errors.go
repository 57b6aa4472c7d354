package session

import "errors"

var (
	// ErrNotConnected is returned by API entrypoints called before Open
	// or after the transport has closed.
	ErrNotConnected = errors.New("session: not connected")

	// ErrStreamAlreadyActive is returned by StreamGcode when a stream
	// is already running.
	ErrStreamAlreadyActive = errors.New("session: a stream is already active")

	// ErrNoActiveStream is returned by StreamPause when no stream is running.
	ErrNoActiveStream = errors.New("session: no active stream")

	// ErrStreamTimeout is returned by ListSDCard when the 10s bounded
	// transaction window elapses without seeing the end-of-list marker.
	ErrStreamTimeout = errors.New("session: sd-card listing timed out")
)
