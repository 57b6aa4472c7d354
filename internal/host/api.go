// Package host exposes the thread-safe entrypoint set described in
// spec.md §4.7. Session already serializes its own mutable state
// behind its own locks, so API is a thin naming and lifecycle layer:
// it owns spawning the session and gives the foreground a single
// handle to hold regardless of connection state.
package host

import (
	"context"
	"log/slog"

	"github.com/smoothie-ctl/hostcomms/internal/config"
	"github.com/smoothie-ctl/hostcomms/internal/session"
)

// API is returned by Connect and is safe to use from any goroutine.
type API struct {
	sess *session.Session
}

// Connect spawns a session against cfg and returns immediately,
// matching spec.md §4.7's "connect(descriptor) → thread_handle". The
// caller's Hooks.Connected / Hooks.Disconnected report the outcome
// asynchronously once the transport actually opens or fails.
func Connect(cfg *config.Config, logger *slog.Logger, hooks session.Hooks) *API {
	sess := session.New(cfg, logger, hooks)
	api := &API{sess: sess}
	go func() {
		_ = sess.Open(context.Background())
	}()
	return api
}

// Disconnect closes the transport. Idempotent.
func (a *API) Disconnect() {
	a.sess.Disconnect()
}

// Write enqueues one immediate send.
func (a *API) Write(line string) error {
	return a.sess.Write(line)
}

// StreamGcode starts streaming path; progress is invoked per
// streaming.Streamer.Run's contract.
func (a *API) StreamGcode(path string, progress func(count int64)) error {
	return a.sess.StreamGcode(path, progress)
}

// StreamPause pauses, resumes, or aborts the active stream.
func (a *API) StreamPause(pause bool, abort bool) error {
	return a.sess.StreamPause(pause, abort)
}

// ListSDCard runs the bounded SD-card listing transaction.
func (a *API) ListSDCard(ctx context.Context) ([]string, error) {
	return a.sess.ListSDCard(ctx)
}

// Stop aborts any active stream, closes the transport, and waits for
// in-flight stream goroutines to finish. Idempotent.
func (a *API) Stop() {
	a.sess.Stop()
}
