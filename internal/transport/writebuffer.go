package transport

import (
	"context"
	"sync"
)

// writeBuffer tracks the number of queued-but-unflushed outbound
// bytes for the network transport and signals pause/resume exactly
// once per watermark crossing. Adapted from the teacher's circular
// ring-buffer backpressure primitive (mutex + broadcast-on-transition),
// simplified to a plain counter since this transport needs no
// offset-addressable resume, only a high/low watermark pair.
type writeBuffer struct {
	mu       sync.Mutex
	queued   int64
	high     int64
	low      int64
	paused   bool
	closed   bool
	closeErr error
	resumeCh chan struct{}

	onPause  func()
	onResume func()
}

func newWriteBuffer(high, low int64, onPause, onResume func()) *writeBuffer {
	return &writeBuffer{
		high:     high,
		low:      low,
		resumeCh: make(chan struct{}),
		onPause:  onPause,
		onResume: onResume,
	}
}

// add records n newly queued bytes, firing onPause exactly once when
// the total crosses the high watermark.
func (wb *writeBuffer) add(n int64) {
	wb.mu.Lock()
	wb.queued += n
	fire := false
	if !wb.paused && wb.queued >= wb.high {
		wb.paused = true
		wb.resumeCh = make(chan struct{})
		fire = true
	}
	wb.mu.Unlock()

	if fire && wb.onPause != nil {
		wb.onPause()
	}
}

// drained records n bytes having been flushed to the link, firing
// onResume exactly once when the total falls back to the low
// watermark.
func (wb *writeBuffer) drained(n int64) {
	wb.mu.Lock()
	wb.queued -= n
	if wb.queued < 0 {
		wb.queued = 0
	}
	var ch chan struct{}
	fire := false
	if wb.paused && wb.queued <= wb.low {
		wb.paused = false
		ch = wb.resumeCh
		fire = true
	}
	wb.mu.Unlock()

	if fire {
		close(ch)
		if wb.onResume != nil {
			wb.onResume()
		}
	}
}

// Drain blocks until not paused, the link closes, or ctx is done.
func (wb *writeBuffer) Drain(ctx context.Context) error {
	wb.mu.Lock()
	if wb.closed {
		err := wb.closeErr
		wb.mu.Unlock()
		return err
	}
	if !wb.paused {
		wb.mu.Unlock()
		return nil
	}
	ch := wb.resumeCh
	wb.mu.Unlock()

	select {
	case <-ch:
		wb.mu.Lock()
		closed, err := wb.closed, wb.closeErr
		wb.mu.Unlock()
		if closed {
			return err
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// closeWithErr wakes any pending Drain with err (nil for a clean
// local close). Only the first call has effect.
func (wb *writeBuffer) closeWithErr(err error) {
	wb.mu.Lock()
	if wb.closed {
		wb.mu.Unlock()
		return
	}
	wb.closed = true
	wb.closeErr = err
	wasPaused := wb.paused
	ch := wb.resumeCh
	wb.mu.Unlock()

	if wasPaused {
		close(ch)
	}
}
