// Package streaming implements the G-code streaming engine: reading a
// job file line by line and feeding it to the transport under one of
// two flow-control disciplines, honoring pause/abort and inline host
// directives, and reporting progress. See spec.md §4.5.
package streaming

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/smoothie-ctl/hostcomms/internal/protocol"
)

// Transport is the subset of transport.Transport the streamer needs.
// Declared locally to keep this package independent of the transport
// package's concrete types.
type Transport interface {
	Write(p []byte) error
	Drain(ctx context.Context) error
}

// Hooks are the application callbacks the streamer may invoke while
// interpreting inline host directives, per spec.md §4.5 step 6.
type Hooks struct {
	ChangeImage func(path string)
	Display     func(msg string)
	PausePrompt func(msg string)
	SoundAlarm  func()
}

// pauseWaitInterval and slidingWaitInterval mirror the original
// implementation's ~1s poll granularity for pause and terminal waits.
const pauseWaitInterval = time.Second
const slidingWaitInterval = time.Second

const progressEvery = 10

// Streamer runs one G-code stream to completion. A Streamer is used
// once; call Run exactly once per instance.
type Streamer struct {
	mode      protocol.AckMode
	transport Transport
	hooks     Hooks

	// ConnectionLost is polled after each write to decide whether to
	// yield once before the next drain check, per spec.md §4.5 step 8.
	ConnectionLost func() bool

	// ConsumeQuery atomically checks and clears the session's
	// do_query flag; EmitQuery writes a status query to the
	// transport. Both are optional; nil means polling is disabled for
	// this stream (e.g. report_rate == 0).
	ConsumeQuery func() bool
	EmitQuery    func() error

	// DrainTimeout bounds the sliding-mode terminal wait for
	// outstanding acks. Zero means unbounded (DESIGN.md Open Question 3).
	DrainTimeout time.Duration

	gate *protocol.AckGate

	abortCh  chan struct{}
	abortSet atomic.Bool

	// lastLineCount is the final line counter reached by the main
	// loop, used as the target for the sliding-mode terminal wait.
	lastLineCount int64

	mu     sync.Mutex
	paused bool
}

// NewStreamer builds a streamer for one run.
func NewStreamer(mode protocol.AckMode, transport Transport, hooks Hooks) *Streamer {
	return &Streamer{
		mode:      mode,
		transport: transport,
		hooks:     hooks,
		abortCh:   make(chan struct{}),
	}
}

// Gate returns the streamer's ack gate once Run has started; nil
// before that. The session wires the classifier's AckGate provider to
// this so incoming "ok" lines only affect a gate the streamer owns.
func (s *Streamer) Gate() *protocol.AckGate {
	return s.gate
}

// SetPaused toggles the pause flag. Pausing takes effect at the next
// check in the main loop; unpausing is noticed by a paused wait at
// its next check, up to pauseWaitInterval later.
func (s *Streamer) SetPaused(paused bool) {
	s.mu.Lock()
	s.paused = paused
	s.mu.Unlock()
}

func (s *Streamer) isPaused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused
}

// Abort sets the sticky abort flag and releases a pending ack-gate
// acquire so a blocked streamer wakes promptly, per spec.md §5.
func (s *Streamer) Abort() {
	if s.abortSet.CompareAndSwap(false, true) {
		close(s.abortCh)
	}
	if s.gate != nil {
		s.gate.ReleaseForAbort()
	}
}

func (s *Streamer) isAborted() bool {
	return s.abortSet.Load()
}

// Run streams path to the transport, invoking progress(count) every
// ten lines (count is the line counter in ping-pong mode, the ack
// counter in sliding mode) and returning whether the stream completed
// successfully. Run always returns after running its teardown exactly
// once; callers must treat the returned bool as the sole success
// signal, mirroring stream_finished in spec.md §4.5.
func (s *Streamer) Run(ctx context.Context, path string, progress func(count int64)) bool {
	s.gate = protocol.NewAckGate(s.mode)

	f, err := os.Open(path)
	if err != nil {
		if s.hooks.Display != nil {
			s.hooks.Display(fmt.Sprintf("stream: cannot open %s: %v", path, err))
		}
		return false
	}
	defer f.Close()

	ok := s.mainLoop(ctx, bufio.NewScanner(f), progress)

	if s.mode == protocol.AckSliding && ok {
		ok = s.waitForSlidingDrain(progress)
	}

	return ok
}

func (s *Streamer) mainLoop(ctx context.Context, scanner *bufio.Scanner, progress func(count int64)) bool {
	var lineCount int64
	defer func() { s.lastLineCount = lineCount }()

	for {
		if !s.waitWhilePaused() {
			return false
		}

		if !scanner.Scan() {
			return scanner.Err() == nil
		}
		if s.isAborted() {
			return false
		}

		raw := scanner.Text()
		stripped := strings.TrimRight(raw, " \t\r\n")
		trimmedForChecks := strings.TrimSpace(stripped)
		if trimmedForChecks == "" || strings.HasPrefix(trimmedForChecks, ";") {
			continue
		}

		if isHostDirective(trimmedForChecks) {
			// Host directives are intercepted locally and never reach
			// the controller, so they must not consume an ack permit:
			// no "ok" will ever arrive to release it.
			s.dispatchDirective(trimmedForChecks)
			continue
		}

		if s.mode == protocol.AckPingPong {
			if !s.gate.Acquire(s.abortCh) {
				return false
			}
		}

		// Write the unstripped original line: stripped/trimmedForChecks
		// exist only to decide whether to skip or intercept the line,
		// never to alter what reaches the controller.
		if err := s.transport.Write([]byte(raw + "\n")); err != nil {
			return false
		}

		if s.ConnectionLost != nil && s.ConnectionLost() {
			// Yield once so the closure event is delivered before the
			// next drain check, per spec.md §4.5 step 8.
			runtime.Gosched()
		}

		if err := s.transport.Drain(ctx); err != nil {
			return false
		}
		if s.isAborted() {
			return false
		}

		lineCount++
		if lineCount%progressEvery == 0 && progress != nil {
			if s.mode == protocol.AckPingPong {
				progress(lineCount)
			} else {
				progress(s.gate.Count())
			}
		}

		if s.ConsumeQuery != nil && s.ConsumeQuery() {
			if s.EmitQuery != nil {
				_ = s.EmitQuery()
			}
			_ = s.transport.Drain(ctx)
		}
	}
}

func (s *Streamer) waitWhilePaused() (ok bool) {
	for s.isPaused() {
		if s.isAborted() {
			return false
		}
		select {
		case <-s.abortCh:
			return false
		case <-time.After(pauseWaitInterval):
		}
	}
	return true
}

func (s *Streamer) waitForSlidingDrain(progress func(count int64)) bool {
	// linecnt is fixed at the main loop's final line count; the
	// sliding terminal wait polls until acks catch up to it.
	target := s.lastLineCount
	var deadline <-chan time.Time
	if s.DrainTimeout > 0 {
		timer := time.NewTimer(s.DrainTimeout)
		defer timer.Stop()
		deadline = timer.C
	}

	for s.gate.Count() < target {
		if s.isAborted() {
			return false
		}
		if progress != nil {
			progress(s.gate.Count())
		}
		select {
		case <-s.abortCh:
			return false
		case <-deadline:
			return false
		case <-time.After(slidingWaitInterval):
		}
	}
	return true
}

func isHostDirective(line string) bool {
	return strings.HasPrefix(line, "(cmd ") && strings.HasSuffix(line, ")")
}

func (s *Streamer) dispatchDirective(line string) {
	body := strings.TrimSuffix(strings.TrimPrefix(line, "(cmd "), ")")
	body = strings.TrimSpace(body)

	verb := body
	args := ""
	if idx := strings.IndexByte(body, ' '); idx >= 0 {
		verb = body[:idx]
		args = strings.TrimSpace(body[idx+1:])
	}

	switch verb {
	case "image":
		if s.hooks.ChangeImage != nil {
			s.hooks.ChangeImage(args)
		}
	case "text":
		if s.hooks.Display != nil {
			s.hooks.Display(args)
		}
	case "pause":
		s.SetPaused(true)
		if s.hooks.PausePrompt != nil {
			s.hooks.PausePrompt(args)
		}
	case "alarm":
		if s.hooks.SoundAlarm != nil {
			s.hooks.SoundAlarm()
		}
	default:
		if s.hooks.Display != nil {
			s.hooks.Display("unknown host directive: " + verb)
		}
	}
}
