package protocol

import (
	"regexp"
	"strings"
)

// AckMode selects which flow-control discipline an AckGate enforces.
type AckMode int

const (
	// AckPingPong gates each send on the previous ok: a binary
	// semaphore with one permit so the first line may pass immediately.
	AckPingPong AckMode = iota
	// AckSliding counts oks without gating sends; the streamer only
	// waits on the count at end-of-stream.
	AckSliding
)

// AckGate is the tagged variant described by spec.md §9: either a
// binary semaphore (ping-pong) or a plain counter (sliding). It is
// meaningful only while a stream owns it; the session clears its
// reference to the gate when no stream is active.
type AckGate struct {
	mode    AckMode
	sem     chan struct{}
	counter int64
}

// NewAckGate builds a gate for the given mode, matching spec.md
// §4.5's setup step.
func NewAckGate(mode AckMode) *AckGate {
	g := &AckGate{mode: mode}
	if mode == AckPingPong {
		g.sem = make(chan struct{}, 1)
		g.sem <- struct{}{}
	}
	return g
}

// Release is called by the classifier when an "ok" line arrives: it
// frees one permit in ping-pong mode, or increments the counter in
// sliding mode.
func (g *AckGate) Release() {
	if g.mode == AckPingPong {
		select {
		case g.sem <- struct{}{}:
		default:
			// Permit already available; a spurious extra ok is a no-op.
		}
		return
	}
	g.counter++
}

// Acquire blocks until a permit is available (ping-pong) or returns
// immediately (sliding, where sends are never gated). abort is
// closed to interrupt a pending acquire, matching spec.md §5's
// requirement that the semaphore wait be abort-interruptible.
func (g *AckGate) Acquire(abort <-chan struct{}) (acquired bool) {
	if g.mode != AckPingPong {
		return true
	}
	select {
	case <-g.sem:
		return true
	case <-abort:
		return false
	}
}

// ReleaseForAbort frees a pending permit so a waiting Acquire returns
// promptly when the streamer aborts, per spec.md §5.
func (g *AckGate) ReleaseForAbort() {
	if g.mode != AckPingPong {
		return
	}
	select {
	case g.sem <- struct{}{}:
	default:
	}
}

// Count returns the sliding-mode ok counter. Meaningless in
// ping-pong mode.
func (g *AckGate) Count() int64 { return g.counter }

var tempLineRE = regexp.MustCompile(`(^T:| T:)`)

// Classifier dispatches decoded lines to the correct handler per the
// priority rules in spec.md §4.3. All callback fields are optional;
// a nil field means lines of that kind are dropped (for AckGate, an
// "ok" is ignored, as it is when the provider returns a nil gate).
type Classifier struct {
	// RerouteSink, when non-nil, receives every line instead of normal
	// classification. The sink itself decides when the transaction
	// ends and clears this field.
	RerouteSink func(line string)

	// AckGate returns the session's current ack gate, or nil if no
	// stream is active. Per spec.md §9's resolved Open Question, an ok
	// with no active gate is silently ignored.
	AckGate func() *AckGate

	OnTemperature     func(Temperature)
	OnPosition        func(Position)
	OnStatus          func(Status)
	OnOldStatusFormat func()
	OnAlarm           func(line string)
	OnAction          func(verb, args string)
	OnDisplay         func(line string)
}

// Dispatch classifies one decoded line and invokes the matching
// callback. Never panics on malformed input; unparseable report
// lines are simply dropped (spec.md §7 ParseError).
func (c *Classifier) Dispatch(line string) {
	if c.RerouteSink != nil {
		c.RerouteSink(line)
		return
	}

	switch {
	case strings.Contains(line, "ok C:"):
		if pos, ok := ParsePosition(line); ok && c.OnPosition != nil {
			c.OnPosition(pos)
		}

	case strings.Contains(line, "ok T:") || tempLineRE.MatchString(line):
		if t, ok := ParseTemperature(line); ok && c.OnTemperature != nil {
			c.OnTemperature(t)
		}

	case strings.HasPrefix(line, "ok"):
		var gate *AckGate
		if c.AckGate != nil {
			gate = c.AckGate()
		}
		if gate != nil {
			gate.Release()
		}

	case strings.Contains(line, "!!") || strings.Contains(line, "ALARM") || strings.Contains(line, "ERROR"):
		if c.OnAlarm != nil {
			c.OnAlarm(line)
		}

	case strings.HasPrefix(line, "<"):
		if st, ok := ParseStatus(line); ok {
			if c.OnStatus != nil {
				c.OnStatus(st)
			}
		} else if c.OnOldStatusFormat != nil {
			c.OnOldStatusFormat()
		}

	case strings.HasPrefix(line, "//"):
		c.dispatchComment(line)

	default:
		if c.OnDisplay != nil {
			c.OnDisplay(line)
		}
	}
}

func (c *Classifier) dispatchComment(line string) {
	idx := strings.Index(line, "action:")
	if idx < 0 {
		if c.OnDisplay != nil {
			c.OnDisplay(line)
		}
		return
	}

	rest := strings.TrimSpace(line[idx+len("action:"):])
	verb := rest
	args := ""
	if sp := strings.IndexByte(rest, ' '); sp >= 0 {
		verb = rest[:sp]
		args = strings.TrimSpace(rest[sp+1:])
	}

	if c.OnAction != nil {
		c.OnAction(verb, args)
	}
}
