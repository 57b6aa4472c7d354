// Package session implements the connection lifecycle described in
// spec.md §4.6: opening the transport, driving the demultiplexer,
// arming the periodic status-poll timer, and coordinating the
// streaming engine, the alarm path, and the bounded SD-card listing
// transaction. Where the original ties all of this to one cooperative
// scheduler thread, this package instead serializes the same mutable
// state behind a small set of mutexes so the Host-facing API methods
// remain safe to call from any goroutine.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/smoothie-ctl/hostcomms/internal/config"
	"github.com/smoothie-ctl/hostcomms/internal/protocol"
	"github.com/smoothie-ctl/hostcomms/internal/streaming"
	"github.com/smoothie-ctl/hostcomms/internal/transport"
)

// Hooks are the application-facing callbacks described in spec.md
// §6. All are optional except Connected, Disconnected, and
// StreamFinished, which a well-behaved caller always supplies.
type Hooks struct {
	Connected         func()
	Disconnected      func()
	Display           func(line string)
	UpdateTemperature func(protocol.Temperature)
	UpdatePosition    func(protocol.Position)
	UpdateStatus      func(state string, fields map[string][]float64)
	AlarmState        func(line string)
	StreamFinished    func(ok bool)
	PausePrompt       func(msg string)
	ChangeImage       func(path string)
	SoundAlarm        func()
}

// Session owns one connection's worth of state: the transport, the
// classifier, the poll timer, and at most one active streamer.
type Session struct {
	cfg    *config.Config
	logger *slog.Logger
	hooks  Hooks

	pingPong bool

	mu        sync.Mutex
	tr        transport.Transport
	streamer  *streaming.Streamer
	reassembler *protocol.Reassembler
	classifier  *protocol.Classifier

	classifierMu sync.Mutex // guards classifier.RerouteSink

	writeMu sync.Mutex // serializes all outbound bytes (spec.md §5, single-writer transport)

	pollMu    sync.Mutex
	pollTimer *time.Timer

	doQuery  atomic.Bool
	connLost atomic.Bool

	streamWG  sync.WaitGroup
	closeOnce sync.Once
}

// New builds a Session for the given configuration. Call Open to
// establish the transport.
func New(cfg *config.Config, logger *slog.Logger, hooks Hooks) *Session {
	return &Session{
		cfg:         cfg,
		logger:      logger,
		hooks:       hooks,
		reassembler: &protocol.Reassembler{},
	}
}

// Open parses the configured connection descriptor's transport kind,
// opens the link, and — once connected — writes the version greeting
// and arms the poll timer, per spec.md §4.6 phases Open and Ready.
// TransportOpenFailure is reported via Display and Disconnected,
// matching spec.md §7.
func (s *Session) Open(ctx context.Context) error {
	s.pingPong = s.cfg.PingPongDefault()

	s.classifier = &protocol.Classifier{
		AckGate:           s.currentGate,
		OnTemperature:     s.hooks.UpdateTemperature,
		OnPosition:        s.hooks.UpdatePosition,
		OnStatus:          s.onStatus,
		OnOldStatusFormat: s.onOldStatusFormat,
		OnAlarm:           s.onAlarm,
		OnAction:          s.onAction,
		OnDisplay:         s.hooks.Display,
	}

	hooks := transport.Hooks{OnBytes: s.onBytes, OnClosed: s.onTransportClosed}

	var tr transport.Transport
	var err error
	switch s.cfg.Connection.Kind {
	case config.TransportSerial:
		tr, err = transport.OpenSerial(s.cfg.Connection.Device, hooks)
	case config.TransportNetwork:
		tr, err = transport.DialNetwork(ctx, s.cfg.Connection.Host, s.cfg.Connection.Port, hooks)
	default:
		err = fmt.Errorf("session: unrecognized connection kind %q", s.cfg.Connection.Kind)
	}
	if err != nil {
		s.logger.Warn("transport open failed", "error", err)
		if s.hooks.Display != nil {
			s.hooks.Display("connect failed: " + err.Error())
		}
		if s.hooks.Disconnected != nil {
			s.hooks.Disconnected()
		}
		return err
	}

	s.mu.Lock()
	s.tr = tr
	s.mu.Unlock()

	s.logger.Info("session connected", "kind", s.cfg.Connection.Kind, "ping_pong", s.pingPong)
	if s.hooks.Connected != nil {
		s.hooks.Connected()
	}

	if s.cfg.ReportRate > 0 {
		_ = s.sendRaw("\nversion\n")
		s.armPoll(s.cfg.ReportRate)
	}
	return nil
}

// Write sends one line verbatim, per spec.md §4.7.
func (s *Session) Write(line string) error {
	return s.sendRaw(line)
}

// Disconnect closes the transport and runs teardown. Safe to call
// more than once; only the first call has any effect.
func (s *Session) Disconnect() {
	s.mu.Lock()
	tr := s.tr
	s.mu.Unlock()
	if tr != nil {
		_ = tr.Close()
	}
	s.finish()
}

// Stop aborts any active stream and disconnects, per spec.md §4.7.
// Idempotent: calling it twice produces exactly one Disconnected callback.
func (s *Session) Stop() {
	if st := s.currentStreamer(); st != nil {
		st.Abort()
	}
	s.Disconnect()
}

// StreamGcode starts streaming path asynchronously. progress is
// invoked per streaming.Streamer.Run's contract; StreamFinished fires
// exactly once when the stream ends, successfully or not.
func (s *Session) StreamGcode(path string, progress func(count int64)) error {
	s.mu.Lock()
	if s.streamer != nil {
		s.mu.Unlock()
		return ErrStreamAlreadyActive
	}
	if s.tr == nil {
		s.mu.Unlock()
		return ErrNotConnected
	}

	mode := protocol.AckSliding
	if s.pingPong {
		mode = protocol.AckPingPong
	}
	st := streaming.NewStreamer(mode, &sessionTransport{s: s}, streaming.Hooks{
		ChangeImage: s.hooks.ChangeImage,
		Display:     s.hooks.Display,
		PausePrompt: s.hooks.PausePrompt,
		SoundAlarm:  s.hooks.SoundAlarm,
	})
	st.DrainTimeout = s.cfg.StreamDrainTimeout
	st.ConnectionLost = s.connLost.Load
	st.ConsumeQuery = s.consumeDoQuery
	st.EmitQuery = func() error { s.emitQuery(); return nil }
	s.streamer = st
	s.mu.Unlock()

	s.streamWG.Add(1)
	go func() {
		defer s.streamWG.Done()
		ok := st.Run(context.Background(), path, progress)
		s.mu.Lock()
		s.streamer = nil
		s.mu.Unlock()
		if s.hooks.StreamFinished != nil {
			s.hooks.StreamFinished(ok)
		}
	}()
	return nil
}

// StreamPause pauses, resumes, or aborts the active stream, per
// spec.md §4.7. Pausing and resuming round-trip with no lines lost or
// duplicated: the streamer simply stops and resumes consuming the
// same open file.
func (s *Session) StreamPause(pause bool, abort bool) error {
	st := s.currentStreamer()
	if st == nil {
		return ErrNoActiveStream
	}
	if abort {
		st.Abort()
		return nil
	}
	st.SetPaused(pause)
	return nil
}

func (s *Session) currentStreamer() *streaming.Streamer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streamer
}

func (s *Session) currentGate() *protocol.AckGate {
	if st := s.currentStreamer(); st != nil {
		return st.Gate()
	}
	return nil
}

func (s *Session) isStreaming() bool {
	return s.currentStreamer() != nil
}

func (s *Session) sendRaw(line string) error {
	s.mu.Lock()
	tr := s.tr
	s.mu.Unlock()
	if tr == nil {
		return ErrNotConnected
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return tr.Write([]byte(line))
}

func (s *Session) onBytes(buf []byte) {
	lines := s.reassembler.Feed(buf)
	for _, line := range lines {
		s.classifierMu.Lock()
		s.classifier.Dispatch(line)
		s.classifierMu.Unlock()
	}
}

func (s *Session) installReroute(fn func(string)) {
	s.classifierMu.Lock()
	s.classifier.RerouteSink = fn
	s.classifierMu.Unlock()
}

func (s *Session) uninstallReroute() {
	s.classifierMu.Lock()
	s.classifier.RerouteSink = nil
	s.classifierMu.Unlock()
}

func (s *Session) onStatus(st protocol.Status) {
	if s.hooks.UpdateStatus != nil {
		s.hooks.UpdateStatus(st.State, st.Fields)
	}
	s.rearmPoll()
}

func (s *Session) onOldStatusFormat() {
	if s.hooks.UpdateStatus != nil {
		s.hooks.UpdateStatus("ERROR", map[string][]float64{"set new_status_format true": nil})
	}
}

func (s *Session) onAlarm(line string) {
	s.logger.Warn("alarm received", "line", line)
	if st := s.currentStreamer(); st != nil {
		st.Abort()
	}
	if s.hooks.AlarmState != nil {
		s.hooks.AlarmState(line)
	}
}

func (s *Session) onAction(verb, args string) {
	switch verb {
	case "pause":
		if st := s.currentStreamer(); st != nil {
			st.SetPaused(true)
		}
	case "resume":
		if st := s.currentStreamer(); st != nil {
			st.SetPaused(false)
		}
	case "disconnect":
		go s.Disconnect()
	default:
		if s.hooks.Display != nil {
			s.hooks.Display("unrecognized action: " + verb)
		}
	}
}

func (s *Session) onTransportClosed(err error) {
	s.finish()
}

func (s *Session) finish() {
	s.closeOnce.Do(func() {
		s.connLost.Store(true)
		s.mu.Lock()
		s.tr = nil
		s.mu.Unlock()
		if st := s.currentStreamer(); st != nil {
			st.Abort()
		}
		s.cancelPoll()
		s.streamWG.Wait()
		s.logger.Info("session disconnected")
		if s.hooks.Disconnected != nil {
			s.hooks.Disconnected()
		}
	})
}

// sessionTransport adapts Session to streaming.Transport, funnelling
// the streamer's writes through the same writeMu as host-initiated
// writes so the two never interleave on the wire.
type sessionTransport struct {
	s *Session
}

func (t *sessionTransport) Write(p []byte) error {
	t.s.mu.Lock()
	tr := t.s.tr
	t.s.mu.Unlock()
	if tr == nil {
		return transport.ErrConnectionLost
	}
	t.s.writeMu.Lock()
	defer t.s.writeMu.Unlock()
	return tr.Write(p)
}

func (t *sessionTransport) Drain(ctx context.Context) error {
	t.s.mu.Lock()
	tr := t.s.tr
	t.s.mu.Unlock()
	if tr == nil {
		return transport.ErrConnectionLost
	}
	return tr.Drain(ctx)
}
