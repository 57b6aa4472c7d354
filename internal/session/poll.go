package session

import (
	"time"

	"github.com/smoothie-ctl/hostcomms/internal/config"
)

// armPoll schedules the next status query report_rate from now,
// replacing any pending timer.
func (s *Session) armPoll(d time.Duration) {
	s.pollMu.Lock()
	if s.pollTimer != nil {
		s.pollTimer.Stop()
	}
	s.pollTimer = time.AfterFunc(d, s.firePoll)
	s.pollMu.Unlock()
}

func (s *Session) cancelPoll() {
	s.pollMu.Lock()
	if s.pollTimer != nil {
		s.pollTimer.Stop()
		s.pollTimer = nil
	}
	s.pollMu.Unlock()
}

// rearmPoll reschedules the poll timer after a successful status
// parse, per spec.md §4.4: the timer is driven by report arrival, not
// fixed wall-clock, so it backs off naturally under load.
func (s *Session) rearmPoll() {
	if s.cfg.ReportRate > 0 {
		s.armPoll(s.cfg.ReportRate)
	}
}

// firePoll implements _get_reports (spec.md §4.6): while streaming,
// defer to the streamer's next drain point instead of emitting
// directly.
func (s *Session) firePoll() {
	if s.isStreaming() {
		s.doQuery.Store(true)
		return
	}
	s.emitQuery()
}

func (s *Session) consumeDoQuery() bool {
	return s.doQuery.CompareAndSwap(true, false)
}

func (s *Session) emitQuery() {
	if !s.cfg.IsCNC {
		_ = s.sendRaw("M105\n")
	}
	if s.cfg.Connection.Kind == config.TransportSerial {
		_ = s.sendRaw("?")
	} else {
		_ = s.sendRaw("get status\n")
	}
}
