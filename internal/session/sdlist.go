package session

import (
	"context"
	"strings"
	"sync"
	"time"
)

const (
	sdListTimeout    = 10 * time.Second
	sdListBeginMark  = "Begin file list"
	sdListEndMark    = "End file list"
)

// ListSDCard runs the bounded SD-card listing transaction described
// in spec.md §4.6: cancel the poll timer, install a reroute sink that
// collects file names between the begin/end markers, send M20, and
// wait up to ten seconds. On timeout it returns an empty list and
// ErrStreamTimeout. The poll timer is restarted on every exit path.
func (s *Session) ListSDCard(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	tr := s.tr
	s.mu.Unlock()
	if tr == nil {
		return nil, ErrNotConnected
	}

	s.cancelPoll()
	defer s.rearmPoll()

	var mu sync.Mutex
	var files []string
	collecting := false
	done := make(chan struct{})
	var closeOnce sync.Once

	s.installReroute(func(line string) {
		mu.Lock()
		defer mu.Unlock()
		switch {
		case strings.Contains(line, sdListBeginMark):
			collecting = true
			files = nil
		case strings.Contains(line, sdListEndMark):
			collecting = false
			closeOnce.Do(func() { close(done) })
		case collecting && line != "ok":
			files = append(files, line)
		}
	})
	defer s.uninstallReroute()

	if err := s.sendRaw("M20\n"); err != nil {
		return nil, err
	}

	select {
	case <-done:
		mu.Lock()
		result := append([]string(nil), files...)
		mu.Unlock()
		return result, nil
	case <-time.After(sdListTimeout):
		return nil, ErrStreamTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
