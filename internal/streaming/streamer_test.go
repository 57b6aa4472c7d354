package streaming

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/smoothie-ctl/hostcomms/internal/protocol"
)

var errWriteFailed = errors.New("simulated write failure")

type fakeTransport struct {
	mu       sync.Mutex
	lines    []string
	writeErr error
	drainErr error
	onWrite  func()
}

func (f *fakeTransport) Write(p []byte) error {
	if f.writeErr != nil {
		return f.writeErr
	}
	f.mu.Lock()
	f.lines = append(f.lines, string(p))
	f.mu.Unlock()
	if f.onWrite != nil {
		f.onWrite()
	}
	return nil
}

func (f *fakeTransport) Drain(ctx context.Context) error {
	return f.drainErr
}

func (f *fakeTransport) writtenLines() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.lines...)
}

func writeJob(t *testing.T, lines ...string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "job.gcode")
	content := ""
	for _, l := range lines {
		content += l + "\n"
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write job: %v", err)
	}
	return path
}

func TestStreamer_PingPong_WritesAllLinesWithOneAckEach(t *testing.T) {
	ft := &fakeTransport{}
	st := NewStreamer(protocol.AckPingPong, ft, Hooks{})
	ft.onWrite = func() {
		if g := st.Gate(); g != nil {
			g.Release()
		}
	}

	path := writeJob(t, "G1 X1", "G1 Y1", "G1 Z1")

	done := make(chan bool, 1)
	go func() { done <- st.Run(context.Background(), path, nil) }()

	select {
	case ok := <-done:
		if !ok {
			t.Fatal("expected stream to finish successfully")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for stream to finish")
	}

	lines := ft.writtenLines()
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines written, got %d: %v", len(lines), lines)
	}
	if lines[0] != "G1 X1\n" || lines[1] != "G1 Y1\n" || lines[2] != "G1 Z1\n" {
		t.Errorf("unexpected lines written: %v", lines)
	}
}

func TestStreamer_PingPong_BlocksUntilAck(t *testing.T) {
	ft := &fakeTransport{}
	st := NewStreamer(protocol.AckPingPong, ft, Hooks{})

	path := writeJob(t, "G1 X1", "G1 Y1")

	done := make(chan bool, 1)
	go func() { done <- st.Run(context.Background(), path, nil) }()

	// The first line should be written immediately (the gate starts
	// with one permit); the second must wait for an explicit release.
	deadline := time.After(500 * time.Millisecond)
	for {
		if len(ft.writtenLines()) >= 1 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("first line was never written")
		case <-time.After(5 * time.Millisecond):
		}
	}

	time.Sleep(50 * time.Millisecond)
	if n := len(ft.writtenLines()); n != 1 {
		t.Fatalf("expected exactly 1 line written before any ack, got %d", n)
	}

	st.Gate().Release()

	select {
	case ok := <-done:
		if !ok {
			t.Fatal("expected stream to finish successfully")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for second line")
	}
	if n := len(ft.writtenLines()); n != 2 {
		t.Fatalf("expected 2 lines written, got %d", n)
	}
}

func TestStreamer_Sliding_WritesImmediatelyAndWaitsForDrainAtEnd(t *testing.T) {
	ft := &fakeTransport{}
	st := NewStreamer(protocol.AckSliding, ft, Hooks{})
	st.DrainTimeout = 200 * time.Millisecond

	path := writeJob(t, "G1 X1", "G1 Y1", "G1 Z1")

	done := make(chan bool, 1)
	go func() { done <- st.Run(context.Background(), path, nil) }()

	// No acks are ever sent: the sliding terminal wait must time out
	// and report failure rather than hang forever.
	select {
	case ok := <-done:
		if ok {
			t.Fatal("expected failure when outstanding acks never arrive before the deadline")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for sliding drain to give up")
	}
	if n := len(ft.writtenLines()); n != 3 {
		t.Fatalf("sliding mode should write all lines without gating, got %d", n)
	}
}

func TestStreamer_Sliding_SucceedsOnceAcksCatchUp(t *testing.T) {
	ft := &fakeTransport{}
	st := NewStreamer(protocol.AckSliding, ft, Hooks{})

	path := writeJob(t, "G1 X1", "G1 Y1")

	done := make(chan bool, 1)
	go func() { done <- st.Run(context.Background(), path, nil) }()

	time.Sleep(20 * time.Millisecond)
	st.Gate().Release()
	st.Gate().Release()

	select {
	case ok := <-done:
		if !ok {
			t.Fatal("expected success once acks caught up to lines sent")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for stream to finish")
	}
}

func TestStreamer_AbortDuringPauseReturnsPromptly(t *testing.T) {
	ft := &fakeTransport{}
	st := NewStreamer(protocol.AckPingPong, ft, Hooks{})
	st.SetPaused(true)

	path := writeJob(t, "G1 X1")

	done := make(chan bool, 1)
	go func() { done <- st.Run(context.Background(), path, nil) }()

	time.Sleep(10 * time.Millisecond)
	st.Abort()

	select {
	case ok := <-done:
		if ok {
			t.Fatal("expected aborted stream to report failure")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("abort during pause did not unblock Run")
	}
	if n := len(ft.writtenLines()); n != 0 {
		t.Errorf("expected no lines written while paused, got %d", n)
	}
}

func TestStreamer_HostDirective_PauseSetsFlagAndInvokesHook(t *testing.T) {
	ft := &fakeTransport{}
	var promptMsg string
	st := NewStreamer(protocol.AckPingPong, ft, Hooks{
		PausePrompt: func(msg string) { promptMsg = msg },
	})

	st.dispatchDirective("(cmd pause insert filament)")

	if !st.isPaused() {
		t.Error("expected pause directive to set paused flag")
	}
	if promptMsg != "insert filament" {
		t.Errorf("expected prompt message 'insert filament', got %q", promptMsg)
	}
}

func TestStreamer_HostDirective_ImageAndText(t *testing.T) {
	ft := &fakeTransport{}
	var imagePath, displayed string
	st := NewStreamer(protocol.AckPingPong, ft, Hooks{
		ChangeImage: func(p string) { imagePath = p },
		Display:     func(m string) { displayed = m },
	})

	st.dispatchDirective("(cmd image /jobs/preview.png)")
	if imagePath != "/jobs/preview.png" {
		t.Errorf("expected image path set, got %q", imagePath)
	}

	st.dispatchDirective("(cmd text layer 3 of 40)")
	if displayed != "layer 3 of 40" {
		t.Errorf("expected display text set, got %q", displayed)
	}
}

func TestStreamer_SkipsBlankAndCommentLines(t *testing.T) {
	ft := &fakeTransport{}
	st := NewStreamer(protocol.AckPingPong, ft, Hooks{})
	ft.onWrite = func() {
		if g := st.Gate(); g != nil {
			g.Release()
		}
	}

	path := writeJob(t, "G1 X1", "", "; a comment", "G1 Y1")

	done := make(chan bool, 1)
	go func() { done <- st.Run(context.Background(), path, nil) }()

	select {
	case ok := <-done:
		if !ok {
			t.Fatal("expected success")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out")
	}

	lines := ft.writtenLines()
	if len(lines) != 2 {
		t.Fatalf("expected blank line and comment to be skipped, got %d lines: %v", len(lines), lines)
	}
}

func TestStreamer_ProgressFiresEveryTenLines(t *testing.T) {
	ft := &fakeTransport{}
	st := NewStreamer(protocol.AckPingPong, ft, Hooks{})
	ft.onWrite = func() {
		if g := st.Gate(); g != nil {
			g.Release()
		}
	}

	jobLines := make([]string, 25)
	for i := range jobLines {
		jobLines[i] = "G1 X1"
	}
	path := writeJob(t, jobLines...)

	var progressMu sync.Mutex
	var seen []int64
	progress := func(count int64) {
		progressMu.Lock()
		seen = append(seen, count)
		progressMu.Unlock()
	}

	done := make(chan bool, 1)
	go func() { done <- st.Run(context.Background(), path, progress) }()

	select {
	case ok := <-done:
		if !ok {
			t.Fatal("expected success")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out")
	}

	progressMu.Lock()
	defer progressMu.Unlock()
	if len(seen) != 2 {
		t.Fatalf("expected progress to fire twice (at 10 and 20), got %d: %v", len(seen), seen)
	}
	if seen[0] != 10 || seen[1] != 20 {
		t.Errorf("expected progress counts [10 20], got %v", seen)
	}
}

func TestStreamer_WriteFailureEndsStream(t *testing.T) {
	ft := &fakeTransport{writeErr: errWriteFailed}
	st := NewStreamer(protocol.AckPingPong, ft, Hooks{})

	path := writeJob(t, "G1 X1")

	done := make(chan bool, 1)
	go func() { done <- st.Run(context.Background(), path, nil) }()

	select {
	case ok := <-done:
		if ok {
			t.Fatal("expected failure when transport write fails")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out")
	}
}

func TestStreamer_MissingFileFails(t *testing.T) {
	ft := &fakeTransport{}
	st := NewStreamer(protocol.AckPingPong, ft, Hooks{})

	if st.Run(context.Background(), "/nonexistent/job.gcode", nil) {
		t.Error("expected failure for missing file")
	}
}
