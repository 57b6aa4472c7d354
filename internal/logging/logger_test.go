package logging

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewLogger_FormatSelection(t *testing.T) {
	cases := []struct {
		format string
		want   string // a substring only that format's encoding would produce
	}{
		{"text", "level=INFO"},
		{"json", `"level":"INFO"`},
		{"", `"level":"INFO"`},     // empty falls back to json
		{"xml", `"level":"INFO"`}, // unrecognized falls back to json
	}

	for _, tc := range cases {
		dir := t.TempDir()
		path := filepath.Join(dir, "out.log")
		logger, closer := NewLogger("info", tc.format, path, "")
		logger.Info("probe")
		closer.Close()

		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("format %q: reading log file: %v", tc.format, err)
		}
		if !strings.Contains(string(data), tc.want) {
			t.Errorf("format %q: expected output to contain %q, got: %s", tc.format, tc.want, data)
		}
	}
}

func TestNewLogger_LevelFiltering(t *testing.T) {
	levels := map[string]bool{
		"debug":   true,
		"info":    false,
		"warn":    false,
		"warning": false,
		"error":   false,
		"bogus":   false, // unrecognized falls back to info, so debug records are dropped
	}

	for name, expectDebugVisible := range levels {
		var buf bytes.Buffer

		// NewLogger always writes to stdout; exercise the level cutoff
		// it applies by building the same handler against buf instead
		// of capturing the process's real stdout.
		h := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: resolveLevel(name)})
		l := slog.New(h)
		l.Debug("debug line")

		gotVisible := buf.Len() > 0
		if gotVisible != expectDebugVisible {
			t.Errorf("level %q: expected debug-visible=%v, got %v", name, expectDebugVisible, gotVisible)
		}
	}
}

func TestNewLogger_ComponentAttribute(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.log")

	logger, closer := NewLogger("info", "json", path, "session")
	logger.Info("connected")
	closer.Close()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}
	if !strings.Contains(string(data), `"component":"session"`) {
		t.Errorf("expected component attribute in output, got: %s", data)
	}
}

func TestNewLogger_NoComponentOmitsAttribute(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.log")

	logger, closer := NewLogger("info", "json", path, "")
	logger.Info("connected")
	closer.Close()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}
	if strings.Contains(string(data), `"component"`) {
		t.Errorf("expected no component attribute, got: %s", data)
	}
}

func TestNewLogger_InvalidFilePathFallsBackToStdout(t *testing.T) {
	// The directory does not exist, so the file open fails and NewLogger
	// must still hand back a working logger rather than erroring out.
	logger, closer := NewLogger("info", "json", "/nonexistent/dir/out.log", "")
	defer closer.Close()

	if logger == nil {
		t.Fatal("expected a non-nil logger even when the file path is unusable")
	}
	logger.Info("still works")
}

func TestNewLogger_EmptyFilePathHasNoOpCloser(t *testing.T) {
	_, closer := NewLogger("info", "json", "", "")
	if err := closer.Close(); err != nil {
		t.Errorf("expected a no-op closer when filePath is empty, got error: %v", err)
	}
}
