package streaming

import (
	"os"
	"path/filepath"
	"testing"
)

func TestCountLines(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "job.gcode")
	if err := os.WriteFile(path, []byte("G1 X1\nG1 Y1\nG1 Z1\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	n, err := CountLines(path)
	if err != nil {
		t.Fatalf("CountLines: %v", err)
	}
	if n != 3 {
		t.Errorf("expected 3 lines, got %d", n)
	}
}

func TestCountLines_MissingFile(t *testing.T) {
	if _, err := CountLines("/nonexistent/path.gcode"); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestCountLines_NoTrailingNewline(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "job.gcode")
	if err := os.WriteFile(path, []byte("G1 X1\nG1 Y1"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	n, err := CountLines(path)
	if err != nil {
		t.Fatalf("CountLines: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 lines, got %d", n)
	}
}

func TestCountLines_SkipsBlankAndCommentAndOtherPrefixedLines(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "job.gcode")
	content := "; header comment\n\nG1 X1\nM104 S200\n\n; mid-file comment\nT0\nX1.5 Y2.5\nY3\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	// Only the G1, M104, X1.5 and Y3 lines start with G, M, X or Y; the
	// blank lines, comments and the T0 line must not be counted.
	n, err := CountLines(path)
	if err != nil {
		t.Fatalf("CountLines: %v", err)
	}
	if n != 4 {
		t.Errorf("expected 4 matching lines, got %d", n)
	}
}
