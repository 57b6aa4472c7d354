package transport

import "testing"

// Compile-time assertions that both concrete transports satisfy the
// interface spec.md §4.1 describes.
var (
	_ Transport = (*NetworkTransport)(nil)
	_ Transport = (*SerialTransport)(nil)
)

func TestErrConnectionLost_IsDistinctSentinel(t *testing.T) {
	if ErrConnectionLost == nil {
		t.Fatal("expected a non-nil sentinel error")
	}
	if ErrConnectionLost.Error() == "" {
		t.Error("expected a descriptive message")
	}
}
