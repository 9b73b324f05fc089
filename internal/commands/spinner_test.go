package commands

import (
	"bytes"
	"strings"
	"sync"
	"testing"
	"time"
)

// syncBuffer guards a bytes.Buffer shared with the spinner goroutine
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestSpinnerLifecycle_StopWithSuccess(t *testing.T) {
	var out syncBuffer
	s := newSpinner(&out, "Connecting")
	s.start()
	time.Sleep(200 * time.Millisecond)
	s.stopWithSuccess("done")

	got := out.String()
	if !strings.Contains(got, "Connecting") {
		t.Errorf("spinner never rendered its message: %q", got)
	}
	if !strings.Contains(got, "done") {
		t.Errorf("success message missing: %q", got)
	}
}

func TestSpinnerLifecycle_StopWithError(t *testing.T) {
	var out syncBuffer
	s := newSpinner(&out, "Connecting")
	s.start()
	time.Sleep(30 * time.Millisecond)
	s.stopWithError()
	// a second stop must not panic
	s.stopWithError()
}

func TestSpinner_SetMessage(t *testing.T) {
	var out syncBuffer
	s := newSpinner(&out, "Waiting")
	s.start()
	s.setMessage("Reading the docs")
	time.Sleep(200 * time.Millisecond)
	s.stopWithError()

	if !strings.Contains(out.String(), "Reading the docs") {
		t.Errorf("updated message not rendered: %q", out.String())
	}
}

func TestTruncateLine(t *testing.T) {
	tests := []struct {
		in    string
		limit int
		want  string
	}{
		{"short", 10, "short"},
		{"first\nsecond", 10, "first"},
		{"abcdefghij", 5, "abcd…"},
		{"héllo wörld", 6, "héllo…"},
	}
	for _, tt := range tests {
		if got := truncateLine(tt.in, tt.limit); got != tt.want {
			t.Errorf("truncateLine(%q, %d) = %q, want %q", tt.in, tt.limit, got, tt.want)
		}
	}
}
