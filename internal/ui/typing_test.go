package ui

import (
	"bytes"
	"strings"
	"sync"
	"testing"
	"time"
)

// syncBuffer guards the buffer the indicator goroutine writes into.
type syncBuffer struct {
	mu sync.Mutex
	b  bytes.Buffer
}

func (s *syncBuffer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.Write(p)
}

func (s *syncBuffer) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.String()
}

func TestTypingIndicatorStopsWithinBound(t *testing.T) {
	out := &syncBuffer{}
	ti := StartTypingIndicator(out)

	time.Sleep(250 * time.Millisecond)

	start := time.Now()
	ti.Stop()
	if elapsed := time.Since(start); elapsed > stopJoinTimeout+100*time.Millisecond {
		t.Fatalf("Stop took %v, want bounded by %v", elapsed, stopJoinTimeout)
	}

	if !strings.Contains(out.String(), "Assistant is typing") {
		t.Fatalf("indicator never rendered: %q", out.String())
	}
	// the final write clears the line
	if !strings.HasSuffix(out.String(), "\r\033[K") {
		t.Fatalf("indicator line not cleared: %q", out.String())
	}
}

func TestTypingIndicatorStopIsIdempotent(t *testing.T) {
	ti := StartTypingIndicator(&syncBuffer{})
	ti.Stop()
	ti.Stop() // must not panic or block
}
