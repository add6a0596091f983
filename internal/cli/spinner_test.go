package cli

import (
	"bytes"
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"
)

// lockedBuffer is a bytes.Buffer safe for the spinner goroutine.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestActivityCounts(t *testing.T) {
	ctx := context.Background()
	act := &activity{}
	act.OnResolve(ctx, "npm:left@^1.0.0", "npm:left@1.0.0", time.Millisecond, nil)
	act.OnResolve(ctx, "npm:right@^9.0.0", "", time.Millisecond, errors.New("no match"))
	act.OnFetch(ctx, "https://registry.example/left/-/left-1.0.0.tgz#sha512-abc", false, time.Millisecond, nil)
	act.OnFetch(ctx, "https://registry.example/right/-/right-2.0.0.tgz", true, time.Millisecond, nil)
	act.OnLink(ctx, "npm:left@1.0.0", "/store/ab12")

	want := []string{"1 resolved", "1 fetched", "1 reused", "1 linked", "1 failed"}
	if got := act.parts(); !slices.Equal(got, want) {
		t.Errorf("parts = %v, want %v", got, want)
	}
	if got := act.status(); got != "linked npm:left@1.0.0" {
		t.Errorf("status = %q", got)
	}
	if got := (&activity{}).parts(); len(got) != 0 {
		t.Errorf("idle parts = %v", got)
	}
}

func TestShortSource(t *testing.T) {
	tests := []struct{ in, want string }{
		{"https://registry.example/left/-/left-1.0.0.tgz#sha512-abc", "left-1.0.0.tgz"},
		{"git+https://github.com/acme/widget.git#v1.2.0", "widget.git"},
		{"link:../widget", "link:../widget"},
	}
	for _, tt := range tests {
		if got := shortSource(tt.in); got != tt.want {
			t.Errorf("shortSource(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSpinnerShowsInstallEvents(t *testing.T) {
	var out lockedBuffer
	act := &activity{}
	s := newSpinner(context.Background(), &out, "Installing...", act)
	s.Start()
	act.OnResolve(context.Background(), "npm:left@^1.0.0", "npm:left@1.0.0", 0, nil)

	deadline := time.Now().Add(2 * time.Second)
	for !strings.Contains(out.String(), "resolved npm:left@1.0.0") {
		if time.Now().After(deadline) {
			s.Stop()
			t.Fatalf("status never drawn: %q", out.String())
		}
		time.Sleep(20 * time.Millisecond)
	}
	s.Stop()

	got := out.String()
	if !strings.Contains(got, "Installing...") || !strings.Contains(got, "1 resolved") {
		t.Errorf("line = %q", got)
	}
	if !strings.HasSuffix(got, "\r") {
		t.Error("Stop did not clear the line")
	}
}

func TestSpinnerStopsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := newSpinner(ctx, &lockedBuffer{}, "Resolving...", nil)
	s.Start()
	cancel()

	done := make(chan struct{})
	go func() {
		s.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop blocked after cancellation")
	}
}

func TestSpinnerStopIsIdempotent(t *testing.T) {
	s := newSpinner(context.Background(), &lockedBuffer{}, "Linking...", nil)
	s.Stop()

	s = newSpinner(context.Background(), &lockedBuffer{}, "Linking...", nil)
	s.Start()
	s.Stop()
	s.Stop()
}
