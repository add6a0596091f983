package cli

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// activity counts the install events of one operation and remembers the
// latest one for the spinner line. It implements observability.InstallHooks.
type activity struct {
	mu       sync.Mutex
	resolved int
	fetched  int
	reused   int
	linked   int
	failed   int
	last     string
}

// OnResolve implements observability.InstallHooks.
func (a *activity) OnResolve(_ context.Context, target, exact string, _ time.Duration, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err != nil {
		a.failed++
		a.last = "no match for " + target
		return
	}
	a.resolved++
	a.last = "resolved " + exact
}

// OnFetch implements observability.InstallHooks.
func (a *activity) OnFetch(_ context.Context, source string, reused bool, _ time.Duration, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	switch {
	case err != nil:
		a.failed++
		a.last = "failed " + shortSource(source)
	case reused:
		a.reused++
	default:
		a.fetched++
		a.last = "fetched " + shortSource(source)
	}
}

// OnLink implements observability.InstallHooks.
func (a *activity) OnLink(_ context.Context, exact, _ string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.linked++
	a.last = "linked " + exact
}

func (a *activity) status() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.last
}

// parts returns the non-zero counters, e.g. ["3 resolved", "1 linked"].
func (a *activity) parts() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []string
	for _, c := range []struct {
		n    int
		verb string
	}{
		{a.resolved, "resolved"},
		{a.fetched, "fetched"},
		{a.reused, "reused"},
		{a.linked, "linked"},
		{a.failed, "failed"},
	} {
		if c.n > 0 {
			out = append(out, fmt.Sprintf("%d %s", c.n, c.verb))
		}
	}
	return out
}

// keyvals returns the counters as structured log fields.
func (a *activity) keyvals() []any {
	a.mu.Lock()
	defer a.mu.Unlock()
	return []any{"resolved", a.resolved, "fetched", a.fetched, "reused", a.reused, "linked", a.linked}
}

// shortSource trims a locator to its last path element and fragment-free
// form, e.g. "https://host/left/-/left-1.0.0.tgz#sha512-…" → "left-1.0.0.tgz".
func shortSource(src string) string {
	src, _, _ = strings.Cut(src, "#")
	if i := strings.Index(src, "://"); i >= 0 {
		return path.Base(src[i+3:])
	}
	return src
}

// Spinner draws an animated status line for a running operation: the
// operation message, the activity counters and the latest install event.
type Spinner struct {
	w        io.Writer
	message  string
	activity *activity
	frames   []string

	ctx     context.Context
	cancel  context.CancelFunc
	stopped chan struct{}
	once    sync.Once
	started bool

	mu    sync.Mutex
	width int
}

// newSpinner creates a spinner writing to w. It stops drawing when ctx is
// cancelled. act may be nil.
func newSpinner(ctx context.Context, w io.Writer, message string, act *activity) *Spinner {
	spinnerCtx, cancel := context.WithCancel(ctx)
	if act == nil {
		act = &activity{}
	}
	return &Spinner{
		w:        w,
		message:  message,
		activity: act,
		frames:   []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"},
		ctx:      spinnerCtx,
		cancel:   cancel,
		stopped:  make(chan struct{}),
	}
}

// Start begins the animation.
func (s *Spinner) Start() {
	s.mu.Lock()
	s.started = true
	s.mu.Unlock()
	go func() {
		defer close(s.stopped)
		ticker := time.NewTicker(80 * time.Millisecond)
		defer ticker.Stop()
		for i := 0; ; i++ {
			select {
			case <-s.ctx.Done():
				s.clearLine()
				return
			case <-ticker.C:
				s.draw(s.frames[i%len(s.frames)])
			}
		}
	}()
}

// line renders the status line for frame.
func (s *Spinner) line(frame string) string {
	line := styleIconSpinner.Render(frame) + " " + StyleDim.Render(s.message)
	if parts := s.activity.parts(); len(parts) > 0 {
		line += " " + StyleNumber.Render(strings.Join(parts, " · "))
	}
	if status := s.activity.status(); status != "" {
		line += " " + StyleDim.Render(status)
	}
	return line
}

func (s *Spinner) draw(frame string) {
	line := s.line(frame)
	s.mu.Lock()
	defer s.mu.Unlock()
	pad := ""
	if w := lipgloss.Width(line); w < s.width {
		pad = strings.Repeat(" ", s.width-w)
	} else {
		s.width = w
	}
	fmt.Fprintf(s.w, "\r%s%s", line, pad)
}

// Stop stops the animation and clears the line. It is safe to call more
// than once, and before Start.
func (s *Spinner) Stop() {
	s.once.Do(func() {
		s.cancel()
		s.mu.Lock()
		started := s.started
		s.mu.Unlock()
		if started {
			<-s.stopped
		}
	})
}

func (s *Spinner) clearLine() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.width == 0 {
		return
	}
	fmt.Fprintf(s.w, "\r%s\r", strings.Repeat(" ", s.width))
	s.width = 0
}
