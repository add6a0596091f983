package cli

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/charmbracelet/log"
)

func TestNewLoggerLevels(t *testing.T) {
	tests := []struct {
		name  string
		level log.Level
		log   func(*log.Logger)
		want  bool
	}{
		{"info at info", log.InfoLevel, func(l *log.Logger) { l.Info("installed", "package", "npm:left@1.0.0") }, true},
		{"debug at info", log.InfoLevel, func(l *log.Logger) { l.Debug("rebound", "name", "right") }, false},
		{"debug at debug", log.DebugLevel, func(l *log.Logger) { l.Debug("rebound", "name", "right") }, true},
		{"warn at info", log.InfoLevel, func(l *log.Logger) { l.Warn("skipping optional dependency") }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			tt.log(newLogger(&buf, tt.level))
			if got := buf.Len() > 0; got != tt.want {
				t.Errorf("wrote output = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestProgressDone(t *testing.T) {
	var buf bytes.Buffer
	act := &activity{}
	act.OnResolve(context.Background(), "npm:left@^1.0.0", "npm:left@1.0.0", 0, nil)
	act.OnLink(context.Background(), "npm:left@1.0.0", "/tmp/left")

	newProgress(newLogger(&buf, log.InfoLevel)).done("Installed", act.keyvals()...)

	out := buf.String()
	for _, want := range []string{"Installed", "resolved=1", "linked=1", "fetched=0", "duration="} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q: %s", want, out)
		}
	}
}

func TestLoggerFromContext(t *testing.T) {
	if loggerFromContext(context.Background()) != log.Default() {
		t.Error("bare context should yield the default logger")
	}
	var buf bytes.Buffer
	l := newLogger(&buf, log.InfoLevel)
	got := loggerFromContext(withLogger(context.Background(), l))
	if got != l {
		t.Fatal("attached logger not returned")
	}
	got.Info("loaded lockfile")
	if !strings.Contains(buf.String(), "loaded lockfile") {
		t.Errorf("output = %q", buf.String())
	}
}
