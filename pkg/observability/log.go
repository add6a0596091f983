package observability

import (
	"context"
	"time"

	"github.com/charmbracelet/log"
)

// LogHooks writes every event to a logger at debug level. The CLI installs
// it when --verbose is set.
type LogHooks struct {
	logger *log.Logger
}

// NewLogHooks returns hooks logging to logger.
func NewLogHooks(logger *log.Logger) *LogHooks {
	return &LogHooks{logger: logger}
}

// All returns a Hooks value using l for every hook set.
func (l *LogHooks) All() Hooks {
	return Hooks{Install: l, Cache: l, HTTP: l}
}

func (l *LogHooks) OnResolve(_ context.Context, target, exact string, d time.Duration, err error) {
	if err != nil {
		l.logger.Debug("resolve failed", "target", target, "error", err)
		return
	}
	l.logger.Debug("resolved", "target", target, "exact", exact, "duration", d.Round(time.Millisecond))
}

func (l *LogHooks) OnFetch(_ context.Context, source string, reused bool, d time.Duration, err error) {
	if err != nil {
		l.logger.Debug("fetch failed", "source", source, "error", err)
		return
	}
	l.logger.Debug("fetched", "source", source, "reused", reused, "duration", d.Round(time.Millisecond))
}

func (l *LogHooks) OnLink(_ context.Context, exact, dir string) {
	l.logger.Debug("linked", "package", exact, "dir", dir)
}

func (l *LogHooks) OnCacheHit(_ context.Context, keyType string) {
	l.logger.Debug("cache hit", "type", keyType)
}

func (l *LogHooks) OnCacheMiss(_ context.Context, keyType string) {
	l.logger.Debug("cache miss", "type", keyType)
}

func (l *LogHooks) OnCacheSet(_ context.Context, keyType string, size int) {
	l.logger.Debug("cache set", "type", keyType, "bytes", size)
}

func (l *LogHooks) OnRequest(_ context.Context, method, host, path string) {
	l.logger.Debug("request", "method", method, "host", host, "path", path)
}

func (l *LogHooks) OnResponse(_ context.Context, method, host, path string, status int, d time.Duration) {
	l.logger.Debug("response", "method", method, "host", host, "path", path, "status", status, "duration", d.Round(time.Millisecond))
}

func (l *LogHooks) OnError(_ context.Context, method, host, path string, err error) {
	l.logger.Debug("request failed", "method", method, "host", host, "path", path, "error", err)
}
