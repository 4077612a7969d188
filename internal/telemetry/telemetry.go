// Package telemetry wraps the optional Sentry error-reporting sink used
// alongside structured logging for unexpected conditions (malformed ZIPs,
// recovered subscriber panics). It is a no-op when no DSN is configured.
package telemetry

import (
	"sync"
	"time"

	"github.com/getsentry/sentry-go"
)

const flushTimeout = 2 * time.Second

// Sink reports errors to an external error-tracking service.
type Sink struct {
	enabled bool
}

var (
	mu      sync.Mutex
	current = &Sink{}
)

// Init configures the process-wide Sentry client. Passing an empty dsn
// leaves telemetry disabled; callers still get a usable no-op Sink.
func Init(dsn, environment string) (*Sink, error) {
	mu.Lock()
	defer mu.Unlock()
	if dsn == "" {
		current = &Sink{enabled: false}
		return current, nil
	}
	if err := sentry.Init(sentry.ClientOptions{
		Dsn:         dsn,
		Environment: environment,
	}); err != nil {
		return nil, err
	}
	current = &Sink{enabled: true}
	return current, nil
}

// Default returns the process-wide sink configured by the most recent Init call.
func Default() *Sink {
	mu.Lock()
	defer mu.Unlock()
	return current
}

// CaptureError reports an unexpected error with contextual tags. No-op when disabled.
func (s *Sink) CaptureError(err error, tags map[string]string) {
	if s == nil || !s.enabled || err == nil {
		return
	}
	sentry.WithScope(func(scope *sentry.Scope) {
		for key, value := range tags {
			scope.SetTag(key, value)
		}
		sentry.CaptureException(err)
	})
}

// Recover captures a panic value recovered by the caller and re-arms
// normal control flow; it never re-panics.
func (s *Sink) Recover(recovered any, tags map[string]string) {
	if s == nil || !s.enabled || recovered == nil {
		return
	}
	sentry.WithScope(func(scope *sentry.Scope) {
		for key, value := range tags {
			scope.SetTag(key, value)
		}
		sentry.CurrentHub().Recover(recovered)
	})
}

// Flush blocks until buffered events are sent or the timeout elapses.
func (s *Sink) Flush() {
	if s == nil || !s.enabled {
		return
	}
	sentry.Flush(flushTimeout)
}
