package audit

import (
	"context"
	"encoding/json"
	"time"

	"hrvault.org/internal/ids"
	"hrvault.org/internal/obs"
)

// Sink accepts append-only audit events. Implementations must be durable
// and queryable by at least (performed_by, module, time range).
type Sink interface {
	Append(ctx context.Context, event *Event) error
}

// Recorder enriches and appends audit events. Record never surfaces an
// error to the caller: a sink failure must not block the primary operation,
// it is counted and logged instead.
type Recorder struct {
	sink Sink
	now  func() time.Time
}

// RecorderOption configures a Recorder.
type RecorderOption func(*Recorder)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) RecorderOption {
	return func(r *Recorder) {
		if fn != nil {
			r.now = fn
		}
	}
}

// NewRecorder constructs a Recorder over the given sink.
func NewRecorder(sink Sink, opts ...RecorderOption) *Recorder {
	r := &Recorder{sink: sink, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Record fills in id, timestamp, and request context, then appends the
// event. Every authorization outcome and business-significant action goes
// through here exactly once.
func (r *Recorder) Record(ctx context.Context, event Event) {
	now := r.now().UTC()
	if event.ID == "" {
		event.ID = ids.NewAt(now)
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = now
	}
	if event.Sensitivity == "" {
		event.Sensitivity = NonSensitive
	}
	if meta, ok := RequestMetaFromContext(ctx); ok {
		if event.RequestID == "" {
			event.RequestID = meta.RequestID
		}
		if event.IP == "" {
			event.IP = meta.IP
		}
		if event.UserAgent == "" {
			event.UserAgent = meta.UserAgent
		}
	}

	if err := r.sink.Append(ctx, &event); err != nil {
		obs.ObserveAuditSinkFailure()
		obs.LogRequest(map[string]any{
			"ts":       now.Format(time.RFC3339Nano),
			"level":    "error",
			"msg":      "audit_append_failed",
			"activity": event.Activity,
			"error":    err.Error(),
		})
	}
}

// LogSink writes events as JSON lines through the shared structured logger.
// It backs local development and doubles as a mirror sink in production.
type LogSink struct{}

func (LogSink) Append(ctx context.Context, event *Event) error {
	data, err := json.Marshal(map[string]any{
		"ts":    event.OccurredAt.Format(time.RFC3339Nano),
		"type":  "audit",
		"event": event,
	})
	if err != nil {
		return err
	}
	obs.Logger().Println(string(data))
	return nil
}

// MultiSink appends to every sink, returning the first error after trying
// all of them.
type MultiSink []Sink

func (m MultiSink) Append(ctx context.Context, event *Event) error {
	var firstErr error
	for _, sink := range m {
		if err := sink.Append(ctx, event); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
