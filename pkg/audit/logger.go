package audit

import (
	"context"
	"time"
)

// Logger is an audit event sink.
type Logger interface {
	Log(ctx context.Context, event *Event) error
}

// NopLogger discards every event, for deployments without an audit store.
type NopLogger struct{}

func (NopLogger) Log(context.Context, *Event) error { return nil }

// MultiLogger fans an event out to several sinks and returns the first
// error after attempting all of them.
type MultiLogger []Logger

func (m MultiLogger) Log(ctx context.Context, event *Event) error {
	var firstErr error
	for _, l := range m {
		if err := l.Log(ctx, event); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// NewEvent builds an event with the timestamp set.
func NewEvent(eventType EventType, status EventStatus) *Event {
	return &Event{
		Timestamp: time.Now().UTC(),
		Type:      eventType,
		Status:    status,
	}
}
