package storage

import (
	"context"
	"errors"

	"launchpad/internal/model"
)

// Sink receives raw log records and the typed events decoded from them.
type Sink interface {
	PutLogBatch(ctx context.Context, logs []model.LogRecord) error
	PutTypedEvents(ctx context.Context, events []model.TypedEvent) error
}

// Multi fans every batch out to several sinks in order, stopping at the first error.
type Multi []Sink

func (m Multi) PutLogBatch(ctx context.Context, logs []model.LogRecord) error {
	for _, sink := range m {
		if err := sink.PutLogBatch(ctx, logs); err != nil {
			return err
		}
	}
	return nil
}

func (m Multi) PutTypedEvents(ctx context.Context, events []model.TypedEvent) error {
	for _, sink := range m {
		if err := sink.PutTypedEvents(ctx, events); err != nil {
			return err
		}
	}
	return nil
}

// ErrNoSink is returned when a command is configured without any output.
var ErrNoSink = errors.New("no sink configured")
