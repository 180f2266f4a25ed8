package storage

import (
	"context"

	"tokenpools/internal/model"
)

// EventSink is a destination for emitted events.
type EventSink interface {
	PutEventBatch(ctx context.Context, events []model.Event) error
}

// SnapshotStore persists the latest registry snapshot.
type SnapshotStore interface {
	SaveSnapshot(ctx context.Context, snap model.Snapshot) error
	LoadSnapshot(ctx context.Context) (model.Snapshot, bool, error)
}

// Multi fans a batch out to every sink in order and stops at the first error.
type Multi []EventSink

// PutEventBatch writes events to each sink in order and stops at the first error.
func (m Multi) PutEventBatch(ctx context.Context, events []model.Event) error {
	for _, sink := range m {
		if err := sink.PutEventBatch(ctx, events); err != nil {
			return err
		}
	}
	return nil
}
