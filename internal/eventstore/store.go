package eventstore

import (
	"context"
	"time"
)

// Store defines the interface for persisting and retrieving pipeline events.
type Store interface {
	// Append adds a new event to the store.
	Append(ctx context.Context, jobID, eventType string, payload []byte, metadata map[string]string) error

	// GetByJobID retrieves all events for a specific job.
	GetByJobID(ctx context.Context, jobID string) ([]Event, error)

	// GetRange retrieves events within a time range.
	GetRange(ctx context.Context, start, end time.Time) ([]Event, error)

	// Prune deletes events older than the cutoff and returns the count
	// removed.
	Prune(ctx context.Context, olderThan time.Time) (int64, error)

	// Close closes the store and releases resources.
	Close() error
}
