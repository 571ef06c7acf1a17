package eventstore

import (
	"context"
	"testing"
	"time"
)

func newMemoryStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestAppendAndGetByJobID(t *testing.T) {
	store := newMemoryStore(t)
	ctx := context.Background()

	if err := store.Append(ctx, "job-1", TypeStreamProgress, []byte("Step 1/4"), map[string]string{"repo": "acme/demo"}); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if err := store.Append(ctx, "job-1", TypeStreamProgress, []byte("Step 2/4"), nil); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if err := store.Append(ctx, "job-2", TypeBuildAdmitted, []byte("{}"), nil); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	events, err := store.GetByJobID(ctx, "job-1")
	if err != nil {
		t.Fatalf("GetByJobID failed: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if string(events[0].Payload()) != "Step 1/4" || string(events[1].Payload()) != "Step 2/4" {
		t.Errorf("events out of order: %q, %q", events[0].Payload(), events[1].Payload())
	}
	if events[0].Metadata()["repo"] != "acme/demo" {
		t.Errorf("metadata = %v", events[0].Metadata())
	}
}

func TestGetRange(t *testing.T) {
	store := newMemoryStore(t)
	ctx := context.Background()

	if err := store.Append(ctx, "job-1", TypeStreamProgress, []byte("x"), nil); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	now := time.Now()
	events, err := store.GetRange(ctx, now.Add(-time.Minute), now.Add(time.Minute))
	if err != nil {
		t.Fatalf("GetRange failed: %v", err)
	}
	if len(events) != 1 {
		t.Errorf("got %d events in range, want 1", len(events))
	}

	events, err = store.GetRange(ctx, now.Add(time.Hour), now.Add(2*time.Hour))
	if err != nil {
		t.Fatalf("GetRange failed: %v", err)
	}
	if len(events) != 0 {
		t.Errorf("got %d events in empty range, want 0", len(events))
	}
}

func TestPrune(t *testing.T) {
	store := newMemoryStore(t)
	ctx := context.Background()

	if err := store.Append(ctx, "job-1", TypeStreamProgress, []byte("old"), nil); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	removed, err := store.Prune(ctx, time.Now().Add(time.Minute))
	if err != nil {
		t.Fatalf("Prune failed: %v", err)
	}
	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}

	events, err := store.GetByJobID(ctx, "job-1")
	if err != nil {
		t.Fatalf("GetByJobID failed: %v", err)
	}
	if len(events) != 0 {
		t.Errorf("events remain after prune: %d", len(events))
	}
}
