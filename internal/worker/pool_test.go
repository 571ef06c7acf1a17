package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestPoolRunsJobs(t *testing.T) {
	pool := NewPool(2, 8, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pool.Start(ctx)

	var done int32
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		id, err := pool.Enqueue("test", func(context.Context) error {
			defer wg.Done()
			atomic.AddInt32(&done, 1)
			return nil
		})
		if err != nil {
			t.Fatalf("Enqueue failed: %v", err)
		}
		if id == "" {
			t.Fatal("Enqueue returned empty job ID")
		}
	}
	wg.Wait()
	if got := atomic.LoadInt32(&done); got != 5 {
		t.Errorf("done = %d, want 5", got)
	}
	pool.Stop()
}

func TestPoolQueueFull(t *testing.T) {
	// No Start: the queue fills without being drained.
	pool := NewPool(1, 2, nil)

	for i := 0; i < 2; i++ {
		if _, err := pool.Enqueue("fill", func(context.Context) error { return nil }); err != nil {
			t.Fatalf("Enqueue #%d failed: %v", i, err)
		}
	}
	_, err := pool.Enqueue("overflow", func(context.Context) error { return nil })
	if !errors.Is(err, ErrQueueFull) {
		t.Errorf("err = %v, want ErrQueueFull", err)
	}
}

func TestPoolStopDrainsAndRejects(t *testing.T) {
	pool := NewPool(1, 4, nil)
	ctx := context.Background()
	pool.Start(ctx)

	var ran int32
	for i := 0; i < 3; i++ {
		if _, err := pool.Enqueue("drain", func(context.Context) error {
			time.Sleep(5 * time.Millisecond)
			atomic.AddInt32(&ran, 1)
			return nil
		}); err != nil {
			t.Fatalf("Enqueue failed: %v", err)
		}
	}
	pool.Stop()

	if got := atomic.LoadInt32(&ran); got != 3 {
		t.Errorf("ran = %d, want all queued jobs drained before Stop returns", got)
	}
	if _, err := pool.Enqueue("late", func(context.Context) error { return nil }); !errors.Is(err, ErrStopped) {
		t.Errorf("err = %v, want ErrStopped", err)
	}
}

func TestPoolJobFailureDoesNotStopWorkers(t *testing.T) {
	pool := NewPool(1, 4, nil)
	ctx := context.Background()
	pool.Start(ctx)

	var wg sync.WaitGroup
	wg.Add(2)
	pool.Enqueue("failing", func(context.Context) error {
		defer wg.Done()
		return errors.New("boom")
	})
	var survived bool
	pool.Enqueue("next", func(context.Context) error {
		defer wg.Done()
		survived = true
		return nil
	})
	wg.Wait()
	pool.Stop()

	if !survived {
		t.Error("worker must survive a failing job")
	}
}
