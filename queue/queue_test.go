package queue

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/deemkeen/vidodon/db"
)

func newTestQueue(t *testing.T) (*Queue, *db.Store) {
	t.Helper()
	store, err := db.NewStore(filepath.Join(t.TempDir(), "queue.db"))
	if err != nil {
		t.Fatalf("Failed to open test store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return New(store), store
}

func TestEnqueueAndProcessSuccess(t *testing.T) {
	q, store := newTestQueue(t)

	var got string
	q.Register("test-job", func(ctx context.Context, payload json.RawMessage) error {
		var s string
		json.Unmarshal(payload, &s)
		got = s
		return nil
	})

	if err := q.Enqueue("test-job", "hello"); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	q.ProcessPending(context.Background())

	if got != "hello" {
		t.Errorf("Handler did not receive payload, got %q", got)
	}

	pending, _ := store.ReadPendingJobs(10)
	if len(pending) != 0 {
		t.Errorf("Successful job should be deleted, %d remain", len(pending))
	}
}

func TestFailedJobIsRetriedWithBackoff(t *testing.T) {
	q, store := newTestQueue(t)

	q.Register("failing-job", func(ctx context.Context, payload json.RawMessage) error {
		return errors.New("remote unreachable")
	})

	if err := q.Enqueue("failing-job", "x"); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	q.ProcessPending(context.Background())

	// The job is still stored but scheduled in the future
	pending, _ := store.ReadPendingJobs(10)
	if len(pending) != 0 {
		t.Errorf("Failed job should not be due yet, got %d", len(pending))
	}

	all, err := store.ReadAllJobs()
	if err != nil {
		t.Fatalf("Failed to read jobs: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("Expected 1 stored job, got %d", len(all))
	}
	if all[0].Attempts != 1 {
		t.Errorf("Expected 1 attempt, got %d", all[0].Attempts)
	}
	if !all[0].NextRetryAt.After(time.Now()) {
		t.Error("Retry time should be in the future")
	}
}

func TestJobWithoutHandlerStaysQueued(t *testing.T) {
	q, store := newTestQueue(t)

	if err := q.Enqueue("unknown-job", "x"); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	q.ProcessPending(context.Background())

	all, err := store.ReadAllJobs()
	if err != nil {
		t.Fatalf("Failed to read jobs: %v", err)
	}
	if len(all) != 1 || all[0].Attempts != 1 {
		t.Errorf("Unhandled job should be retried, got %+v", all)
	}
}

func TestRegisterTwicePanics(t *testing.T) {
	q, _ := newTestQueue(t)
	q.Register("dup", func(ctx context.Context, payload json.RawMessage) error { return nil })

	defer func() {
		if r := recover(); r == nil {
			t.Error("Expected panic on duplicate handler registration")
		}
	}()
	q.Register("dup", func(ctx context.Context, payload json.RawMessage) error { return nil })
}
