package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rockhoundapp/rockhound/internal/model"
)

// insertQueueFind inserts a parent find row so queue rows satisfy the
// foreign key.
func insertQueueFind(t *testing.T, s *Store, id string) {
	t.Helper()
	if err := s.InsertFind(context.Background(), testFind(id, time.Now().UTC().Truncate(time.Second))); err != nil {
		t.Fatalf("InsertFind() failed: %v", err)
	}
}

func TestEnqueueWork_AndGet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	insertQueueFind(t, s, "f1")

	id, err := s.EnqueueWork(ctx, "f1")
	if err != nil {
		t.Fatalf("EnqueueWork() failed: %v", err)
	}

	item, err := s.GetWorkItem(ctx, id)
	if err != nil {
		t.Fatalf("GetWorkItem() failed: %v", err)
	}
	if item.FindID != "f1" {
		t.Errorf("FindID = %q, want f1", item.FindID)
	}
	if item.Status != model.WorkPending {
		t.Errorf("Status = %q, want pending", item.Status)
	}
	if item.Attempts != 0 {
		t.Errorf("Attempts = %d, want 0", item.Attempts)
	}
	if item.LastAttempt != nil || item.Error != nil {
		t.Errorf("fresh item carries last_attempt=%v error=%v, want nil", item.LastAttempt, item.Error)
	}
}

func TestEnqueueWork_ForeignKey(t *testing.T) {
	s := newTestStore(t)

	if _, err := s.EnqueueWork(context.Background(), "no-such-find"); err == nil {
		t.Error("EnqueueWork() for missing find succeeded, want FK error")
	}
}

func TestHasActiveWork(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	insertQueueFind(t, s, "f1")

	active, err := s.HasActiveWork(ctx, "f1")
	if err != nil {
		t.Fatalf("HasActiveWork() failed: %v", err)
	}
	if active {
		t.Error("HasActiveWork() = true for empty queue, want false")
	}

	id, err := s.EnqueueWork(ctx, "f1")
	if err != nil {
		t.Fatal(err)
	}

	active, err = s.HasActiveWork(ctx, "f1")
	if err != nil {
		t.Fatal(err)
	}
	if !active {
		t.Error("HasActiveWork() = false with pending item, want true")
	}

	// Claiming keeps the item active.
	if _, err := s.ClaimWork(ctx, time.Now().Add(time.Second)); err != nil {
		t.Fatal(err)
	}
	active, err = s.HasActiveWork(ctx, "f1")
	if err != nil {
		t.Fatal(err)
	}
	if !active {
		t.Error("HasActiveWork() = false with processing item, want true")
	}

	// Terminal states do not count.
	if err := s.CompleteWork(ctx, id); err != nil {
		t.Fatal(err)
	}
	active, err = s.HasActiveWork(ctx, "f1")
	if err != nil {
		t.Fatal(err)
	}
	if active {
		t.Error("HasActiveWork() = true after completion, want false")
	}
}

func TestClaimWork_OldestFirst(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	insertQueueFind(t, s, "f1")
	insertQueueFind(t, s, "f2")

	if _, err := s.EnqueueWork(ctx, "f1"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.EnqueueWork(ctx, "f2"); err != nil {
		t.Fatal(err)
	}

	item, err := s.ClaimWork(ctx, time.Now().Add(time.Second))
	if err != nil {
		t.Fatalf("ClaimWork() failed: %v", err)
	}
	if item == nil || item.FindID != "f1" {
		t.Fatalf("ClaimWork() = %+v, want oldest item (f1)", item)
	}
	if item.Status != model.WorkProcessing {
		t.Errorf("Status = %q, want processing", item.Status)
	}
	if item.LastAttempt == nil {
		t.Error("LastAttempt not stamped on claim")
	}

	// The claimed item is no longer claimable; next claim takes f2.
	item, err = s.ClaimWork(ctx, time.Now().Add(time.Second))
	if err != nil {
		t.Fatal(err)
	}
	if item == nil || item.FindID != "f2" {
		t.Fatalf("Second ClaimWork() = %+v, want f2", item)
	}
}

func TestClaimWork_EmptyQueue(t *testing.T) {
	s := newTestStore(t)

	item, err := s.ClaimWork(context.Background(), time.Now().Add(time.Second))
	if err != nil {
		t.Fatalf("ClaimWork() failed: %v", err)
	}
	if item != nil {
		t.Errorf("ClaimWork() = %+v, want nil for empty queue", item)
	}
}

func TestClaimWork_RespectsRetryWindow(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	insertQueueFind(t, s, "f1")

	id, err := s.EnqueueWork(ctx, "f1")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.ClaimWork(ctx, time.Now().Add(time.Second)); err != nil {
		t.Fatal(err)
	}
	if err := s.RetryWork(ctx, id, "api timeout"); err != nil {
		t.Fatal(err)
	}

	// Just attempted: not claimable until the window has elapsed.
	item, err := s.ClaimWork(ctx, time.Now().Add(-time.Minute))
	if err != nil {
		t.Fatalf("ClaimWork() failed: %v", err)
	}
	if item != nil {
		t.Errorf("ClaimWork() = %+v, want nil inside the retry window", item)
	}

	item, err = s.ClaimWork(ctx, time.Now().Add(time.Second))
	if err != nil {
		t.Fatal(err)
	}
	if item == nil || item.ID != id {
		t.Errorf("ClaimWork() = %+v, want item %d once the window passed", item, id)
	}
}

func TestRequeueProcessingWork(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	insertQueueFind(t, s, "f1")

	id, err := s.EnqueueWork(ctx, "f1")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.ClaimWork(ctx, time.Now().Add(time.Second)); err != nil {
		t.Fatal(err)
	}

	n, err := s.RequeueProcessingWork(ctx)
	if err != nil {
		t.Fatalf("RequeueProcessingWork() failed: %v", err)
	}
	if n != 1 {
		t.Errorf("RequeueProcessingWork() = %d, want 1", n)
	}

	item, err := s.GetWorkItem(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if item.Status != model.WorkPending {
		t.Errorf("Status = %q, want pending after requeue", item.Status)
	}
	if item.LastAttempt == nil {
		t.Error("LastAttempt was cleared by the requeue, want preserved")
	}

	// Nothing processing: a no-op.
	n, err = s.RequeueProcessingWork(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("RequeueProcessingWork() = %d, want 0", n)
	}
}

func TestRetryWork_IncrementsAttempts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	insertQueueFind(t, s, "f1")

	id, err := s.EnqueueWork(ctx, "f1")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.ClaimWork(ctx, time.Now().Add(time.Second)); err != nil {
		t.Fatal(err)
	}

	if err := s.RetryWork(ctx, id, "api timeout"); err != nil {
		t.Fatalf("RetryWork() failed: %v", err)
	}

	item, err := s.GetWorkItem(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if item.Status != model.WorkPending {
		t.Errorf("Status = %q, want pending after retry", item.Status)
	}
	if item.Attempts != 1 {
		t.Errorf("Attempts = %d, want 1", item.Attempts)
	}
	if item.Error == nil || *item.Error != "api timeout" {
		t.Errorf("Error = %v, want recorded message", item.Error)
	}

	// The retried item is claimable again.
	again, err := s.ClaimWork(ctx, time.Now().Add(time.Second))
	if err != nil {
		t.Fatal(err)
	}
	if again == nil || again.ID != id {
		t.Errorf("ClaimWork() after retry = %+v, want item %d", again, id)
	}
}

func TestFailWork_Terminal(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	insertQueueFind(t, s, "f1")

	id, err := s.EnqueueWork(ctx, "f1")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.ClaimWork(ctx, time.Now().Add(time.Second)); err != nil {
		t.Fatal(err)
	}
	if err := s.FailWork(ctx, id, "bad image"); err != nil {
		t.Fatalf("FailWork() failed: %v", err)
	}

	item, err := s.GetWorkItem(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if item.Status != model.WorkFailed {
		t.Errorf("Status = %q, want failed", item.Status)
	}
	if item.Attempts != 1 {
		t.Errorf("Attempts = %d, want 1", item.Attempts)
	}

	// Failed items never come back out of the queue.
	next, err := s.ClaimWork(ctx, time.Now().Add(time.Second))
	if err != nil {
		t.Fatal(err)
	}
	if next != nil {
		t.Errorf("ClaimWork() = %+v, want nil after terminal failure", next)
	}
}

func TestWork_NotFound(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.GetWorkItem(ctx, 999); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("GetWorkItem() = %v, want ErrNotFound", err)
	}
	if err := s.CompleteWork(ctx, 999); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("CompleteWork() = %v, want ErrNotFound", err)
	}
	if err := s.RetryWork(ctx, 999, "x"); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("RetryWork() = %v, want ErrNotFound", err)
	}
}

func TestListWorkForFind(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	insertQueueFind(t, s, "f1")
	insertQueueFind(t, s, "f2")

	first, err := s.EnqueueWork(ctx, "f1")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.EnqueueWork(ctx, "f2"); err != nil {
		t.Fatal(err)
	}
	second, err := s.EnqueueWork(ctx, "f1")
	if err != nil {
		t.Fatal(err)
	}

	items, err := s.ListWorkForFind(ctx, "f1")
	if err != nil {
		t.Fatalf("ListWorkForFind() failed: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("ListWorkForFind() returned %d items, want 2", len(items))
	}
	if items[0].ID != first || items[1].ID != second {
		t.Errorf("ListWorkForFind() order = [%d %d], want [%d %d]",
			items[0].ID, items[1].ID, first, second)
	}
}

func TestWorkCounts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	insertQueueFind(t, s, "f1")

	first, err := s.EnqueueWork(ctx, "f1")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.EnqueueWork(ctx, "f1"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.ClaimWork(ctx, time.Now().Add(time.Second)); err != nil {
		t.Fatal(err)
	}
	if err := s.CompleteWork(ctx, first); err != nil {
		t.Fatal(err)
	}

	counts, err := s.WorkCounts(ctx)
	if err != nil {
		t.Fatalf("WorkCounts() failed: %v", err)
	}
	if counts[model.WorkCompleted] != 1 {
		t.Errorf("completed = %d, want 1", counts[model.WorkCompleted])
	}
	if counts[model.WorkPending] != 1 {
		t.Errorf("pending = %d, want 1", counts[model.WorkPending])
	}
}

func TestDeleteFind_CascadesQueue(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	insertQueueFind(t, s, "f1")

	id, err := s.EnqueueWork(ctx, "f1")
	if err != nil {
		t.Fatal(err)
	}

	if err := s.DeleteFind(ctx, "f1"); err != nil {
		t.Fatalf("DeleteFind() failed: %v", err)
	}
	if _, err := s.GetWorkItem(ctx, id); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("GetWorkItem() after cascade = %v, want ErrNotFound", err)
	}
}
