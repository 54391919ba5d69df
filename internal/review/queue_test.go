package review

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/chronopost/chronopost/internal/models"
)

type memoryQueueRepo struct {
	mu    sync.Mutex
	items map[string]models.QueueItem
}

func newMemoryQueueRepo() *memoryQueueRepo {
	return &memoryQueueRepo{items: make(map[string]models.QueueItem)}
}

func (r *memoryQueueRepo) Insert(_ context.Context, item *models.QueueItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[item.ID] = *item
	return nil
}

func (r *memoryQueueRepo) Get(_ context.Context, id string) (*models.QueueItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.items[id]
	if !ok {
		return nil, fmt.Errorf("item %s not found", id)
	}
	copied := item
	return &copied, nil
}

func (r *memoryQueueRepo) Update(_ context.Context, item *models.QueueItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[item.ID]; !ok {
		return fmt.Errorf("item %s not found", item.ID)
	}
	r.items[item.ID] = *item
	return nil
}

func (r *memoryQueueRepo) ListByStatus(_ context.Context, status models.QueueStatus, limit int) ([]models.QueueItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.QueueItem
	for _, item := range r.items {
		if item.Status == status {
			out = append(out, item)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memoryQueueRepo) DeleteTerminalBefore(_ context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	dropped := int64(0)
	for id, item := range r.items {
		terminal := item.Status == models.QueueStatusPosted || item.Status == models.QueueStatusRejected
		if terminal && item.UpdatedAt.Before(cutoff) {
			delete(r.items, id)
			dropped++
		}
	}
	return dropped, nil
}

func newTestQueue() (*Queue, *memoryQueueRepo) {
	repo := newMemoryQueueRepo()
	return NewQueue(repo, slog.New(slog.NewTextHandler(io.Discard, nil))), repo
}

func enqueueOne(t *testing.T, q *Queue) *models.QueueItem {
	t.Helper()
	item, err := q.Enqueue(context.Background(), models.ContentTypeDailyFact,
		"The Battle of Hastings occurred in 1066",
		"Year 1066: Battle of Hastings",
		models.VerificationResult{Confidence: 91, Verdict: models.VerdictAccurate})
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	return item
}

func TestQueue_Lifecycle(t *testing.T) {
	q, _ := newTestQueue()
	ctx := context.Background()

	item := enqueueOne(t, q)
	if item.Status != models.QueueStatusPending {
		t.Fatalf("status = %s, want pending", item.Status)
	}

	approved, err := q.Approve(ctx, item.ID, "")
	if err != nil {
		t.Fatalf("Approve failed: %v", err)
	}
	if approved.Status != models.QueueStatusApproved {
		t.Errorf("status = %s, want approved", approved.Status)
	}

	posted, err := q.MarkPosted(ctx, item.ID, "post-99")
	if err != nil {
		t.Fatalf("MarkPosted failed: %v", err)
	}
	if posted.Status != models.QueueStatusPosted {
		t.Errorf("status = %s, want posted", posted.Status)
	}
	if posted.PostID != "post-99" || posted.PostedAt == nil {
		t.Error("posted item must carry post id and timestamp")
	}
}

func TestQueue_ApproveWithCorrection(t *testing.T) {
	q, _ := newTestQueue()
	item := enqueueOne(t, q)

	approved, err := q.Approve(context.Background(), item.ID, "The reviewer's corrected text about 1066")
	if err != nil {
		t.Fatalf("Approve failed: %v", err)
	}
	if approved.Content != "The reviewer's corrected text about 1066" {
		t.Errorf("content = %q, want the reviewer's edit", approved.Content)
	}
}

func TestQueue_RejectAfterApproveFails(t *testing.T) {
	q, _ := newTestQueue()
	item := enqueueOne(t, q)
	ctx := context.Background()

	if _, err := q.Approve(ctx, item.ID, ""); err != nil {
		t.Fatalf("Approve failed: %v", err)
	}

	_, err := q.Reject(ctx, item.ID, "changed my mind")
	var queueErr *QueueError
	if !errors.As(err, &queueErr) {
		t.Fatalf("expected QueueError, got %v", err)
	}
}

func TestQueue_MarkPostedBeforeApproveFails(t *testing.T) {
	q, _ := newTestQueue()
	item := enqueueOne(t, q)

	_, err := q.MarkPosted(context.Background(), item.ID, "post-1")
	var queueErr *QueueError
	if !errors.As(err, &queueErr) {
		t.Fatalf("expected QueueError, got %v", err)
	}
}

func TestQueue_MarkPostedTwiceFails(t *testing.T) {
	q, _ := newTestQueue()
	item := enqueueOne(t, q)
	ctx := context.Background()

	if _, err := q.Approve(ctx, item.ID, ""); err != nil {
		t.Fatalf("Approve failed: %v", err)
	}
	if _, err := q.MarkPosted(ctx, item.ID, "post-1"); err != nil {
		t.Fatalf("first MarkPosted failed: %v", err)
	}

	_, err := q.MarkPosted(ctx, item.ID, "post-2")
	var queueErr *QueueError
	if !errors.As(err, &queueErr) {
		t.Fatalf("expected QueueError on double post, got %v", err)
	}
}

func TestQueue_GetApprovedReadyToPostOldestFirst(t *testing.T) {
	q, repo := newTestQueue()
	ctx := context.Background()

	older := models.QueueItem{
		ID: "older", Status: models.QueueStatusApproved,
		CreatedAt: time.Now().Add(-2 * time.Hour), UpdatedAt: time.Now(),
	}
	newer := models.QueueItem{
		ID: "newer", Status: models.QueueStatusApproved,
		CreatedAt: time.Now().Add(-1 * time.Hour), UpdatedAt: time.Now(),
	}
	repo.Insert(ctx, &newer)
	repo.Insert(ctx, &older)

	ready, err := q.GetApprovedReadyToPost(ctx, 10)
	if err != nil {
		t.Fatalf("GetApprovedReadyToPost failed: %v", err)
	}
	if len(ready) != 2 {
		t.Fatalf("ready = %d items, want 2", len(ready))
	}
	if ready[0].ID != "older" {
		t.Errorf("first item = %s, want oldest", ready[0].ID)
	}
}

func TestQueue_PurgeSparesUnpostedApproved(t *testing.T) {
	q, repo := newTestQueue()
	ctx := context.Background()

	stale := time.Now().AddDate(0, 0, -120)
	repo.Insert(ctx, &models.QueueItem{
		ID: "old-approved", Status: models.QueueStatusApproved,
		CreatedAt: stale, UpdatedAt: stale,
	})
	repo.Insert(ctx, &models.QueueItem{
		ID: "old-rejected", Status: models.QueueStatusRejected,
		CreatedAt: stale, UpdatedAt: stale,
	})
	postedAt := stale
	repo.Insert(ctx, &models.QueueItem{
		ID: "old-posted", Status: models.QueueStatusPosted,
		CreatedAt: stale, UpdatedAt: stale, PostedAt: &postedAt,
	})

	if err := q.Purge(ctx, 90); err != nil {
		t.Fatalf("Purge failed: %v", err)
	}

	if _, err := repo.Get(ctx, "old-approved"); err != nil {
		t.Error("unposted approved item must never be purged")
	}
	if _, err := repo.Get(ctx, "old-rejected"); err == nil {
		t.Error("stale rejected item should be purged")
	}
	if _, err := repo.Get(ctx, "old-posted"); err == nil {
		t.Error("stale posted item should be purged")
	}
}
