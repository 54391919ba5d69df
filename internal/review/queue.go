package review

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/chronopost/chronopost/internal/models"
)

// QueueError signals an illegal state transition. It marks a
// programming or operator error and is never swallowed.
type QueueError struct {
	ID   string
	From models.QueueStatus
	To   models.QueueStatus
}

func (e *QueueError) Error() string {
	return fmt.Sprintf("illegal queue transition %s -> %s for item %s", e.From, e.To, e.ID)
}

// Repository persists queue items.
type Repository interface {
	Insert(ctx context.Context, item *models.QueueItem) error
	Get(ctx context.Context, id string) (*models.QueueItem, error)
	Update(ctx context.Context, item *models.QueueItem) error
	ListByStatus(ctx context.Context, status models.QueueStatus, limit int) ([]models.QueueItem, error)
	DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Queue is the durable human-review state machine for
// medium-confidence drafts.
type Queue struct {
	repo   Repository
	logger *slog.Logger
}

// NewQueue creates a review queue service.
func NewQueue(repo Repository, logger *slog.Logger) *Queue {
	return &Queue{repo: repo, logger: logger}
}

// Enqueue stores a draft with its verification snapshot as pending.
func (q *Queue) Enqueue(ctx context.Context, contentType models.ContentType, content, sourceContext string, verification models.VerificationResult) (*models.QueueItem, error) {
	now := time.Now()
	item := &models.QueueItem{
		ID:           uuid.New().String(),
		ContentType:  contentType,
		Content:      content,
		Context:      sourceContext,
		Verification: verification,
		Status:       models.QueueStatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := q.repo.Insert(ctx, item); err != nil {
		return nil, fmt.Errorf("enqueue item: %w", err)
	}

	q.logger.Info("queued item for review",
		"id", item.ID,
		"content_type", contentType,
		"confidence", verification.Confidence)

	return item, nil
}

// Approve transitions a pending item to approved. A non-empty
// correctedContent substitutes the reviewer's edit for the draft.
func (q *Queue) Approve(ctx context.Context, id, correctedContent string) (*models.QueueItem, error) {
	item, err := q.repo.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load item %s: %w", id, err)
	}

	if !item.Status.CanTransitionTo(models.QueueStatusApproved) {
		return nil, &QueueError{ID: id, From: item.Status, To: models.QueueStatusApproved}
	}

	if correctedContent != "" {
		item.Content = correctedContent
	}
	item.Status = models.QueueStatusApproved
	item.UpdatedAt = time.Now()

	if err := q.repo.Update(ctx, item); err != nil {
		return nil, fmt.Errorf("approve item %s: %w", id, err)
	}

	q.logger.Info("item approved",
		"id", id,
		"edited", correctedContent != "")

	return item, nil
}

// Reject transitions a pending item to rejected.
func (q *Queue) Reject(ctx context.Context, id, reason string) (*models.QueueItem, error) {
	item, err := q.repo.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load item %s: %w", id, err)
	}

	if !item.Status.CanTransitionTo(models.QueueStatusRejected) {
		return nil, &QueueError{ID: id, From: item.Status, To: models.QueueStatusRejected}
	}

	item.Status = models.QueueStatusRejected
	item.RejectReason = reason
	item.UpdatedAt = time.Now()

	if err := q.repo.Update(ctx, item); err != nil {
		return nil, fmt.Errorf("reject item %s: %w", id, err)
	}

	q.logger.Info("item rejected", "id", id, "reason", reason)

	return item, nil
}

// MarkPosted records the published post id. Legal only from approved,
// and only once.
func (q *Queue) MarkPosted(ctx context.Context, id, postID string) (*models.QueueItem, error) {
	item, err := q.repo.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load item %s: %w", id, err)
	}

	if !item.Status.CanTransitionTo(models.QueueStatusPosted) {
		return nil, &QueueError{ID: id, From: item.Status, To: models.QueueStatusPosted}
	}

	now := time.Now()
	item.Status = models.QueueStatusPosted
	item.PostID = postID
	item.PostedAt = &now
	item.UpdatedAt = now

	if err := q.repo.Update(ctx, item); err != nil {
		return nil, fmt.Errorf("mark item %s posted: %w", id, err)
	}

	q.logger.Info("item marked posted", "id", id, "post_id", postID)

	return item, nil
}

// GetPending lists items awaiting review, oldest first.
func (q *Queue) GetPending(ctx context.Context, limit int) ([]models.QueueItem, error) {
	return q.repo.ListByStatus(ctx, models.QueueStatusPending, limit)
}

// GetApprovedReadyToPost lists approved, unposted items oldest first.
func (q *Queue) GetApprovedReadyToPost(ctx context.Context, limit int) ([]models.QueueItem, error) {
	return q.repo.ListByStatus(ctx, models.QueueStatusApproved, limit)
}

// Purge drops posted and rejected items older than retentionDays.
// Unposted approved items are never purged; a reviewer's approval
// must not silently evaporate.
func (q *Queue) Purge(ctx context.Context, retentionDays int) error {
	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	dropped, err := q.repo.DeleteTerminalBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("purge review queue: %w", err)
	}
	if dropped > 0 {
		q.logger.Info("purged review queue", "dropped", dropped)
	}
	return nil
}
