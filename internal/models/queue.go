package models

import "time"

// QueueStatus is the review state of a queued draft.
type QueueStatus string

const (
	QueueStatusPending  QueueStatus = "pending"
	QueueStatusApproved QueueStatus = "approved"
	QueueStatusRejected QueueStatus = "rejected"
	QueueStatusPosted   QueueStatus = "posted"
)

// CanTransitionTo enforces the one-directional review state machine:
// pending -> approved | rejected, approved -> posted. Everything else
// is an illegal transition.
func (s QueueStatus) CanTransitionTo(next QueueStatus) bool {
	switch s {
	case QueueStatusPending:
		return next == QueueStatusApproved || next == QueueStatusRejected
	case QueueStatusApproved:
		return next == QueueStatusPosted
	default:
		return false
	}
}

// QueueItem is a medium-confidence draft parked for human review.
type QueueItem struct {
	ID           string             `json:"id"`
	ContentType  ContentType        `json:"content_type"`
	Content      string             `json:"content"`
	Context      string             `json:"context"`
	Verification VerificationResult `json:"verification"`
	Status       QueueStatus        `json:"status"`
	RejectReason string             `json:"reject_reason,omitempty"`
	PostID       string             `json:"post_id,omitempty"`
	CreatedAt    time.Time          `json:"created_at"`
	UpdatedAt    time.Time          `json:"updated_at"`
	PostedAt     *time.Time         `json:"posted_at,omitempty"`
}
