package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/chronopost/chronopost/internal/models"
)

// QueueRepository persists review queue items. The verification
// snapshot is stored as JSONB alongside the structured columns.
type QueueRepository struct {
	db *sql.DB
}

// NewQueueRepository creates a new repository
func NewQueueRepository(db *sql.DB) *QueueRepository {
	return &QueueRepository{db: db}
}

// Insert stores a new queue item.
func (r *QueueRepository) Insert(ctx context.Context, item *models.QueueItem) error {
	verification, err := json.Marshal(item.Verification)
	if err != nil {
		return fmt.Errorf("failed to marshal verification: %w", err)
	}

	query := `
		INSERT INTO review_queue (
			id, content_type, content, context, verification,
			status, reject_reason, post_id, created_at, updated_at, posted_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err = r.db.ExecContext(ctx, query,
		item.ID,
		item.ContentType,
		item.Content,
		item.Context,
		verification,
		item.Status,
		nullIfEmpty(item.RejectReason),
		nullIfEmpty(item.PostID),
		item.CreatedAt,
		item.UpdatedAt,
		item.PostedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert queue item: %w", err)
	}
	return nil
}

// Get loads one queue item by id.
func (r *QueueRepository) Get(ctx context.Context, id string) (*models.QueueItem, error) {
	query := `
		SELECT id, content_type, content, context, verification,
		       status, reject_reason, post_id, created_at, updated_at, posted_at
		FROM review_queue
		WHERE id = $1
	`

	item, err := scanQueueItem(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("queue item %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get queue item: %w", err)
	}
	return item, nil
}

// Update replaces the mutable fields of an existing item.
func (r *QueueRepository) Update(ctx context.Context, item *models.QueueItem) error {
	verification, err := json.Marshal(item.Verification)
	if err != nil {
		return fmt.Errorf("failed to marshal verification: %w", err)
	}

	query := `
		UPDATE review_queue
		SET content = $2, verification = $3, status = $4,
		    reject_reason = $5, post_id = $6, updated_at = $7, posted_at = $8
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query,
		item.ID,
		item.Content,
		verification,
		item.Status,
		nullIfEmpty(item.RejectReason),
		nullIfEmpty(item.PostID),
		item.UpdatedAt,
		item.PostedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update queue item: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("queue item %s not found", item.ID)
	}
	return nil
}

// ListByStatus returns items in a status, oldest first.
func (r *QueueRepository) ListByStatus(ctx context.Context, status models.QueueStatus, limit int) ([]models.QueueItem, error) {
	query := `
		SELECT id, content_type, content, context, verification,
		       status, reject_reason, post_id, created_at, updated_at, posted_at
		FROM review_queue
		WHERE status = $1
		ORDER BY created_at ASC
	`
	args := []interface{}{status}

	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list queue items: %w", err)
	}
	defer rows.Close()

	var items []models.QueueItem
	for rows.Next() {
		item, err := scanQueueItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan queue item: %w", err)
		}
		items = append(items, *item)
	}

	return items, rows.Err()
}

// DeleteTerminalBefore drops posted and rejected items last touched
// before the cutoff. Pending and approved items are never deleted.
func (r *QueueRepository) DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `
		DELETE FROM review_queue
		WHERE status IN ('posted', 'rejected') AND updated_at < $1
	`

	result, err := r.db.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to purge queue items: %w", err)
	}
	return result.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanQueueItem(row rowScanner) (*models.QueueItem, error) {
	var item models.QueueItem
	var verification []byte
	var rejectReason, postID sql.NullString
	var postedAt sql.NullTime

	err := row.Scan(
		&item.ID,
		&item.ContentType,
		&item.Content,
		&item.Context,
		&verification,
		&item.Status,
		&rejectReason,
		&postID,
		&item.CreatedAt,
		&item.UpdatedAt,
		&postedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(verification, &item.Verification); err != nil {
		return nil, fmt.Errorf("failed to unmarshal verification: %w", err)
	}
	if rejectReason.Valid {
		item.RejectReason = rejectReason.String
	}
	if postID.Valid {
		item.PostID = postID.String
	}
	if postedAt.Valid {
		t := postedAt.Time
		item.PostedAt = &t
	}

	return &item, nil
}

func nullIfEmpty(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
