package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/chronopost/chronopost/internal/models"
)

// FingerprintRepository persists content and event fingerprints for
// duplicate detection.
type FingerprintRepository struct {
	db *sql.DB
}

// NewFingerprintRepository creates a new repository
func NewFingerprintRepository(db *sql.DB) *FingerprintRepository {
	return &FingerprintRepository{db: db}
}

// ContentSince returns content fingerprints posted at or after the
// given time, newest first.
func (r *FingerprintRepository) ContentSince(ctx context.Context, since time.Time) ([]models.ContentFingerprint, error) {
	query := `
		SELECT digest, excerpt, post_id, posted_at
		FROM content_fingerprints
		WHERE posted_at >= $1
		ORDER BY posted_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query content fingerprints: %w", err)
	}
	defer rows.Close()

	var fingerprints []models.ContentFingerprint
	for rows.Next() {
		var fp models.ContentFingerprint
		if err := rows.Scan(&fp.Digest, &fp.Excerpt, &fp.PostID, &fp.PostedAt); err != nil {
			return nil, fmt.Errorf("failed to scan content fingerprint: %w", err)
		}
		fingerprints = append(fingerprints, fp)
	}

	return fingerprints, rows.Err()
}

// InsertContent records a published text's fingerprint.
func (r *FingerprintRepository) InsertContent(ctx context.Context, fp models.ContentFingerprint) error {
	query := `
		INSERT INTO content_fingerprints (digest, excerpt, post_id, posted_at)
		VALUES ($1, $2, $3, $4)
	`

	_, err := r.db.ExecContext(ctx, query, fp.Digest, fp.Excerpt, fp.PostID, fp.PostedAt)
	if err != nil {
		return fmt.Errorf("failed to insert content fingerprint: %w", err)
	}
	return nil
}

// HasEvent reports whether the event fingerprint exists.
func (r *FingerprintRepository) HasEvent(ctx context.Context, id string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS(SELECT 1 FROM event_fingerprints WHERE id = $1)`

	if err := r.db.QueryRowContext(ctx, query, id).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check event fingerprint: %w", err)
	}
	return exists, nil
}

// InsertEvent records an event fingerprint.
func (r *FingerprintRepository) InsertEvent(ctx context.Context, fp models.EventFingerprint) error {
	query := `
		INSERT INTO event_fingerprints (id, description, posted_at)
		VALUES ($1, $2, $3)
	`

	_, err := r.db.ExecContext(ctx, query, fp.ID, fp.Description, fp.PostedAt)
	if err != nil {
		return fmt.Errorf("failed to insert event fingerprint: %w", err)
	}
	return nil
}

// DeleteContentBefore drops content fingerprints older than the cutoff.
func (r *FingerprintRepository) DeleteContentBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM content_fingerprints WHERE posted_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete content fingerprints: %w", err)
	}
	return result.RowsAffected()
}

// DeleteEventsBefore drops event fingerprints older than the cutoff.
func (r *FingerprintRepository) DeleteEventsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM event_fingerprints WHERE posted_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete event fingerprints: %w", err)
	}
	return result.RowsAffected()
}
