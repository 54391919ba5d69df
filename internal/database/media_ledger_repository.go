package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/chronopost/chronopost/internal/models"
)

// MediaLedgerRepository persists the append-only media reuse ledger.
type MediaLedgerRepository struct {
	db *sql.DB
}

// NewMediaLedgerRepository creates a new repository
func NewMediaLedgerRepository(db *sql.DB) *MediaLedgerRepository {
	return &MediaLedgerRepository{db: db}
}

// UsedSince reports whether the content hash or source URL appears in
// the ledger at or after the given time. Either key alone counts; a
// rehosted copy of the same bytes matches on hash even under a new URL.
func (r *MediaLedgerRepository) UsedSince(ctx context.Context, contentHash, sourceURL string, since time.Time) (bool, error) {
	var exists bool
	query := `
		SELECT EXISTS(
			SELECT 1 FROM media_fingerprints
			WHERE used_at >= $3
			  AND (($1 != '' AND content_hash = $1) OR ($2 != '' AND source_url = $2))
		)
	`

	if err := r.db.QueryRowContext(ctx, query, contentHash, sourceURL, since).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check media ledger: %w", err)
	}
	return exists, nil
}

// Record appends a fingerprint for a published asset.
func (r *MediaLedgerRepository) Record(ctx context.Context, fp models.MediaFingerprint) error {
	query := `
		INSERT INTO media_fingerprints (content_hash, source_url, search_term, used_at)
		VALUES ($1, $2, $3, $4)
	`

	_, err := r.db.ExecContext(ctx, query, fp.ContentHash, fp.SourceURL, fp.SearchTerm, fp.UsedAt)
	if err != nil {
		return fmt.Errorf("failed to record media fingerprint: %w", err)
	}
	return nil
}

// DeleteBefore drops ledger entries older than the cutoff.
func (r *MediaLedgerRepository) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM media_fingerprints WHERE used_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune media ledger: %w", err)
	}
	return result.RowsAffected()
}
