package dedup

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/chronopost/chronopost/internal/models"
)

// excerptLen bounds the stored slice of published text. Duplicate
// comparison runs against the excerpt, so it must cover the part of a
// post where the factual claim lives.
const excerptLen = 280

// DuplicateError signals a fingerprint collision. Callers treat it as
// a cue to retry with an alternate candidate, not as a hard failure.
type DuplicateError struct {
	Kind   string // "content" or "event"
	Digest string
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("duplicate %s fingerprint: %s", e.Kind, e.Digest)
}

// FingerprintRepository is the persistence surface for published
// fingerprints.
type FingerprintRepository interface {
	ContentSince(ctx context.Context, since time.Time) ([]models.ContentFingerprint, error)
	InsertContent(ctx context.Context, fp models.ContentFingerprint) error
	HasEvent(ctx context.Context, id string) (bool, error)
	InsertEvent(ctx context.Context, fp models.EventFingerprint) error
	DeleteContentBefore(ctx context.Context, cutoff time.Time) (int64, error)
	DeleteEventsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Config holds the duplicate-detection thresholds. They are heuristic
// and deliberately tunable; see the shipped defaults in the config
// package.
type Config struct {
	SimilarityThreshold float64
	TermOverlapRatio    float64
	TermOverlapMin      int
	RetentionDays       int
}

// Store wraps the fingerprint repository with the duplicate heuristics
// and the single-writer critical section the publish path requires.
type Store struct {
	mu     sync.Mutex
	repo   FingerprintRepository
	cfg    Config
	logger *slog.Logger
}

// NewStore creates a deduplication store.
func NewStore(repo FingerprintRepository, cfg Config, logger *slog.Logger) *Store {
	return &Store{
		repo:   repo,
		cfg:    cfg,
		logger: logger,
	}
}

// IsContentDuplicate reports whether text collides with anything
// published within the window.
func (s *Store) IsContentDuplicate(ctx context.Context, text string, windowDays int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isContentDuplicateLocked(ctx, text, windowDays)
}

// MarkContentPosted records a published text's fingerprint.
func (s *Store) MarkContentPosted(ctx context.Context, text, postID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.markContentLocked(ctx, text, postID)
}

// IsEventPosted reports whether the event's fingerprint was already
// used for a post.
func (s *Store) IsEventPosted(ctx context.Context, event models.Event) (bool, error) {
	return s.repo.HasEvent(ctx, event.Fingerprint())
}

// MarkEventPosted records the event fingerprint. An event is marked at
// most once; repeats are rejected.
func (s *Store) MarkEventPosted(ctx context.Context, event models.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.markEventLocked(ctx, event)
}

// PublishExclusive runs the duplicate check, the publish callback, and
// the fingerprint writes as one critical section. Two overlapping runs
// cannot both observe "not duplicate" and both publish the same fact.
// The event may be nil for content types without one.
func (s *Store) PublishExclusive(ctx context.Context, text string, event *models.Event, windowDays int, publish func(context.Context) (string, error)) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	dup, err := s.isContentDuplicateLocked(ctx, text, windowDays)
	if err != nil {
		return "", fmt.Errorf("content duplicate check: %w", err)
	}
	if dup {
		return "", &DuplicateError{Kind: "content", Digest: Digest(text)}
	}

	if event != nil {
		posted, err := s.repo.HasEvent(ctx, event.Fingerprint())
		if err != nil {
			return "", fmt.Errorf("event duplicate check: %w", err)
		}
		if posted {
			return "", &DuplicateError{Kind: "event", Digest: event.Fingerprint()}
		}
	}

	postID, err := publish(ctx)
	if err != nil {
		return "", err
	}

	if err := s.markContentLocked(ctx, text, postID); err != nil {
		s.logger.Error("published but failed to record content fingerprint",
			"post_id", postID,
			"error", err)
		return postID, err
	}

	if event != nil {
		if err := s.markEventLocked(ctx, *event); err != nil {
			s.logger.Error("published but failed to record event fingerprint",
				"post_id", postID,
				"error", err)
			return postID, err
		}
	}

	return postID, nil
}

// RecentCategoryCount counts posts within the window whose excerpt
// mentions any of the given keywords. The event selector uses this for
// theme caps (e.g. limiting world-war content).
func (s *Store) RecentCategoryCount(ctx context.Context, windowDays int, keywords []string) (int, error) {
	since := time.Now().AddDate(0, 0, -windowDays)
	records, err := s.repo.ContentSince(ctx, since)
	if err != nil {
		return 0, fmt.Errorf("load recent fingerprints: %w", err)
	}

	count := 0
	for _, record := range records {
		lower := strings.ToLower(record.Excerpt)
		if containsAny(lower, keywords) {
			count++
		}
	}
	return count, nil
}

// Compact drops fingerprints older than the retention horizon. The
// horizon always covers the longest configured duplicate window.
func (s *Store) Compact(ctx context.Context) error {
	cutoff := time.Now().AddDate(0, 0, -s.cfg.RetentionDays)

	contentDropped, err := s.repo.DeleteContentBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("compact content fingerprints: %w", err)
	}

	eventsDropped, err := s.repo.DeleteEventsBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("compact event fingerprints: %w", err)
	}

	if contentDropped > 0 || eventsDropped > 0 {
		s.logger.Info("compacted fingerprint store",
			"content_dropped", contentDropped,
			"events_dropped", eventsDropped,
			"cutoff", cutoff.Format(time.RFC3339))
	}

	return nil
}

func (s *Store) isContentDuplicateLocked(ctx context.Context, text string, windowDays int) (bool, error) {
	since := time.Now().AddDate(0, 0, -windowDays)
	records, err := s.repo.ContentSince(ctx, since)
	if err != nil {
		return false, fmt.Errorf("load recent fingerprints: %w", err)
	}

	digest := Digest(text)
	year := ExtractYear(text)

	for _, record := range records {
		if s.matches(text, digest, year, record) {
			s.logger.Debug("duplicate content detected",
				"digest", digest,
				"matched_post", record.PostID)
			return true, nil
		}
	}

	return false, nil
}

// matches applies the three duplicate heuristics against one stored
// fingerprint.
func (s *Store) matches(text, digest string, year int, record models.ContentFingerprint) bool {
	// Mutually-containing digests backed by high token overlap.
	if digestsMatch(digest, record.Digest) && Similarity(text, record.Excerpt) > s.cfg.SimilarityThreshold {
		return true
	}

	// Strong key-term overlap even when digests diverge.
	shared, unionRatio := TermOverlap(text, record.Excerpt)
	if shared >= s.cfg.TermOverlapMin && unionRatio > s.cfg.TermOverlapRatio {
		return true
	}

	// Same year, same named-event category.
	if year != 0 && year == ExtractYear(record.Excerpt) && SharedEventCategory(text, record.Excerpt) {
		return true
	}

	return false
}

func (s *Store) markContentLocked(ctx context.Context, text, postID string) error {
	excerpt := text
	if len(excerpt) > excerptLen {
		excerpt = excerpt[:excerptLen]
	}

	fp := models.ContentFingerprint{
		Digest:   Digest(text),
		Excerpt:  excerpt,
		PostID:   postID,
		PostedAt: time.Now(),
	}

	if err := s.repo.InsertContent(ctx, fp); err != nil {
		return fmt.Errorf("insert content fingerprint: %w", err)
	}
	return nil
}

func (s *Store) markEventLocked(ctx context.Context, event models.Event) error {
	id := event.Fingerprint()

	posted, err := s.repo.HasEvent(ctx, id)
	if err != nil {
		return fmt.Errorf("check event fingerprint: %w", err)
	}
	if posted {
		return &DuplicateError{Kind: "event", Digest: id}
	}

	fp := models.EventFingerprint{
		ID:          id,
		Description: event.Description,
		PostedAt:    time.Now(),
	}

	if err := s.repo.InsertEvent(ctx, fp); err != nil {
		return fmt.Errorf("insert event fingerprint: %w", err)
	}
	return nil
}
