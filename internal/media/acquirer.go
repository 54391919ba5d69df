package media

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/chronopost/chronopost/internal/config"
	"github.com/chronopost/chronopost/internal/models"
)

// MediaUnavailableError signals that no acceptable asset survived the
// whole cascade. Fatal for media-required content types, soft
// otherwise.
type MediaUnavailableError struct {
	Reason string
}

func (e *MediaUnavailableError) Error() string {
	return fmt.Sprintf("no acceptable media: %s", e.Reason)
}

// LedgerRepository persists the media reuse ledger.
type LedgerRepository interface {
	UsedSince(ctx context.Context, contentHash, sourceURL string, since time.Time) (bool, error)
	Record(ctx context.Context, fp models.MediaFingerprint) error
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// CascadeObserver receives how many search rungs an acquisition tried.
// Satisfied by metrics.Collector; nil disables observation.
type CascadeObserver interface {
	ObserveMediaCascade(depth int)
}

// Acquirer finds, vets and normalizes one image for a piece of
// content.
type Acquirer struct {
	searchProviders []Provider
	reference       Provider
	ledger          LedgerRepository
	observer        CascadeObserver
	cfg             config.MediaConfig
	logger          *slog.Logger
	now             func() time.Time
}

// NewAcquirer creates a media acquirer. searchProviders are the
// external sources in base priority order; reference is the fixed
// last-resort asset set.
func NewAcquirer(searchProviders []Provider, reference Provider, ledger LedgerRepository, observer CascadeObserver, cfg config.MediaConfig, logger *slog.Logger) *Acquirer {
	return &Acquirer{
		searchProviders: searchProviders,
		reference:       reference,
		ledger:          ledger,
		observer:        observer,
		cfg:             cfg,
		logger:          logger,
		now:             time.Now,
	}
}

// Acquire runs the cascade: primary strategies, then year/decade/era
// fallbacks, then the reference assets. Returns MediaUnavailableError
// when nothing survives validation and the diversity gate.
func (a *Acquirer) Acquire(ctx context.Context, event *models.Event, text string) (*models.Media, error) {
	providers := a.rotatedProviders()
	depth := 0

	for _, strategies := range [][]SearchStrategy{primaryStrategies(), fallbackStrategies()} {
		for _, strategy := range strategies {
			term := strategy.Term(event, text)
			if term == "" {
				continue
			}
			depth++

			for _, provider := range providers {
				media, err := a.tryProvider(ctx, provider, term, text)
				if err != nil {
					a.logger.Warn("provider search failed",
						"provider", provider.Name(),
						"strategy", strategy.Name,
						"error", err)
					continue
				}
				if media != nil {
					a.logger.Info("media acquired",
						"provider", provider.Name(),
						"strategy", strategy.Name,
						"source_url", media.SourceURL)
					a.observeDepth(depth)
					return media, nil
				}
			}
		}
	}

	// Last rung: the fixed reference assets still pass the gate so a
	// recently-used fallback image is not repeated either.
	if a.reference != nil {
		depth++
		media, err := a.tryProvider(ctx, a.reference, "", text)
		if err != nil {
			a.logger.Warn("reference assets unavailable", "error", err)
		} else if media != nil {
			a.observeDepth(depth)
			return media, nil
		}
	}

	a.observeDepth(depth)
	return nil, &MediaUnavailableError{Reason: "cascade exhausted"}
}

func (a *Acquirer) observeDepth(depth int) {
	if a.observer != nil {
		a.observer.ObserveMediaCascade(depth)
	}
}

// tryProvider searches one provider with one term and returns the
// best acceptable candidate, or nil when none qualifies.
func (a *Acquirer) tryProvider(ctx context.Context, provider Provider, term, text string) (*models.Media, error) {
	candidates, err := provider.Search(ctx, term)
	if err != nil {
		return nil, err
	}

	for i := range candidates {
		candidates[i].RelevanceScore = ScoreRelevance(candidates[i], text, term)
	}

	// Deterministic order regardless of provider response order: score
	// descending, URL as the tiebreak.
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].RelevanceScore != candidates[j].RelevanceScore {
			return candidates[i].RelevanceScore > candidates[j].RelevanceScore
		}
		return candidates[i].SourceURL < candidates[j].SourceURL
	})

	for i := range candidates {
		candidate := &candidates[i]
		if candidate.RelevanceScore <= 0 {
			continue
		}
		if !ValidateMatch(*candidate, text) {
			continue
		}

		media, ok, err := a.admit(ctx, provider, candidate, term)
		if err != nil {
			a.logger.Warn("candidate admission failed",
				"source_url", candidate.SourceURL,
				"error", err)
			continue
		}
		if ok {
			return media, nil
		}
	}

	return nil, nil
}

// admit runs the diversity gate, downloads, normalizes and records
// the chosen asset. ok is false when the gate rejects the candidate.
// The ledger entry is written at admission, not after the publish: a
// failed publish still starts the asset's cooldown, in exchange for
// overlapping runs never clearing the gate with the same asset.
func (a *Acquirer) admit(ctx context.Context, provider Provider, candidate *models.MediaCandidate, term string) (*models.Media, bool, error) {
	since := a.now().AddDate(0, 0, -a.cfg.CooldownDays)

	// URL check runs before the download; the hash check needs bytes.
	used, err := a.ledger.UsedSince(ctx, "", candidate.SourceURL, since)
	if err != nil {
		return nil, false, fmt.Errorf("ledger url check: %w", err)
	}
	if used {
		a.logger.Debug("candidate in diversity cooldown",
			"source_url", candidate.SourceURL)
		return nil, false, nil
	}

	if len(candidate.Data) == 0 {
		if err := provider.Fetch(ctx, candidate); err != nil {
			return nil, false, err
		}
	}

	hash := contentHash(candidate.Data)
	used, err = a.ledger.UsedSince(ctx, hash, "", since)
	if err != nil {
		return nil, false, fmt.Errorf("ledger hash check: %w", err)
	}
	if used {
		a.logger.Debug("candidate bytes in diversity cooldown",
			"source_url", candidate.SourceURL)
		return nil, false, nil
	}

	preset := PresetFor(candidate.Width, candidate.Height)
	normalized, err := Normalize(candidate.Data, preset, a.cfg.MaxBytes)
	if err != nil {
		return nil, false, fmt.Errorf("normalize: %w", err)
	}

	if err := a.ledger.Record(ctx, models.MediaFingerprint{
		ContentHash: hash,
		SourceURL:   candidate.SourceURL,
		SearchTerm:  term,
		UsedAt:      a.now(),
	}); err != nil {
		return nil, false, fmt.Errorf("ledger record: %w", err)
	}

	return &models.Media{
		Data:        normalized,
		ContentType: "image/jpeg",
		SourceURL:   candidate.SourceURL,
		Provider:    candidate.Provider,
		Description: candidate.Description,
		AltText:     candidate.Description,
		Preset:      preset,
	}, true, nil
}

// Prune drops ledger entries past the retention horizon.
func (a *Acquirer) Prune(ctx context.Context) error {
	cutoff := a.now().AddDate(0, 0, -a.cfg.LedgerMaxAgeDays)
	dropped, err := a.ledger.DeleteBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("prune media ledger: %w", err)
	}
	if dropped > 0 {
		a.logger.Info("pruned media ledger", "dropped", dropped)
	}
	return nil
}

// rotatedProviders shifts the provider priority by day of year so one
// source does not dominate the feed.
func (a *Acquirer) rotatedProviders() []Provider {
	n := len(a.searchProviders)
	if n <= 1 {
		return a.searchProviders
	}
	offset := a.now().YearDay() % n
	rotated := make([]Provider, 0, n)
	rotated = append(rotated, a.searchProviders[offset:]...)
	rotated = append(rotated, a.searchProviders[:offset]...)
	return rotated
}

func contentHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
