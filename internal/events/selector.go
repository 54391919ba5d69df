package events

import (
	"context"
	"log/slog"
	"math/rand"
	"strings"
	"time"

	"github.com/chronopost/chronopost/internal/models"
)

// tierFloors define the score buckets, highest first. Selection picks
// the highest non-empty tier before sampling.
var tierFloors = []struct {
	name  string
	floor int
}{
	{"iconic", 100},
	{"very_major", 60},
	{"major", 50},
	{"fallback", 30},
}

// CategoryCounter exposes the recent-post category counts the selector
// uses for theme caps. Implemented by the deduplication store.
type CategoryCounter interface {
	RecentCategoryCount(ctx context.Context, windowDays int, keywords []string) (int, error)
}

// CategoryCap limits how often a theme may appear within a window.
// Candidates matching a capped theme are removed before sampling.
type CategoryCap struct {
	Name       string
	Keywords   []string
	MaxPosts   int
	WindowDays int
}

// DefaultCategoryCaps returns the shipped theme caps.
func DefaultCategoryCaps() []CategoryCap {
	return []CategoryCap{
		{
			Name:       "world_war",
			Keywords:   []string{"world war", "wwi", "wwii", "western front", "nazi"},
			MaxPosts:   2,
			WindowDays: 14,
		},
	}
}

// Scorer selects one event for a date: fetch, filter, score, tier, and
// weighted-random draw.
type Scorer struct {
	source  *SourceClient
	counter CategoryCounter
	caps    []CategoryCap
	rng     *rand.Rand
	logger  *slog.Logger
}

// NewScorer creates an event scorer. The counter may be nil, which
// disables category caps.
func NewScorer(source *SourceClient, counter CategoryCounter, caps []CategoryCap, logger *slog.Logger) *Scorer {
	return &Scorer{
		source:  source,
		counter: counter,
		caps:    caps,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
		logger:  logger,
	}
}

// SelectEvent picks one event for the date. Filtering that empties the
// candidate list falls back to the unfiltered list; an empty upstream
// result propagates as a FetchError.
func (s *Scorer) SelectEvent(ctx context.Context, month, day int) (models.Event, error) {
	raw, err := s.source.EventsForDate(ctx, month, day)
	if err != nil {
		return models.Event{}, err
	}

	candidates := Filter(raw)
	if len(candidates) == 0 {
		s.logger.Warn("all candidates filtered out, using unfiltered list",
			"month", month,
			"day", day)
		candidates = raw
	}

	scored := ScoreAll(candidates)
	tier, tierName := s.pickTier(scored)

	capped := s.applyCategoryCaps(ctx, tier)
	if len(capped) == 0 {
		// Caps emptied the tier; the cap is advisory, not a hard rule.
		capped = tier
	}

	chosen := s.weightedDraw(capped)
	s.logger.Info("selected event",
		"year", chosen.Year,
		"score", chosen.Score,
		"tier", tierName,
		"candidates", len(scored))

	return chosen, nil
}

// pickTier buckets candidates and returns the highest non-empty tier.
// When no candidate reaches the lowest floor, everything competes.
func (s *Scorer) pickTier(scored []models.Event) ([]models.Event, string) {
	for _, tier := range tierFloors {
		var bucket []models.Event
		for _, event := range scored {
			if event.Score >= tier.floor {
				bucket = append(bucket, event)
			}
		}
		if len(bucket) > 0 {
			return bucket, tier.name
		}
	}
	return scored, "unranked"
}

// applyCategoryCaps removes candidates matching any theme whose recent
// post count has reached its cap.
func (s *Scorer) applyCategoryCaps(ctx context.Context, candidates []models.Event) []models.Event {
	if s.counter == nil || len(s.caps) == 0 {
		return candidates
	}

	kept := candidates
	for _, rule := range s.caps {
		count, err := s.counter.RecentCategoryCount(ctx, rule.WindowDays, rule.Keywords)
		if err != nil {
			s.logger.Warn("category count unavailable, skipping cap",
				"cap", rule.Name,
				"error", err)
			continue
		}
		if count < rule.MaxPosts {
			continue
		}

		var filtered []models.Event
		for _, event := range kept {
			if !containsAnyTerm(strings.ToLower(event.Description), rule.Keywords) {
				filtered = append(filtered, event)
			}
		}
		kept = filtered
	}
	return kept
}

// weightedDraw samples one candidate with weight max(1, score).
func (s *Scorer) weightedDraw(candidates []models.Event) models.Event {
	if len(candidates) == 1 {
		return candidates[0]
	}

	total := 0
	for _, event := range candidates {
		total += weightOf(event)
	}

	pick := s.rng.Intn(total)
	for _, event := range candidates {
		pick -= weightOf(event)
		if pick < 0 {
			return event
		}
	}
	return candidates[len(candidates)-1]
}

func weightOf(event models.Event) int {
	if event.Score < 1 {
		return 1
	}
	return event.Score
}
