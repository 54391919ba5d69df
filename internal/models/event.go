package models

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Event represents a candidate historical event for a calendar date.
// Events are created per scheduled run from the event source and are
// never mutated after scoring; the posted flag lives in the dedup store.
type Event struct {
	Year        int    `json:"year"`
	Month       int    `json:"month"`
	Day         int    `json:"day"`
	Description string `json:"description"`
	Score       int    `json:"score"`
}

// fingerprintPrefixLen bounds how much of the normalized description
// participates in the event fingerprint. Long descriptions of the same
// event frequently diverge after the first clause.
const fingerprintPrefixLen = 80

var whitespaceRe = regexp.MustCompile(`\s+`)

// Fingerprint derives a stable identifier from the event date and a
// normalized prefix of its description. The same event fetched on two
// different runs produces the same fingerprint.
func (e Event) Fingerprint() string {
	normalized := strings.ToLower(e.Description)
	normalized = whitespaceRe.ReplaceAllString(normalized, " ")
	normalized = strings.TrimSpace(normalized)
	if len(normalized) > fingerprintPrefixLen {
		normalized = normalized[:fingerprintPrefixLen]
	}

	data := fmt.Sprintf("%d|%d|%d|%s", e.Year, e.Month, e.Day, normalized)
	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:16])
}

// Date returns the calendar date the event belongs to, using the event's
// own year so era bucketing can work from it directly.
func (e Event) Date() time.Time {
	return time.Date(e.Year, time.Month(e.Month), e.Day, 0, 0, 0, 0, time.UTC)
}

// ContentType identifies the kind of post a scheduled run produces.
type ContentType string

const (
	// ContentTypeDailyFact is the main illustrated on-this-day post.
	ContentTypeDailyFact ContentType = "daily_fact"
	// ContentTypeQuickFact is a short text-only post.
	ContentTypeQuickFact ContentType = "quick_fact"
	// ContentTypeStoryThread is a multi-post deep dive on one event.
	ContentTypeStoryThread ContentType = "story_thread"
)

// RequiresEvent reports whether the content type is built from a
// selected historical event (as opposed to free-form prompt copy).
func (t ContentType) RequiresEvent() bool {
	return t == ContentTypeDailyFact || t == ContentTypeStoryThread
}

// RequiresMedia reports whether a missing image is fatal for this type.
func (t ContentType) RequiresMedia() bool {
	return t == ContentTypeDailyFact
}

// Valid reports whether t is a known content type.
func (t ContentType) Valid() bool {
	switch t {
	case ContentTypeDailyFact, ContentTypeQuickFact, ContentTypeStoryThread:
		return true
	}
	return false
}
