package models

import "time"

// ContentFingerprint records a published text for duplicate checks.
// Written once per published item, read many times.
type ContentFingerprint struct {
	Digest   string    `json:"digest"`
	Excerpt  string    `json:"excerpt"` // truncated published text
	PostID   string    `json:"post_id"`
	PostedAt time.Time `json:"posted_at"`
}

// EventFingerprint records a historical event that has already been
// posted, keyed by Event.Fingerprint(). An event is marked posted at
// most once.
type EventFingerprint struct {
	ID          string    `json:"id"`
	Description string    `json:"description"`
	PostedAt    time.Time `json:"posted_at"`
}

// MediaFingerprint is one row of the append-only media reuse ledger.
// Entries block reuse of the same asset until the diversity cooldown
// elapses; old entries are pruned by age.
type MediaFingerprint struct {
	ContentHash string    `json:"content_hash"`
	SourceURL   string    `json:"source_url"`
	SearchTerm  string    `json:"search_term"`
	UsedAt      time.Time `json:"used_at"`
}
