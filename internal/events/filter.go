package events

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/chronopost/chronopost/internal/models"
)

// minDescriptionLen rejects fragments too short to make a post from.
const minDescriptionLen = 40

// blockedTopics are excluded outright regardless of score. Sensitive
// or graphic subjects that do not belong in a daily-facts feed.
var blockedTopics = []string{
	"massacre", "genocide", "holocaust", "lynching",
	"terrorist", "terrorism", "mass shooting", "suicide",
	"rape", "ethnic cleansing", "concentration camp",
}

// namedEventKeywords mark an entry as describing a specific occasion
// rather than a vague development.
var namedEventKeywords = []string{
	"battle", "treaty", "coronation", "eruption", "earthquake",
	"expedition", "voyage", "founded", "signed", "crowned",
	"declared", "launched", "landed", "discovered", "patented",
	"premiered", "published", "abolished", "independence",
	"revolution", "armistice", "assassinated", "inaugurated",
}

// namedPlaces is a coarse list of geographic anchors. An entry that
// names a place is specific enough to post about.
var namedPlaces = []string{
	"england", "france", "rome", "egypt", "china", "japan", "india",
	"greece", "persia", "russia", "spain", "portugal", "mexico",
	"america", "africa", "europe", "london", "paris", "constantinople",
	"jerusalem", "vienna", "moscow", "athens", "baghdad", "kyoto",
	"ocean", "atlantic", "pacific", "mediterranean",
}

// vaguePatterns match entries that describe gradual or unbounded
// developments with no concrete occasion to anchor a post on.
var vaguePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^(forces|troops|fighting|tensions|unrest|riots)\b`),
	regexp.MustCompile(`(?i)\b(continues?|continued|ongoing|begins to|started to)\b`),
	regexp.MustCompile(`(?i)\b(various|several|some|numerous) (battles|clashes|skirmishes|incidents)\b`),
	regexp.MustCompile(`(?i)\b(situation|conditions) (worsen|deteriorate|improve)`),
}

// Filter removes events unsuitable for posting: too short, touching
// blocked topics, or too broad to anchor a specific fact. An empty
// post-filter result is handled by the caller, which falls back to the
// unfiltered list.
func Filter(candidates []models.Event) []models.Event {
	var kept []models.Event
	for _, event := range candidates {
		if Suitable(event) {
			kept = append(kept, event)
		}
	}
	return kept
}

// Suitable reports whether a single event passes every filter.
func Suitable(event models.Event) bool {
	desc := event.Description
	if len(desc) < minDescriptionLen {
		return false
	}

	lower := strings.ToLower(desc)
	for _, topic := range blockedTopics {
		if strings.Contains(lower, topic) {
			return false
		}
	}

	if tooBroad(desc, lower) {
		return false
	}

	return true
}

// tooBroad rejects entries that lack any concrete anchor: no
// proper-noun pair, no named place, no named-event keyword, or a
// vague-development phrasing.
func tooBroad(desc, lower string) bool {
	for _, pattern := range vaguePatterns {
		if pattern.MatchString(desc) {
			return true
		}
	}

	if properNounCount(desc) >= 2 {
		return false
	}
	if containsAnyTerm(lower, namedPlaces) {
		return false
	}
	if containsAnyTerm(lower, namedEventKeywords) {
		return false
	}

	return true
}

// properNounCount counts capitalized words past the sentence start.
func properNounCount(desc string) int {
	words := strings.Fields(desc)
	count := 0
	for i, word := range words {
		if i == 0 {
			continue
		}
		runes := []rune(word)
		if len(runes) >= 2 && unicode.IsUpper(runes[0]) && unicode.IsLower(runes[1]) {
			count++
		}
	}
	return count
}

func containsAnyTerm(text string, terms []string) bool {
	for _, term := range terms {
		if strings.Contains(text, term) {
			return true
		}
	}
	return false
}
