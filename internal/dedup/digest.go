package dedup

import (
	"regexp"
	"sort"
	"strings"
	"unicode"
)

// maxDigestTerms bounds how many salient terms participate in a digest.
const maxDigestTerms = 8

// maxDigestLen truncates digests to a stable comparable length.
const maxDigestLen = 64

var stopwords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true,
	"but": true, "in": true, "on": true, "at": true, "to": true,
	"of": true, "for": true, "with": true, "by": true, "from": true,
	"was": true, "were": true, "is": true, "are": true, "been": true,
	"be": true, "being": true, "had": true, "has": true, "have": true,
	"this": true, "that": true, "these": true, "those": true,
	"it": true, "its": true, "as": true, "into": true, "during": true,
	"after": true, "before": true, "over": true, "under": true,
	"between": true, "which": true, "when": true, "where": true,
	"who": true, "whom": true, "their": true, "they": true, "them": true,
	"his": true, "her": true, "him": true, "she": true, "he": true,
}

var (
	wordRe = regexp.MustCompile(`[A-Za-z0-9']+`)
	yearRe = regexp.MustCompile(`\b(1[0-9]{3}|20[0-9]{2})\b`)
)

// namedEventCategories groups keywords that identify the same kind of
// historical event. Two texts mentioning the same year and sharing a
// category are treated as describing the same occasion even when their
// wording diverges.
var namedEventCategories = map[string][]string{
	"battle":        {"battle", "siege", "invasion", "offensive"},
	"treaty":        {"treaty", "armistice", "accord", "pact"},
	"revolution":    {"revolution", "uprising", "revolt", "rebellion"},
	"coronation":    {"coronation", "crowned", "throne", "accession"},
	"exploration":   {"expedition", "voyage", "landing", "discovered", "discovery"},
	"disaster":      {"earthquake", "eruption", "flood", "fire", "plague"},
	"founding":      {"founded", "established", "independence", "proclaimed"},
	"assassination": {"assassinated", "assassination", "executed", "murdered"},
}

// SalientTerms extracts the comparison vocabulary from a text: proper
// nouns, four-digit years, and non-stopword words longer than three
// characters. Terms are lowercased and deduplicated, preserving first
// appearance order.
func SalientTerms(text string) []string {
	seen := make(map[string]bool)
	var terms []string

	add := func(term string) {
		term = strings.ToLower(term)
		if term == "" || seen[term] {
			return
		}
		seen[term] = true
		terms = append(terms, term)
	}

	for _, year := range yearRe.FindAllString(text, -1) {
		add(year)
	}

	for _, word := range wordRe.FindAllString(text, -1) {
		lower := strings.ToLower(word)
		if stopwords[lower] {
			continue
		}
		if isProperNoun(word) || len(lower) > 3 {
			add(lower)
		}
	}

	return terms
}

// anchorTerms returns only the strongest identifiers (years and proper
// nouns), which form the digest. Weaker vocabulary stays out so two
// phrasings of the same fact converge on the same digest.
func anchorTerms(text string) []string {
	seen := make(map[string]bool)
	var terms []string

	add := func(term string) {
		term = strings.ToLower(term)
		if term == "" || seen[term] {
			return
		}
		seen[term] = true
		terms = append(terms, term)
	}

	for _, year := range yearRe.FindAllString(text, -1) {
		add(year)
	}

	for _, word := range wordRe.FindAllString(text, -1) {
		if isProperNoun(word) && !stopwords[strings.ToLower(word)] {
			add(word)
		}
	}

	return terms
}

// Digest derives a compact comparison key from a text's anchor terms,
// sorted for phrasing independence and truncated for storage.
func Digest(text string) string {
	terms := anchorTerms(text)
	if len(terms) > maxDigestTerms {
		terms = terms[:maxDigestTerms]
	}

	sort.Strings(terms)
	digest := strings.Join(terms, "-")
	if len(digest) > maxDigestLen {
		digest = digest[:maxDigestLen]
	}
	return digest
}

// Similarity computes the overlap coefficient between the salient-term
// sets of two texts: shared terms divided by the smaller set's size.
// The coefficient is preferred over Jaccard here because published
// texts and their duplicates often differ in length.
func Similarity(a, b string) float64 {
	setA := termSet(SalientTerms(a))
	setB := termSet(SalientTerms(b))

	if len(setA) == 0 || len(setB) == 0 {
		return 0.0
	}

	shared := 0
	for term := range setA {
		if setB[term] {
			shared++
		}
	}

	smaller := len(setA)
	if len(setB) < smaller {
		smaller = len(setB)
	}

	return float64(shared) / float64(smaller)
}

// TermOverlap returns the shared-term count and the share of the term
// union covered by the overlap.
func TermOverlap(a, b string) (shared int, unionRatio float64) {
	setA := termSet(SalientTerms(a))
	setB := termSet(SalientTerms(b))

	for term := range setA {
		if setB[term] {
			shared++
		}
	}

	union := len(setA) + len(setB) - shared
	if union == 0 {
		return 0, 0
	}

	return shared, float64(shared) / float64(union)
}

// ExtractYear returns the first four-digit year in the text, or 0.
func ExtractYear(text string) int {
	match := yearRe.FindString(text)
	if match == "" {
		return 0
	}
	year := 0
	for _, ch := range match {
		year = year*10 + int(ch-'0')
	}
	return year
}

// SharedEventCategory reports whether both texts mention keywords from
// the same named-event category.
func SharedEventCategory(a, b string) bool {
	lowerA := strings.ToLower(a)
	lowerB := strings.ToLower(b)

	for _, keywords := range namedEventCategories {
		if containsAny(lowerA, keywords) && containsAny(lowerB, keywords) {
			return true
		}
	}
	return false
}

// digestsMatch reports mutual containment between two digests. Equal
// digests trivially match; truncation makes prefix containment the
// common partial case.
func digestsMatch(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return strings.Contains(a, b) || strings.Contains(b, a)
}

func isProperNoun(word string) bool {
	if len(word) < 2 {
		return false
	}
	runes := []rune(word)
	return unicode.IsUpper(runes[0]) && unicode.IsLower(runes[1])
}

func termSet(terms []string) map[string]bool {
	set := make(map[string]bool, len(terms))
	for _, t := range terms {
		set[t] = true
	}
	return set
}

func containsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}
