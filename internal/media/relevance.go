package media

import (
	"strings"

	"github.com/chronopost/chronopost/internal/dedup"
	"github.com/chronopost/chronopost/internal/models"
)

// Metadata keyword groups for the hard-reject checks.
var (
	modernImageryTerms = []string{
		"aerial view", "drone", "skyline", "skyscraper", "satellite",
		"modern", "contemporary", "automobile", "highway", "neon",
	}
	historicalSceneTerms = []string{
		"battle", "siege", "medieval", "ancient", "empire", "kingdom",
		"dynasty", "crusade", "colonial", "revolution", "treaty",
	}
	seasonalGenericTerms = []string{
		"christmas", "autumn leaves", "spring flowers", "sunset beach",
		"snowy landscape", "holiday", "festive",
	}
	conflictTerms = []string{
		"battle", "war", "siege", "invasion", "uprising", "revolt",
	}
	historicalMetadataTerms = []string{
		"engraving", "manuscript", "painting", "portrait", "archive",
		"vintage", "antique", "historical", "century", "illustration",
		"lithograph", "fresco", "tapestry", "map",
	}
)

// empireContexts pairs an empire keyword in the text with the
// metadata vocabulary an acceptable image must carry.
var empireContexts = map[string][]string{
	"roman":     {"roman", "rome", "latin", "colosseum", "forum", "legion"},
	"ottoman":   {"ottoman", "turkish", "istanbul", "constantinople", "sultan"},
	"byzantine": {"byzantine", "constantinople", "orthodox", "mosaic"},
	"mongol":    {"mongol", "khan", "steppe", "horde"},
	"aztec":     {"aztec", "mexica", "tenochtitlan", "mesoamerican"},
	"egyptian":  {"egypt", "pharaoh", "nile", "pyramid", "hieroglyph"},
}

// ValidateMatch hard-rejects candidates whose metadata contradicts
// the content: modern or aerial imagery against a historically-scened
// text, generic seasonal stock against conflict themes, and
// empire-context mismatches.
func ValidateMatch(candidate models.MediaCandidate, text string) bool {
	meta := strings.ToLower(candidate.Description)
	lowerText := strings.ToLower(text)

	if containsAnyTerm(lowerText, historicalSceneTerms) && containsAnyTerm(meta, modernImageryTerms) {
		return false
	}

	if containsAnyTerm(lowerText, conflictTerms) && containsAnyTerm(meta, seasonalGenericTerms) {
		return false
	}

	for empire, required := range empireContexts {
		if strings.Contains(lowerText, empire) && !containsAnyTerm(meta, required) {
			return false
		}
	}

	return true
}

// ScoreRelevance computes the additive relevance score for a
// candidate against the content text and the search term used.
func ScoreRelevance(candidate models.MediaCandidate, text, searchTerm string) int {
	meta := strings.ToLower(candidate.Description)
	score := 0

	// Exact-phrase hit on the search term is the strongest signal.
	if searchTerm != "" && strings.Contains(meta, strings.ToLower(searchTerm)) {
		score += 30
	}

	// Key-term overlap between content and metadata.
	for _, term := range dedup.SalientTerms(text) {
		if strings.Contains(meta, term) {
			score += 10
		}
	}

	if containsAnyTerm(meta, historicalMetadataTerms) {
		score += 15
	}

	switch {
	case candidate.Popularity > 10000:
		score += 10
	case candidate.Popularity > 1000:
		score += 5
	}

	if acceptableAspect(candidate.Width, candidate.Height) {
		score += 10
	}

	if !ValidateMatch(candidate, text) {
		score -= 100
	}

	return score
}

// acceptableAspect admits ratios between 9:16 portrait and 2:1
// panorama; anything beyond crops too destructively.
func acceptableAspect(width, height int) bool {
	if width <= 0 || height <= 0 {
		return false
	}
	ratio := float64(width) / float64(height)
	return ratio >= 0.5625 && ratio <= 2.0
}

func containsAnyTerm(text string, terms []string) bool {
	for _, term := range terms {
		if strings.Contains(text, term) {
			return true
		}
	}
	return false
}
