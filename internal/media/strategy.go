package media

import (
	"fmt"
	"strings"

	"github.com/chronopost/chronopost/internal/dedup"
	"github.com/chronopost/chronopost/internal/models"
)

// SearchStrategy produces one search term from the content, or ""
// when it has nothing to offer. Strategies run in order until the
// cascade finds an acceptable asset.
type SearchStrategy struct {
	Name string
	Term func(event *models.Event, text string) string
}

// primaryStrategies are tried first, most specific term first.
func primaryStrategies() []SearchStrategy {
	return []SearchStrategy{
		{
			Name: "named_entities",
			Term: func(event *models.Event, text string) string {
				source := text
				if event != nil {
					source = event.Description
				}
				terms := dedup.SalientTerms(source)
				var picked []string
				for _, term := range terms {
					if len(picked) == 3 {
						break
					}
					// Years are handled by the year strategy.
					if isYearTerm(term) {
						continue
					}
					picked = append(picked, term)
				}
				return strings.Join(picked, " ")
			},
		},
		{
			Name: "year_and_keywords",
			Term: func(event *models.Event, text string) string {
				if event == nil || event.Year == 0 {
					return ""
				}
				terms := dedup.SalientTerms(event.Description)
				for _, term := range terms {
					if len(term) > 4 {
						return fmt.Sprintf("%d %s", event.Year, term)
					}
				}
				return fmt.Sprintf("%d", event.Year)
			},
		},
		{
			Name: "stripped_phrase",
			Term: func(event *models.Event, text string) string {
				source := text
				if event != nil {
					source = event.Description
				}
				terms := dedup.SalientTerms(source)
				if len(terms) == 0 {
					return ""
				}
				return strings.Join(terms, " ")
			},
		},
		{
			Name: "raw_prefix",
			Term: func(event *models.Event, text string) string {
				source := text
				if event != nil {
					source = event.Description
				}
				words := strings.Fields(source)
				if len(words) > 6 {
					words = words[:6]
				}
				return strings.Join(words, " ")
			},
		},
	}
}

// fallbackStrategies run after the primaries fail: year, decade, then
// an era-themed generic term.
func fallbackStrategies() []SearchStrategy {
	return []SearchStrategy{
		{
			Name: "year",
			Term: func(event *models.Event, _ string) string {
				if event == nil || event.Year == 0 {
					return ""
				}
				return fmt.Sprintf("%d history", event.Year)
			},
		},
		{
			Name: "decade",
			Term: func(event *models.Event, _ string) string {
				if event == nil || event.Year == 0 {
					return ""
				}
				return fmt.Sprintf("%ds history", (event.Year/10)*10)
			},
		},
		{
			Name: "era_theme",
			Term: func(event *models.Event, _ string) string {
				if event == nil {
					return "historical illustration"
				}
				return eraTheme(event.Year)
			},
		},
	}
}

func isYearTerm(term string) bool {
	if len(term) != 4 {
		return false
	}
	for _, ch := range term {
		if ch < '0' || ch > '9' {
			return false
		}
	}
	return true
}

// eraTheme maps a year onto a generic era search term.
func eraTheme(year int) string {
	switch {
	case year == 0:
		return "historical illustration"
	case year < 500:
		return "ancient history artifact"
	case year < 1500:
		return "medieval manuscript illustration"
	case year < 1800:
		return "early modern engraving"
	case year < 1900:
		return "19th century photograph"
	default:
		return "historical archive photograph"
	}
}
