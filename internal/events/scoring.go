package events

import (
	"regexp"
	"strings"

	"github.com/chronopost/chronopost/internal/models"
)

// iconicEvent pins a curated, widely-recognized occasion to its year.
// Year 0 matches any year.
type iconicEvent struct {
	keyword string
	year    int
}

// iconicEvents is the curated bonus list. Matching any entry marks the
// event as iconic and grants the large bonus.
var iconicEvents = []iconicEvent{
	{"apollo 11", 1969},
	{"moon landing", 1969},
	{"magna carta", 1215},
	{"battle of hastings", 1066},
	{"printing press", 0},
	{"declaration of independence", 1776},
	{"fall of the berlin wall", 1989},
	{"berlin wall", 1989},
	{"french revolution", 1789},
	{"rosetta stone", 0},
	{"wright brothers", 1903},
	{"first flight", 1903},
	{"titanic", 1912},
	{"pompeii", 79},
	{"vesuvius", 79},
	{"columbus", 1492},
	{"gutenberg", 0},
	{"shakespeare", 0},
	{"eiffel tower", 1889},
	{"penicillin", 1928},
	{"dna", 1953},
	{"everest", 1953},
	{"sputnik", 1957},
	{"telephone", 1876},
	{"light bulb", 1879},
	{"panama canal", 1914},
	{"suez canal", 1869},
	{"transcontinental railroad", 1869},
}

const iconicBonus = 100

// Rule is one entry of the additive scoring table: a named predicate
// over the event and the score delta it contributes.
type Rule struct {
	Name    string
	Applies func(models.Event) bool
	Delta   int
}

// scoringRules is the ordered additive table. Score is the sum of
// deltas of every matching rule; order carries no weight, it only
// fixes iteration for reproducible rule traces.
var scoringRules = []Rule{
	{
		Name:    "iconic",
		Applies: isIconic,
		Delta:   iconicBonus,
	},
	{
		Name: "saturated_world_war",
		Applies: func(e models.Event) bool {
			return e.Year >= 1914 && e.Year <= 1945 &&
				containsAnyTerm(strings.ToLower(e.Description), []string{
					"world war", "wwi", "wwii", "western front", "eastern front",
					"nazi", "axis", "allied forces", "allies",
				})
		},
		Delta: -40,
	},
	{
		Name: "saturated_us_civil_war",
		Applies: func(e models.Event) bool {
			lower := strings.ToLower(e.Description)
			return strings.Contains(lower, "civil war") &&
				containsAnyTerm(lower, []string{"american", "union", "confederate", "u.s."})
		},
		Delta: -30,
	},
	{
		Name: "saturated_generic_battle",
		Applies: func(e models.Event) bool {
			lower := strings.ToLower(e.Description)
			return strings.Contains(lower, "battle") && !isIconic(e)
		},
		Delta: -15,
	},
	{
		Name: "non_western_history",
		Applies: func(e models.Event) bool {
			return containsAnyTerm(strings.ToLower(e.Description), []string{
				"china", "chinese", "japan", "japanese", "india", "persia",
				"ottoman", "africa", "african", "inca", "aztec", "maya",
				"mongol", "korea", "khmer", "mali", "ethiopia", "byzantine",
			})
		},
		Delta: 25,
	},
	{
		Name: "science_and_invention",
		Applies: func(e models.Event) bool {
			return containsAnyTerm(strings.ToLower(e.Description), []string{
				"discover", "invent", "patent", "theory", "vaccine",
				"telescope", "experiment", "element", "physics", "chemistry",
				"astronomy", "medicine", "surgery",
			})
		},
		Delta: 20,
	},
	{
		Name: "culture_and_arts",
		Applies: func(e models.Event) bool {
			return containsAnyTerm(strings.ToLower(e.Description), []string{
				"premiere", "symphony", "opera", "painting", "novel",
				"published", "museum", "theatre", "theater", "composer",
			})
		},
		Delta: 15,
	},
	{
		Name: "exploration",
		Applies: func(e models.Event) bool {
			return containsAnyTerm(strings.ToLower(e.Description), []string{
				"expedition", "voyage", "explorer", "circumnavigat",
				"summit", "pole", "uncharted",
			})
		},
		Delta: 20,
	},
	{
		Name: "era_ancient",
		Applies: func(e models.Event) bool {
			return e.Year != 0 && e.Year < 500
		},
		Delta: 25,
	},
	{
		Name: "era_medieval",
		Applies: func(e models.Event) bool {
			return e.Year >= 500 && e.Year < 1500
		},
		Delta: 20,
	},
	{
		Name: "era_early_modern",
		Applies: func(e models.Event) bool {
			return e.Year >= 1500 && e.Year < 1900
		},
		Delta: 10,
	},
	{
		Name: "specificity",
		Applies: func(e models.Event) bool {
			return properNounCount(e.Description) >= 2 || numberRe.MatchString(e.Description)
		},
		Delta: 10,
	},
}

var numberRe = regexp.MustCompile(`\b\d+\b`)

// isIconic reports whether the event matches the curated list.
func isIconic(e models.Event) bool {
	lower := strings.ToLower(e.Description)
	for _, entry := range iconicEvents {
		if !strings.Contains(lower, entry.keyword) {
			continue
		}
		if entry.year == 0 || entry.year == e.Year {
			return true
		}
	}
	return false
}

// Score computes the additive heuristic score for an event. The
// function is pure: the same event always yields the same score.
func Score(event models.Event) int {
	score := 0
	for _, rule := range scoringRules {
		if rule.Applies(event) {
			score += rule.Delta
		}
	}
	return score
}

// ScoreAll returns a copy of the candidates with scores filled in.
func ScoreAll(candidates []models.Event) []models.Event {
	scored := make([]models.Event, len(candidates))
	for i, event := range candidates {
		event.Score = Score(event)
		scored[i] = event
	}
	return scored
}
