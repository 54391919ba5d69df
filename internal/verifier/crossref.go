package verifier

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"
)

// LookupResult is the outcome of one cross-reference lookup.
type LookupResult struct {
	Found bool
	Title string
	URL   string
}

// CrossReferencer checks individual terms against an external
// reference corpus.
type CrossReferencer interface {
	Lookup(ctx context.Context, term string) (LookupResult, error)
}

// WikipediaClient resolves terms against the Wikipedia REST summary
// endpoint. A 404 means the term has no article, which counts as not
// found rather than an error.
type WikipediaClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewWikipediaClient creates a cross-reference client.
func NewWikipediaClient(baseURL string, timeout time.Duration, logger *slog.Logger) *WikipediaClient {
	return &WikipediaClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

type summaryResponse struct {
	Title       string `json:"title"`
	ContentURLs struct {
		Desktop struct {
			Page string `json:"page"`
		} `json:"desktop"`
	} `json:"content_urls"`
}

// Lookup resolves one term.
func (c *WikipediaClient) Lookup(ctx context.Context, term string) (LookupResult, error) {
	slug := strings.ReplaceAll(strings.TrimSpace(term), " ", "_")
	endpoint := fmt.Sprintf("%s/page/summary/%s", c.baseURL, url.PathEscape(slug))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return LookupResult{}, fmt.Errorf("build lookup request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "chronopost/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return LookupResult{}, fmt.Errorf("cross-reference lookup: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return LookupResult{Found: false}, nil
	default:
		return LookupResult{}, fmt.Errorf("cross-reference lookup returned %d", resp.StatusCode)
	}

	var summary summaryResponse
	if err := json.NewDecoder(resp.Body).Decode(&summary); err != nil {
		return LookupResult{}, fmt.Errorf("decode lookup response: %w", err)
	}

	return LookupResult{
		Found: true,
		Title: summary.Title,
		URL:   summary.ContentURLs.Desktop.Page,
	}, nil
}

var (
	crossRefYearRe = regexp.MustCompile(`\b(1[0-9]{3}|20[0-9]{2})\b`)
	// Proper-noun phrases, allowing a single connector between
	// capitalized words so "Battle of Hastings" stays one term.
	properPhraseRe = regexp.MustCompile(`[A-Z][a-z]+(?:(?: (?:of|the|de))? [A-Z][a-z]+)*(?: \d+)?`)
)

// crossRefTerms extracts the terms worth cross-referencing:
// proper-noun phrases and four-digit years, deduplicated in first
// appearance order.
func crossRefTerms(text string) []string {
	seen := make(map[string]bool)
	var terms []string

	add := func(term string) {
		term = strings.TrimSpace(term)
		if term == "" || seen[term] {
			return
		}
		seen[term] = true
		terms = append(terms, term)
	}

	for _, year := range crossRefYearRe.FindAllString(text, -1) {
		add(year)
	}

	for i, phrase := range properPhraseRe.FindAllStringIndex(text, -1) {
		match := text[phrase[0]:phrase[1]]
		// A lone capitalized word opening the text is usually just the
		// sentence start, not a name.
		if i == 0 && phrase[0] == 0 && !strings.Contains(match, " ") {
			continue
		}
		add(match)
	}

	return terms
}
