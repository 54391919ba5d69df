package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/chronopost/chronopost/internal/models"
	"github.com/chronopost/chronopost/internal/retry"
)

// FetchError signals that the upstream event source produced nothing
// usable. The run cannot proceed without candidates, so callers treat
// it as fatal for the current slot.
type FetchError struct {
	Source string
	Err    error
}

func (e *FetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("event fetch from %s failed: %v", e.Source, e.Err)
	}
	return fmt.Sprintf("event fetch from %s returned no events", e.Source)
}

func (e *FetchError) Unwrap() error { return e.Err }

// SourceClient fetches raw "on this day" events from the Wikimedia
// feed API.
type SourceClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewSourceClient creates an event source client. The timeout applies
// per request.
func NewSourceClient(baseURL string, timeout time.Duration, logger *slog.Logger) *SourceClient {
	return &SourceClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// feedResponse mirrors the Wikimedia onthisday payload. Only the
// fields the scorer consumes are decoded.
type feedResponse struct {
	Events []struct {
		Text string `json:"text"`
		Year int    `json:"year"`
	} `json:"events"`
}

// EventsForDate returns the raw candidate events for a calendar date.
// An empty upstream result is a FetchError.
func (c *SourceClient) EventsForDate(ctx context.Context, month, day int) ([]models.Event, error) {
	url := fmt.Sprintf("%s/%02d/%02d", c.baseURL, month, day)

	var payload feedResponse
	err := retry.Do(ctx, retry.DefaultPolicy(), func() error {
		return c.fetch(ctx, url, &payload)
	})
	if err != nil {
		return nil, &FetchError{Source: c.baseURL, Err: err}
	}

	if len(payload.Events) == 0 {
		return nil, &FetchError{Source: c.baseURL}
	}

	events := make([]models.Event, 0, len(payload.Events))
	for _, raw := range payload.Events {
		events = append(events, models.Event{
			Year:        raw.Year,
			Month:       month,
			Day:         day,
			Description: raw.Text,
		})
	}

	c.logger.Debug("fetched candidate events",
		"month", month,
		"day", day,
		"count", len(events))

	return events, nil
}

func (c *SourceClient) fetch(ctx context.Context, url string, out *feedResponse) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "chronopost/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return retry.Transient(fmt.Errorf("event source request: %w", err))
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return retry.Transient(fmt.Errorf("event source returned %d", resp.StatusCode))
	default:
		return fmt.Errorf("event source returned %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode event feed: %w", err)
	}
	return nil
}
