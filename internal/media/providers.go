package media

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/chronopost/chronopost/internal/models"
)

// maxDownloadBytes bounds a single image download.
const maxDownloadBytes = 20 << 20

// Provider is one external image source. Search returns candidate
// metadata; Fetch downloads the bytes for a chosen candidate.
type Provider interface {
	Name() string
	Search(ctx context.Context, term string) ([]models.MediaCandidate, error)
	Fetch(ctx context.Context, candidate *models.MediaCandidate) error
}

// WikimediaProvider searches Wikimedia Commons. First choice for
// historical subjects: openly licensed and well described.
type WikimediaProvider struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewWikimediaProvider creates a Commons search provider.
func NewWikimediaProvider(baseURL string, timeout time.Duration, logger *slog.Logger) *WikimediaProvider {
	return &WikimediaProvider{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

func (p *WikimediaProvider) Name() string { return "wikimedia" }

type commonsResponse struct {
	Query struct {
		Pages map[string]struct {
			Title     string `json:"title"`
			ImageInfo []struct {
				URL    string `json:"url"`
				Width  int    `json:"width"`
				Height int    `json:"height"`
				Mime   string `json:"mime"`
			} `json:"imageinfo"`
		} `json:"pages"`
	} `json:"query"`
}

// Search queries the Commons generator API for image files matching
// the term.
func (p *WikimediaProvider) Search(ctx context.Context, term string) ([]models.MediaCandidate, error) {
	params := url.Values{
		"action":    {"query"},
		"format":    {"json"},
		"generator": {"search"},
		"gsrsearch": {fmt.Sprintf("filetype:bitmap %s", term)},
		"gsrlimit":  {"10"},
		"prop":      {"imageinfo"},
		"iiprop":    {"url|size|mime"},
	}

	endpoint := fmt.Sprintf("%s?%s", p.baseURL, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build commons request: %w", err)
	}
	req.Header.Set("User-Agent", "chronopost/1.0")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("commons search: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("commons search returned %d", resp.StatusCode)
	}

	var parsed commonsResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode commons response: %w", err)
	}

	var candidates []models.MediaCandidate
	for _, page := range parsed.Query.Pages {
		if len(page.ImageInfo) == 0 {
			continue
		}
		info := page.ImageInfo[0]
		if info.Mime != "image/jpeg" && info.Mime != "image/png" {
			continue
		}
		candidates = append(candidates, models.MediaCandidate{
			Provider:    p.Name(),
			SourceURL:   info.URL,
			Width:       info.Width,
			Height:      info.Height,
			Description: page.Title,
		})
	}

	p.logger.Debug("commons search complete",
		"term", term,
		"candidates", len(candidates))

	return candidates, nil
}

// Fetch downloads the candidate's bytes.
func (p *WikimediaProvider) Fetch(ctx context.Context, candidate *models.MediaCandidate) error {
	return fetchImage(ctx, p.httpClient, candidate)
}

// OpenverseProvider searches the Openverse aggregated CC image index.
type OpenverseProvider struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewOpenverseProvider creates an Openverse search provider.
func NewOpenverseProvider(baseURL string, timeout time.Duration, logger *slog.Logger) *OpenverseProvider {
	return &OpenverseProvider{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

func (p *OpenverseProvider) Name() string { return "openverse" }

type openverseResponse struct {
	Results []struct {
		Title     string `json:"title"`
		URL       string `json:"url"`
		Width     int    `json:"width"`
		Height    int    `json:"height"`
		ViewCount int    `json:"view_count"`
	} `json:"results"`
}

// Search queries Openverse for commercially-usable images.
func (p *OpenverseProvider) Search(ctx context.Context, term string) ([]models.MediaCandidate, error) {
	params := url.Values{
		"q":         {term},
		"page_size": {"10"},
		"license":   {"cc0,pdm,by"},
	}

	endpoint := fmt.Sprintf("%s/images/?%s", p.baseURL, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build openverse request: %w", err)
	}
	req.Header.Set("User-Agent", "chronopost/1.0")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("openverse search: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("openverse search returned %d", resp.StatusCode)
	}

	var parsed openverseResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode openverse response: %w", err)
	}

	var candidates []models.MediaCandidate
	for _, result := range parsed.Results {
		candidates = append(candidates, models.MediaCandidate{
			Provider:    p.Name(),
			SourceURL:   result.URL,
			Width:       result.Width,
			Height:      result.Height,
			Description: result.Title,
			Popularity:  result.ViewCount,
		})
	}

	p.logger.Debug("openverse search complete",
		"term", term,
		"candidates", len(candidates))

	return candidates, nil
}

// Fetch downloads the candidate's bytes.
func (p *OpenverseProvider) Fetch(ctx context.Context, candidate *models.MediaCandidate) error {
	return fetchImage(ctx, p.httpClient, candidate)
}

// ReferenceProvider serves a small fixed set of guaranteed-available
// archive assets. Last rung of the cascade before giving up.
type ReferenceProvider struct {
	httpClient *http.Client
	assets     []models.MediaCandidate
	logger     *slog.Logger
}

// NewReferenceProvider creates the fixed-asset provider.
func NewReferenceProvider(timeout time.Duration, logger *slog.Logger) *ReferenceProvider {
	return &ReferenceProvider{
		httpClient: &http.Client{Timeout: timeout},
		assets: []models.MediaCandidate{
			{
				Provider:    "reference",
				SourceURL:   "https://upload.wikimedia.org/wikipedia/commons/2/2c/Old_world_map.jpg",
				Width:       2000,
				Height:      1300,
				Description: "antique world map engraving",
			},
			{
				Provider:    "reference",
				SourceURL:   "https://upload.wikimedia.org/wikipedia/commons/5/57/Open_book_on_table.jpg",
				Width:       1800,
				Height:      1200,
				Description: "open antique manuscript book",
			},
			{
				Provider:    "reference",
				SourceURL:   "https://upload.wikimedia.org/wikipedia/commons/9/9e/Hourglass_on_desk.jpg",
				Width:       1600,
				Height:      1067,
				Description: "hourglass still life photograph",
			},
		},
		logger: logger,
	}
}

func (p *ReferenceProvider) Name() string { return "reference" }

// Search ignores the term and returns the fixed set; relevance
// scoring and the diversity gate still apply to them.
func (p *ReferenceProvider) Search(_ context.Context, _ string) ([]models.MediaCandidate, error) {
	assets := make([]models.MediaCandidate, len(p.assets))
	copy(assets, p.assets)
	return assets, nil
}

// Fetch downloads the candidate's bytes.
func (p *ReferenceProvider) Fetch(ctx context.Context, candidate *models.MediaCandidate) error {
	return fetchImage(ctx, p.httpClient, candidate)
}

func fetchImage(ctx context.Context, client *http.Client, candidate *models.MediaCandidate) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, candidate.SourceURL, nil)
	if err != nil {
		return fmt.Errorf("build image request: %w", err)
	}
	req.Header.Set("User-Agent", "chronopost/1.0")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("image fetch returned %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDownloadBytes))
	if err != nil {
		return fmt.Errorf("read image body: %w", err)
	}
	if len(data) == 0 {
		return fmt.Errorf("empty image body")
	}

	candidate.Data = data
	return nil
}
