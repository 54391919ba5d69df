package media

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/chronopost/chronopost/internal/config"
	"github.com/chronopost/chronopost/internal/models"
)

type fakeProvider struct {
	name       string
	candidates []models.MediaCandidate
	searchErr  error
	fetchData  []byte
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Search(_ context.Context, _ string) ([]models.MediaCandidate, error) {
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	out := make([]models.MediaCandidate, len(f.candidates))
	copy(out, f.candidates)
	return out, nil
}

func (f *fakeProvider) Fetch(_ context.Context, candidate *models.MediaCandidate) error {
	candidate.Data = f.fetchData
	return nil
}

type fakeLedger struct {
	usedHashes map[string]bool
	usedURLs   map[string]bool
	recorded   []models.MediaFingerprint
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		usedHashes: make(map[string]bool),
		usedURLs:   make(map[string]bool),
	}
}

func (f *fakeLedger) UsedSince(_ context.Context, contentHash, sourceURL string, _ time.Time) (bool, error) {
	if contentHash != "" && f.usedHashes[contentHash] {
		return true, nil
	}
	if sourceURL != "" && f.usedURLs[sourceURL] {
		return true, nil
	}
	return false, nil
}

func (f *fakeLedger) Record(_ context.Context, fp models.MediaFingerprint) error {
	f.recorded = append(f.recorded, fp)
	f.usedHashes[fp.ContentHash] = true
	f.usedURLs[fp.SourceURL] = true
	return nil
}

func (f *fakeLedger) DeleteBefore(_ context.Context, _ time.Time) (int64, error) {
	return 0, nil
}

type fakeCascadeObserver struct {
	depths []int
}

func (f *fakeCascadeObserver) ObserveMediaCascade(depth int) {
	f.depths = append(f.depths, depth)
}

func testAcquirer(t *testing.T, providers []Provider, ledger LedgerRepository) *Acquirer {
	t.Helper()
	return NewAcquirer(providers, nil, ledger, nil, config.DefaultMediaConfig(), slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func hastingsEvent() *models.Event {
	return &models.Event{
		Year:        1066,
		Month:       10,
		Day:         14,
		Description: "The Battle of Hastings is fought between Norman and English armies",
	}
}

func TestAcquire_ReturnsRelevantCandidate(t *testing.T) {
	imgData := testImage(t, 1600, 1000)
	provider := &fakeProvider{
		name: "fake",
		candidates: []models.MediaCandidate{{
			Provider:    "fake",
			SourceURL:   "https://img.example/hastings.jpg",
			Width:       1600,
			Height:      1000,
			Description: "Medieval tapestry depicting the battle of hastings in england",
		}},
		fetchData: imgData,
	}
	ledger := newFakeLedger()

	media, err := testAcquirer(t, []Provider{provider}, ledger).Acquire(
		context.Background(), hastingsEvent(), hastingsEvent().Description)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	if media.SourceURL != "https://img.example/hastings.jpg" {
		t.Errorf("source = %s", media.SourceURL)
	}
	if len(media.Data) == 0 {
		t.Error("media should carry normalized bytes")
	}
	if len(ledger.recorded) != 1 {
		t.Errorf("ledger recorded %d entries, want 1", len(ledger.recorded))
	}
}

func TestAcquire_CooldownBlocksOnlyCandidate(t *testing.T) {
	imgData := testImage(t, 1600, 1000)
	provider := &fakeProvider{
		name: "fake",
		candidates: []models.MediaCandidate{{
			Provider:    "fake",
			SourceURL:   "https://img.example/hastings.jpg",
			Width:       1600,
			Height:      1000,
			Description: "Medieval tapestry depicting the battle of hastings in england",
		}},
		fetchData: imgData,
	}
	ledger := newFakeLedger()
	ledger.usedURLs["https://img.example/hastings.jpg"] = true

	media, err := testAcquirer(t, []Provider{provider}, ledger).Acquire(
		context.Background(), hastingsEvent(), hastingsEvent().Description)

	var unavailable *MediaUnavailableError
	if !errors.As(err, &unavailable) {
		t.Fatalf("expected MediaUnavailableError, got %v", err)
	}
	if media != nil {
		t.Error("cooldown-blocked candidate must never be returned")
	}
}

func TestAcquire_HashCooldownBlocksRehostedAsset(t *testing.T) {
	imgData := testImage(t, 1600, 1000)
	provider := &fakeProvider{
		name: "fake",
		candidates: []models.MediaCandidate{{
			Provider:    "fake",
			SourceURL:   "https://mirror.example/same-image.jpg",
			Width:       1600,
			Height:      1000,
			Description: "Medieval tapestry depicting the battle of hastings in england",
		}},
		fetchData: imgData,
	}
	ledger := newFakeLedger()
	// The same bytes were used before under a different URL.
	ledger.usedHashes[contentHash(imgData)] = true

	_, err := testAcquirer(t, []Provider{provider}, ledger).Acquire(
		context.Background(), hastingsEvent(), hastingsEvent().Description)

	var unavailable *MediaUnavailableError
	if !errors.As(err, &unavailable) {
		t.Fatalf("expected MediaUnavailableError, got %v", err)
	}
}

func TestAcquire_FailingProviderCascades(t *testing.T) {
	imgData := testImage(t, 1600, 1000)
	broken := &fakeProvider{name: "broken", searchErr: errors.New("provider down")}
	working := &fakeProvider{
		name: "working",
		candidates: []models.MediaCandidate{{
			Provider:    "working",
			SourceURL:   "https://img.example/ok.jpg",
			Width:       1600,
			Height:      1000,
			Description: "Medieval battle of hastings engraving from england",
		}},
		fetchData: imgData,
	}

	media, err := testAcquirer(t, []Provider{broken, working}, newFakeLedger()).Acquire(
		context.Background(), hastingsEvent(), hastingsEvent().Description)
	if err != nil {
		t.Fatalf("Acquire should survive one broken provider: %v", err)
	}
	if media.Provider != "working" {
		t.Errorf("provider = %s, want working", media.Provider)
	}
}

func TestAcquire_NothingRelevant(t *testing.T) {
	provider := &fakeProvider{
		name: "fake",
		candidates: []models.MediaCandidate{{
			Provider:    "fake",
			SourceURL:   "https://img.example/cat.jpg",
			Width:       100,
			Height:      900, // bad aspect too
			Description: "cat on sofa",
		}},
	}

	_, err := testAcquirer(t, []Provider{provider}, newFakeLedger()).Acquire(
		context.Background(), hastingsEvent(), hastingsEvent().Description)

	var unavailable *MediaUnavailableError
	if !errors.As(err, &unavailable) {
		t.Fatalf("expected MediaUnavailableError, got %v", err)
	}
}

func TestAcquire_ObservesCascadeDepth(t *testing.T) {
	imgData := testImage(t, 1600, 1000)
	provider := &fakeProvider{
		name: "fake",
		candidates: []models.MediaCandidate{{
			Provider:    "fake",
			SourceURL:   "https://img.example/hastings.jpg",
			Width:       1600,
			Height:      1000,
			Description: "Medieval tapestry depicting the battle of hastings in england",
		}},
		fetchData: imgData,
	}
	observer := &fakeCascadeObserver{}
	a := NewAcquirer([]Provider{provider}, nil, newFakeLedger(), observer,
		config.DefaultMediaConfig(), slog.New(slog.NewTextHandler(io.Discard, nil)))

	_, err := a.Acquire(context.Background(), hastingsEvent(), hastingsEvent().Description)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	if len(observer.depths) != 1 || observer.depths[0] != 1 {
		t.Errorf("observed depths = %v, want [1] for a first-rung hit", observer.depths)
	}
}

func TestAcquire_ObservesDepthOnExhaustion(t *testing.T) {
	provider := &fakeProvider{name: "fake"} // no candidates at all
	observer := &fakeCascadeObserver{}
	a := NewAcquirer([]Provider{provider}, nil, newFakeLedger(), observer,
		config.DefaultMediaConfig(), slog.New(slog.NewTextHandler(io.Discard, nil)))

	_, err := a.Acquire(context.Background(), hastingsEvent(), hastingsEvent().Description)

	var unavailable *MediaUnavailableError
	if !errors.As(err, &unavailable) {
		t.Fatalf("expected MediaUnavailableError, got %v", err)
	}

	// A rich event feeds every strategy rung, so exhaustion walks all of
	// them.
	rungs := len(primaryStrategies()) + len(fallbackStrategies())
	if len(observer.depths) != 1 || observer.depths[0] != rungs {
		t.Errorf("observed depths = %v, want [%d] on exhaustion", observer.depths, rungs)
	}
}

func TestRotatedProviders_Deterministic(t *testing.T) {
	a := &Acquirer{
		searchProviders: []Provider{
			&fakeProvider{name: "a"},
			&fakeProvider{name: "b"},
			&fakeProvider{name: "c"},
		},
		now: func() time.Time { return time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC) },
	}

	first := a.rotatedProviders()
	second := a.rotatedProviders()

	if len(first) != 3 {
		t.Fatalf("rotated length = %d", len(first))
	}
	for i := range first {
		if first[i].Name() != second[i].Name() {
			t.Error("rotation must be stable within a day")
		}
	}
}

func TestSearchStrategies_ProduceTerms(t *testing.T) {
	event := hastingsEvent()

	sawTerm := false
	for _, strategy := range primaryStrategies() {
		if term := strategy.Term(event, ""); term != "" {
			sawTerm = true
		}
	}
	if !sawTerm {
		t.Error("primary strategies produced no terms for a rich event")
	}

	for _, strategy := range fallbackStrategies() {
		if term := strategy.Term(event, ""); term == "" {
			t.Errorf("fallback strategy %s produced no term", strategy.Name)
		}
	}
}
