package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/chronopost/chronopost/internal/config"
	"github.com/chronopost/chronopost/internal/dedup"
	"github.com/chronopost/chronopost/internal/generator"
	"github.com/chronopost/chronopost/internal/media"
	"github.com/chronopost/chronopost/internal/models"
	"github.com/chronopost/chronopost/internal/publisher"
)

// maxEventAttempts bounds how many alternate event candidates one run
// tries when the first choice turns out to be a duplicate or has no
// usable imagery.
const maxEventAttempts = 3

// RunOutcome is the terminal result of one pipeline run.
type RunOutcome string

const (
	RunPublished RunOutcome = "published"
	RunQueued    RunOutcome = "queued"
	RunRejected  RunOutcome = "rejected"
	RunSkipped   RunOutcome = "skipped"
)

// RunResult summarizes one completed run.
type RunResult struct {
	Outcome     RunOutcome
	ContentType models.ContentType
	PostID      string
	QueueItemID string
	Attempts    int
	Confidence  float64
	Reason      string
}

// Stats is a cumulative view over all runs since process start.
type Stats struct {
	Total        int     `json:"total"`
	Published    int     `json:"published"`
	Queued       int     `json:"queued"`
	Rejected     int     `json:"rejected"`
	Skipped      int     `json:"skipped"`
	ApprovalRate float64 `json:"approval_rate"`
}

// EventSelector picks one event candidate for a calendar date.
type EventSelector interface {
	SelectEvent(ctx context.Context, month, day int) (models.Event, error)
}

// ContentGenerator drives a draft to a terminal decision.
type ContentGenerator interface {
	Run(ctx context.Context, contentType models.ContentType, event *models.Event, topic string) (generator.Decision, error)
}

// MediaAcquirer finds and normalizes an image for an event.
type MediaAcquirer interface {
	Acquire(ctx context.Context, event *models.Event, text string) (*models.Media, error)
}

// ReviewEnqueuer parks a draft for human review.
type ReviewEnqueuer interface {
	Enqueue(ctx context.Context, contentType models.ContentType, content, sourceContext string, verification models.VerificationResult) (*models.QueueItem, error)
}

// Deduplicator guards the publish path against repeats.
type Deduplicator interface {
	IsEventPosted(ctx context.Context, event models.Event) (bool, error)
	PublishExclusive(ctx context.Context, text string, event *models.Event, windowDays int, publish func(context.Context) (string, error)) (string, error)
}

// MetricsRecorder receives pipeline observations. Satisfied by
// metrics.Collector.
type MetricsRecorder interface {
	ObserveRunOutcome(contentType, outcome string, attempts int)
	ObserveDuplicate(kind string)
	ObservePublish(kind string, err error)
}

// Runner wires event selection, generation, media acquisition,
// deduplication and publishing into one run. A Runner is safe for
// concurrent use; runs serialize nowhere except the dedup critical
// section.
type Runner struct {
	selector  EventSelector
	generator ContentGenerator
	acquirer  MediaAcquirer
	queue     ReviewEnqueuer
	dedup     Deduplicator
	pub       publisher.Publisher
	metrics   MetricsRecorder
	cfg       config.PipelineConfig
	logger    *slog.Logger
	now       func() time.Time

	mu    sync.Mutex
	stats Stats
}

// NewRunner creates a pipeline runner.
func NewRunner(selector EventSelector, gen ContentGenerator, acquirer MediaAcquirer, queue ReviewEnqueuer, dd Deduplicator, pub publisher.Publisher, recorder MetricsRecorder, cfg config.PipelineConfig, logger *slog.Logger) *Runner {
	return &Runner{
		selector:  selector,
		generator: gen,
		acquirer:  acquirer,
		queue:     queue,
		dedup:     dd,
		pub:       pub,
		metrics:   recorder,
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
	}
}

// Run executes one end-to-end pipeline pass for the content type.
// A rate budget on the context is honored before any model call is
// spent; an exhausted budget skips the run.
func (r *Runner) Run(ctx context.Context, contentType models.ContentType) (RunResult, error) {
	if !contentType.Valid() {
		return RunResult{}, fmt.Errorf("unknown content type %q", contentType)
	}

	now := r.now()

	if budget, ok := models.RateBudgetFrom(ctx); ok && budget.Remaining(now) == 0 {
		r.logger.Info("rate budget exhausted, skipping run",
			"content_type", contentType,
			"reset_at", budget.ResetAt.Format(time.RFC3339))
		result := RunResult{Outcome: RunSkipped, ContentType: contentType, Reason: "rate budget exhausted"}
		r.record(result)
		return result, nil
	}

	var lastErr error
	for attempt := 1; attempt <= maxEventAttempts; attempt++ {
		result, retryable, err := r.runOnce(ctx, contentType, now)
		if err == nil {
			result.Attempts = attempt
			r.record(result)
			r.metrics.ObserveRunOutcome(string(contentType), string(result.Outcome), attempt)
			return result, nil
		}
		if !retryable {
			return RunResult{}, err
		}
		lastErr = err
		r.logger.Warn("run attempt exhausted its candidate, retrying with an alternate",
			"content_type", contentType,
			"attempt", attempt,
			"error", err)
	}

	result := RunResult{
		Outcome:     RunSkipped,
		ContentType: contentType,
		Attempts:    maxEventAttempts,
		Reason:      fmt.Sprintf("no publishable candidate after %d attempts", maxEventAttempts),
	}
	r.record(result)
	r.metrics.ObserveRunOutcome(string(contentType), string(result.Outcome), maxEventAttempts)
	return result, lastErr
}

// runOnce executes a single candidate pass. The second return reports
// whether a failure is worth retrying with an alternate candidate.
func (r *Runner) runOnce(ctx context.Context, contentType models.ContentType, now time.Time) (RunResult, bool, error) {
	var event *models.Event
	topic := quickFactTopic(now)

	if contentType.RequiresEvent() {
		selected, err := r.selector.SelectEvent(ctx, int(now.Month()), now.Day())
		if err != nil {
			return RunResult{}, false, fmt.Errorf("select event: %w", err)
		}

		posted, err := r.dedup.IsEventPosted(ctx, selected)
		if err != nil {
			return RunResult{}, false, fmt.Errorf("event posted check: %w", err)
		}
		if posted {
			r.metrics.ObserveDuplicate("event")
			return RunResult{}, true, fmt.Errorf("event %s already posted", selected.Fingerprint())
		}

		event = &selected
		topic = ""
	}

	decision, err := r.generator.Run(ctx, contentType, event, topic)
	if err != nil {
		return RunResult{}, false, fmt.Errorf("generation: %w", err)
	}

	switch decision.Outcome {
	case generator.OutcomeRejected:
		r.logger.Info("run rejected",
			"content_type", contentType,
			"reason", decision.Reason,
			"confidence", decision.Verification.Confidence)
		return RunResult{
			Outcome:     RunRejected,
			ContentType: contentType,
			Confidence:  decision.Verification.Confidence,
			Reason:      decision.Reason,
		}, false, nil

	case generator.OutcomeQueued:
		item, err := r.queue.Enqueue(ctx, contentType, decision.Text, sourceContext(event, topic), decision.Verification)
		if err != nil {
			return RunResult{}, false, fmt.Errorf("enqueue for review: %w", err)
		}
		return RunResult{
			Outcome:     RunQueued,
			ContentType: contentType,
			QueueItemID: item.ID,
			Confidence:  decision.Verification.Confidence,
		}, false, nil

	case generator.OutcomeApproved:
		return r.publishApproved(ctx, contentType, event, decision)

	default:
		return RunResult{}, false, fmt.Errorf("unknown generation outcome %q", decision.Outcome)
	}
}

// publishApproved acquires media when required and publishes inside
// the dedup critical section.
func (r *Runner) publishApproved(ctx context.Context, contentType models.ContentType, event *models.Event, decision generator.Decision) (RunResult, bool, error) {
	var asset *models.Media
	if contentType.RequiresMedia() {
		found, err := r.acquirer.Acquire(ctx, event, decision.Text)
		if err != nil {
			var unavailable *media.MediaUnavailableError
			if errors.As(err, &unavailable) {
				// No usable image for this event; try another candidate
				// rather than posting the flagship format bare.
				return RunResult{}, true, fmt.Errorf("media unavailable: %w", err)
			}
			return RunResult{}, false, fmt.Errorf("acquire media: %w", err)
		}
		asset = found
	}

	postID, err := r.dedup.PublishExclusive(ctx, decision.Text, event, r.cfg.DuplicateWindowDays, func(ctx context.Context) (string, error) {
		return r.publish(ctx, contentType, decision.Text, asset)
	})
	if err != nil {
		var dup *dedup.DuplicateError
		if errors.As(err, &dup) {
			r.metrics.ObserveDuplicate(dup.Kind)
			return RunResult{}, true, fmt.Errorf("duplicate %s candidate: %w", dup.Kind, err)
		}
		r.metrics.ObservePublish(string(contentType), err)
		return RunResult{}, false, fmt.Errorf("publish: %w", err)
	}

	r.metrics.ObservePublish(string(contentType), nil)
	r.logger.Info("run published",
		"content_type", contentType,
		"post_id", postID,
		"confidence", decision.Verification.Confidence,
		"verify_attempts", decision.Attempts)

	return RunResult{
		Outcome:     RunPublished,
		ContentType: contentType,
		PostID:      postID,
		Confidence:  decision.Verification.Confidence,
	}, false, nil
}

func (r *Runner) publish(ctx context.Context, contentType models.ContentType, text string, asset *models.Media) (string, error) {
	switch {
	case contentType == models.ContentTypeStoryThread:
		return r.pub.PostThread(ctx, SplitThread(text))
	case asset != nil:
		return r.pub.PostWithMedia(ctx, text, asset)
	default:
		return r.pub.PostText(ctx, text)
	}
}

// PublishQueueItem posts a reviewer-approved queue item through the
// same dedup critical section the automatic path uses. The caller
// marks the item posted on success.
func (r *Runner) PublishQueueItem(ctx context.Context, item models.QueueItem) (string, error) {
	var asset *models.Media
	if item.ContentType.RequiresMedia() {
		found, err := r.acquirer.Acquire(ctx, nil, item.Content)
		if err != nil {
			var unavailable *media.MediaUnavailableError
			if !errors.As(err, &unavailable) {
				return "", fmt.Errorf("acquire media for queued item: %w", err)
			}
			// Reviewer approval outranks the imagery requirement;
			// post text-only rather than strand the item.
			r.logger.Warn("posting approved item without media", "id", item.ID)
		} else {
			asset = found
		}
	}

	postID, err := r.dedup.PublishExclusive(ctx, item.Content, nil, r.cfg.DuplicateWindowDays, func(ctx context.Context) (string, error) {
		return r.publish(ctx, item.ContentType, item.Content, asset)
	})
	if err != nil {
		var dup *dedup.DuplicateError
		if errors.As(err, &dup) {
			r.metrics.ObserveDuplicate(dup.Kind)
		}
		r.metrics.ObservePublish(string(item.ContentType), err)
		return "", fmt.Errorf("publish queued item %s: %w", item.ID, err)
	}

	r.metrics.ObservePublish(string(item.ContentType), nil)
	return postID, nil
}

// Stats returns a snapshot of cumulative run statistics.
func (r *Runner) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.stats
	if s.Total > 0 {
		s.ApprovalRate = float64(s.Published) / float64(s.Total)
	}
	return s
}

func (r *Runner) record(result RunResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stats.Total++
	switch result.Outcome {
	case RunPublished:
		r.stats.Published++
	case RunQueued:
		r.stats.Queued++
	case RunRejected:
		r.stats.Rejected++
	case RunSkipped:
		r.stats.Skipped++
	}
}

// sourceContext is the judge/reviewer-facing provenance line for a
// draft.
func sourceContext(event *models.Event, topic string) string {
	if event != nil {
		return fmt.Sprintf("Year %d: %s", event.Year, event.Description)
	}
	return fmt.Sprintf("Topic: %s", topic)
}

var quickFactTopics = []string{
	"an overlooked invention that changed daily life",
	"a historical figure remembered for the wrong reason",
	"a food or dish with a surprising origin",
	"an engineering feat of the ancient world",
	"a word or phrase with an unexpected etymology",
	"a scientific discovery made by accident",
	"a city that changed its name and why",
}

// quickFactTopic rotates through the topic list by day so consecutive
// quick facts do not repeat a theme.
func quickFactTopic(now time.Time) string {
	return quickFactTopics[now.YearDay()%len(quickFactTopics)]
}

var threadPartRe = regexp.MustCompile(`^\s*(?:\d+[./)]|\(\d+\))\s*`)

// SplitThread breaks a numbered multi-part draft into individual
// posts. Blank lines separate parts; leading "1." style numbering is
// stripped because the platform threads replies visually.
func SplitThread(text string) []string {
	blocks := strings.Split(text, "\n\n")
	parts := make([]string, 0, len(blocks))
	for _, block := range blocks {
		part := strings.TrimSpace(threadPartRe.ReplaceAllString(strings.TrimSpace(block), ""))
		if part != "" {
			parts = append(parts, part)
		}
	}
	if len(parts) == 0 && strings.TrimSpace(text) != "" {
		parts = append(parts, strings.TrimSpace(text))
	}
	return parts
}
