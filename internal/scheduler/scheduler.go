package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/chronopost/chronopost/internal/config"
	"github.com/chronopost/chronopost/internal/models"
	"github.com/chronopost/chronopost/internal/pipeline"
	"github.com/chronopost/chronopost/internal/publisher"
)

// queueRetentionDays is how long terminal review items are kept before
// the retention pass drops them.
const queueRetentionDays = 90

// PipelineRunner executes content runs and queue publishes.
type PipelineRunner interface {
	Run(ctx context.Context, contentType models.ContentType) (pipeline.RunResult, error)
	PublishQueueItem(ctx context.Context, item models.QueueItem) (string, error)
}

// ReviewQueue is the approved-item drain and retention surface.
type ReviewQueue interface {
	GetApprovedReadyToPost(ctx context.Context, limit int) ([]models.QueueItem, error)
	MarkPosted(ctx context.Context, id, postID string) (*models.QueueItem, error)
	Purge(ctx context.Context, retentionDays int) error
}

// Compactor drops aged fingerprints. Satisfied by dedup.Store.
type Compactor interface {
	Compact(ctx context.Context) error
}

// LedgerPruner drops aged media ledger entries. Satisfied by
// media.Acquirer.
type LedgerPruner interface {
	Prune(ctx context.Context) error
}

// Scheduler drives the three periodic loops: content runs, the
// approved-queue drain, and the retention pass. The daily post budget
// is shared across the first two so reviewer-approved posts and
// automatic posts draw from the same allowance.
type Scheduler struct {
	runner   PipelineRunner
	queue    ReviewQueue
	dedup    Compactor
	ledger   LedgerPruner
	cfg      config.SchedulerConfig
	pipeline config.PipelineConfig
	logger   *slog.Logger
	stopChan chan struct{}

	mu     sync.Mutex
	budget models.RateBudget
}

// New creates a scheduler.
func New(runner PipelineRunner, queue ReviewQueue, dd Compactor, ledger LedgerPruner, cfg config.SchedulerConfig, pipelineCfg config.PipelineConfig, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		runner:   runner,
		queue:    queue,
		dedup:    dd,
		ledger:   ledger,
		cfg:      cfg,
		pipeline: pipelineCfg,
		logger:   logger,
		stopChan: make(chan struct{}),
		budget: models.RateBudget{
			Limit:   pipelineCfg.DailyPostLimit,
			ResetAt: time.Now().Add(24 * time.Hour),
		},
	}
}

// contentRotation is the order scheduled runs cycle through content
// types. The flagship daily fact runs every cycle; the lighter formats
// alternate.
var contentRotation = []models.ContentType{
	models.ContentTypeDailyFact,
	models.ContentTypeQuickFact,
	models.ContentTypeStoryThread,
}

// Start begins the scheduler loops and blocks until stopped.
func (s *Scheduler) Start(ctx context.Context) {
	s.logger.Info("starting scheduler",
		"run_interval", s.cfg.RunInterval,
		"post_interval", s.cfg.PostInterval,
		"purge_interval", s.cfg.PurgeInterval)

	runTicker := time.NewTicker(s.cfg.RunInterval)
	postTicker := time.NewTicker(s.cfg.PostInterval)
	purgeTicker := time.NewTicker(s.cfg.PurgeInterval)
	defer runTicker.Stop()
	defer postTicker.Stop()
	defer purgeTicker.Stop()

	// Run once immediately on start
	s.runCycle(ctx)

	for {
		select {
		case <-runTicker.C:
			s.runCycle(ctx)
		case <-postTicker.C:
			s.drainApproved(ctx)
		case <-purgeTicker.C:
			s.retentionPass(ctx)
		case <-s.stopChan:
			s.logger.Info("scheduler stopped")
			return
		case <-ctx.Done():
			s.logger.Info("scheduler stopping due to context cancellation")
			return
		}
	}
}

// Stop stops the scheduler
func (s *Scheduler) Stop() {
	close(s.stopChan)
}

// runCycle executes one pipeline run per content type in rotation.
// A platform rate limit aborts the rest of the cycle.
func (s *Scheduler) runCycle(ctx context.Context) {
	for _, contentType := range contentRotation {
		runCtx := models.WithRateBudget(ctx, s.currentBudget())

		result, err := s.runner.Run(runCtx, contentType)
		if err != nil {
			var rateErr *publisher.RateLimitError
			if errors.As(err, &rateErr) {
				s.logger.Warn("platform rate limited, aborting cycle",
					"content_type", contentType,
					"retry_after", rateErr.RetryAfter)
				return
			}
			s.logger.Error("pipeline run failed",
				"content_type", contentType,
				"error", err)
			continue
		}

		if result.Outcome == pipeline.RunPublished {
			s.consumeBudget()
		}

		s.logger.Info("scheduled run finished",
			"content_type", contentType,
			"outcome", result.Outcome,
			"attempts", result.Attempts)
	}
}

// drainApproved posts reviewer-approved items, oldest first, within
// the remaining budget.
func (s *Scheduler) drainApproved(ctx context.Context) {
	remaining := s.currentBudget().Remaining(time.Now())
	if remaining == 0 {
		s.logger.Debug("post budget exhausted, skipping queue drain")
		return
	}

	items, err := s.queue.GetApprovedReadyToPost(ctx, remaining)
	if err != nil {
		s.logger.Error("failed to load approved items", "error", err)
		return
	}

	for _, item := range items {
		postID, err := s.runner.PublishQueueItem(ctx, item)
		if err != nil {
			var rateErr *publisher.RateLimitError
			if errors.As(err, &rateErr) {
				s.logger.Warn("platform rate limited, pausing queue drain",
					"retry_after", rateErr.RetryAfter)
				return
			}
			s.logger.Error("failed to publish approved item",
				"id", item.ID,
				"error", err)
			continue
		}

		if _, err := s.queue.MarkPosted(ctx, item.ID, postID); err != nil {
			// The post is live; the bookkeeping failure must be loud.
			s.logger.Error("published approved item but failed to mark it posted",
				"id", item.ID,
				"post_id", postID,
				"error", err)
		}

		s.consumeBudget()
	}
}

// retentionPass compacts fingerprints, prunes the media ledger, and
// purges terminal review items.
func (s *Scheduler) retentionPass(ctx context.Context) {
	if err := s.dedup.Compact(ctx); err != nil {
		s.logger.Error("fingerprint compaction failed", "error", err)
	}
	if err := s.ledger.Prune(ctx); err != nil {
		s.logger.Error("media ledger prune failed", "error", err)
	}
	if err := s.queue.Purge(ctx, queueRetentionDays); err != nil {
		s.logger.Error("review queue purge failed", "error", err)
	}
}

func (s *Scheduler) currentBudget() models.RateBudget {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.budget
}

func (s *Scheduler) consumeBudget() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.budget = s.budget.Consume(time.Now())
}
