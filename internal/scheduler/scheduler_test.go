package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/chronopost/chronopost/internal/config"
	"github.com/chronopost/chronopost/internal/models"
	"github.com/chronopost/chronopost/internal/pipeline"
	"github.com/chronopost/chronopost/internal/publisher"
)

type fakeRunner struct {
	results      map[models.ContentType]pipeline.RunResult
	runErr       error
	runs         []models.ContentType
	budgets      []models.RateBudget
	publishErr   error
	published    []string
	publishCalls int
}

func (f *fakeRunner) Run(ctx context.Context, contentType models.ContentType) (pipeline.RunResult, error) {
	f.runs = append(f.runs, contentType)
	if budget, ok := models.RateBudgetFrom(ctx); ok {
		f.budgets = append(f.budgets, budget)
	}
	if f.runErr != nil {
		return pipeline.RunResult{}, f.runErr
	}
	if result, ok := f.results[contentType]; ok {
		return result, nil
	}
	return pipeline.RunResult{Outcome: pipeline.RunRejected, ContentType: contentType}, nil
}

func (f *fakeRunner) PublishQueueItem(_ context.Context, item models.QueueItem) (string, error) {
	f.publishCalls++
	if f.publishErr != nil {
		return "", f.publishErr
	}
	f.published = append(f.published, item.ID)
	return "post-" + item.ID, nil
}

type fakeQueue struct {
	approved []models.QueueItem
	posted   map[string]string
	purged   []int
}

func newFakeQueue() *fakeQueue {
	return &fakeQueue{posted: make(map[string]string)}
}

func (f *fakeQueue) GetApprovedReadyToPost(_ context.Context, limit int) ([]models.QueueItem, error) {
	if limit > 0 && len(f.approved) > limit {
		return f.approved[:limit], nil
	}
	return f.approved, nil
}

func (f *fakeQueue) MarkPosted(_ context.Context, id, postID string) (*models.QueueItem, error) {
	f.posted[id] = postID
	return &models.QueueItem{ID: id, Status: models.QueueStatusPosted, PostID: postID}, nil
}

func (f *fakeQueue) Purge(_ context.Context, retentionDays int) error {
	f.purged = append(f.purged, retentionDays)
	return nil
}

type fakeCompactor struct{ calls int }

func (f *fakeCompactor) Compact(_ context.Context) error {
	f.calls++
	return nil
}

type fakePruner struct{ calls int }

func (f *fakePruner) Prune(_ context.Context) error {
	f.calls++
	return nil
}

func testScheduler(runner *fakeRunner, queue *fakeQueue) *Scheduler {
	return New(runner, queue, &fakeCompactor{}, &fakePruner{},
		config.SchedulerConfig{
			Enabled:       true,
			RunInterval:   time.Hour,
			PostInterval:  time.Minute,
			PurgeInterval: 24 * time.Hour,
		},
		config.DefaultPipelineConfig(),
		slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestRunCycle_CoversAllContentTypes(t *testing.T) {
	runner := &fakeRunner{results: map[models.ContentType]pipeline.RunResult{
		models.ContentTypeDailyFact: {Outcome: pipeline.RunPublished, PostID: "p1"},
	}}
	s := testScheduler(runner, newFakeQueue())

	s.runCycle(context.Background())

	if len(runner.runs) != 3 {
		t.Fatalf("ran %d content types, want 3", len(runner.runs))
	}
	if runner.runs[0] != models.ContentTypeDailyFact {
		t.Errorf("first run = %s, want daily_fact", runner.runs[0])
	}
}

func TestRunCycle_PublishedConsumesBudget(t *testing.T) {
	runner := &fakeRunner{results: map[models.ContentType]pipeline.RunResult{
		models.ContentTypeDailyFact:   {Outcome: pipeline.RunPublished},
		models.ContentTypeQuickFact:   {Outcome: pipeline.RunPublished},
		models.ContentTypeStoryThread: {Outcome: pipeline.RunRejected},
	}}
	s := testScheduler(runner, newFakeQueue())

	s.runCycle(context.Background())

	if got := s.currentBudget().Used; got != 2 {
		t.Errorf("budget used = %d, want 2", got)
	}

	// Every run saw a budget on its context.
	if len(runner.budgets) != 3 {
		t.Fatalf("budgets seen = %d", len(runner.budgets))
	}
	if runner.budgets[1].Used != 1 {
		t.Errorf("second run saw used = %d, want 1", runner.budgets[1].Used)
	}
}

func TestRunCycle_RateLimitAbortsCycle(t *testing.T) {
	runner := &fakeRunner{runErr: &publisher.RateLimitError{RetryAfter: time.Minute}}
	s := testScheduler(runner, newFakeQueue())

	s.runCycle(context.Background())

	if len(runner.runs) != 1 {
		t.Errorf("runs = %d, want 1 (cycle aborts on rate limit)", len(runner.runs))
	}
}

func TestRunCycle_OtherErrorsContinue(t *testing.T) {
	runner := &fakeRunner{runErr: errors.New("transient failure")}
	s := testScheduler(runner, newFakeQueue())

	s.runCycle(context.Background())

	if len(runner.runs) != 3 {
		t.Errorf("runs = %d, want all 3 despite failures", len(runner.runs))
	}
}

func TestDrainApproved_PostsAndMarks(t *testing.T) {
	runner := &fakeRunner{}
	queue := newFakeQueue()
	queue.approved = []models.QueueItem{
		{ID: "a", Status: models.QueueStatusApproved},
		{ID: "b", Status: models.QueueStatusApproved},
	}
	s := testScheduler(runner, queue)

	s.drainApproved(context.Background())

	if len(runner.published) != 2 {
		t.Fatalf("published %d items, want 2", len(runner.published))
	}
	if queue.posted["a"] != "post-a" || queue.posted["b"] != "post-b" {
		t.Errorf("posted map = %v", queue.posted)
	}
	if got := s.currentBudget().Used; got != 2 {
		t.Errorf("budget used = %d, want 2", got)
	}
}

func TestDrainApproved_RespectsBudget(t *testing.T) {
	runner := &fakeRunner{}
	queue := newFakeQueue()
	for i := 0; i < 12; i++ {
		queue.approved = append(queue.approved, models.QueueItem{
			ID: string(rune('a' + i)), Status: models.QueueStatusApproved,
		})
	}
	s := testScheduler(runner, queue)

	s.drainApproved(context.Background())

	limit := config.DefaultPipelineConfig().DailyPostLimit
	if len(runner.published) != limit {
		t.Errorf("published %d items, want the daily limit %d", len(runner.published), limit)
	}
}

func TestDrainApproved_ExhaustedBudgetSkips(t *testing.T) {
	runner := &fakeRunner{}
	queue := newFakeQueue()
	queue.approved = []models.QueueItem{{ID: "a", Status: models.QueueStatusApproved}}
	s := testScheduler(runner, queue)
	s.mu.Lock()
	s.budget.Used = s.budget.Limit
	s.mu.Unlock()

	s.drainApproved(context.Background())

	if runner.publishCalls != 0 {
		t.Error("exhausted budget must not publish")
	}
}

func TestDrainApproved_RateLimitPauses(t *testing.T) {
	runner := &fakeRunner{publishErr: &publisher.RateLimitError{}}
	queue := newFakeQueue()
	queue.approved = []models.QueueItem{
		{ID: "a", Status: models.QueueStatusApproved},
		{ID: "b", Status: models.QueueStatusApproved},
	}
	s := testScheduler(runner, queue)

	s.drainApproved(context.Background())

	if runner.publishCalls != 1 {
		t.Errorf("publish calls = %d, want 1 (drain pauses on rate limit)", runner.publishCalls)
	}
	if len(queue.posted) != 0 {
		t.Error("nothing should be marked posted")
	}
}

func TestRetentionPass(t *testing.T) {
	runner := &fakeRunner{}
	queue := newFakeQueue()
	compactor := &fakeCompactor{}
	pruner := &fakePruner{}
	s := New(runner, queue, compactor, pruner,
		config.SchedulerConfig{RunInterval: time.Hour, PostInterval: time.Minute, PurgeInterval: time.Hour},
		config.DefaultPipelineConfig(), slog.New(slog.NewTextHandler(io.Discard, nil)))

	s.retentionPass(context.Background())

	if compactor.calls != 1 {
		t.Error("fingerprint compaction should run")
	}
	if pruner.calls != 1 {
		t.Error("media ledger prune should run")
	}
	if len(queue.purged) != 1 || queue.purged[0] != queueRetentionDays {
		t.Errorf("purged = %v, want [%d]", queue.purged, queueRetentionDays)
	}
}

func TestStartStop(t *testing.T) {
	runner := &fakeRunner{}
	s := testScheduler(runner, newFakeQueue())

	done := make(chan struct{})
	go func() {
		s.Start(context.Background())
		close(done)
	}()

	// The initial cycle runs immediately; stop right after.
	time.Sleep(50 * time.Millisecond)
	s.Stop()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop")
	}

	if len(runner.runs) == 0 {
		t.Error("initial cycle should have run")
	}
}
