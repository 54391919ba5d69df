package generator

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/chronopost/chronopost/internal/config"
	"github.com/chronopost/chronopost/internal/models"
	"github.com/chronopost/chronopost/internal/verifier"
)

// Outcome is the terminal decision of one generation run.
type Outcome string

const (
	OutcomeApproved Outcome = "approved"
	OutcomeQueued   Outcome = "queued"
	OutcomeRejected Outcome = "rejected"
)

// loopState enumerates the generate-verify-correct machine. Every
// state is explicit so tests can cover each transition.
type loopState int

const (
	stateDrafting loopState = iota
	stateVerifying
	stateCorrecting
	stateRegenerating
	stateApproved
	stateQueued
	stateRejected
)

func (s loopState) String() string {
	switch s {
	case stateDrafting:
		return "drafting"
	case stateVerifying:
		return "verifying"
	case stateCorrecting:
		return "correcting"
	case stateRegenerating:
		return "regenerating"
	case stateApproved:
		return "approved"
	case stateQueued:
		return "queued"
	case stateRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// FactChecker scores a draft. Satisfied by verifier.Verifier; faked
// in tests.
type FactChecker interface {
	Verify(ctx context.Context, text, sourceContext string) (models.VerificationResult, error)
}

// Decision is the result of a controller run.
type Decision struct {
	Outcome      Outcome
	Text         string
	Verification models.VerificationResult
	Attempts     int
	Corrections  int // correction passes applied across the run
	Reason       string
}

// Controller drives the bounded draft-verify-correct loop to a
// terminal decision. It owns no shared state; persistence happens in
// the caller.
type Controller struct {
	writer  TextWriter
	checker FactChecker
	cfg     config.PipelineConfig
	logger  *slog.Logger
}

// NewController creates a generation controller.
func NewController(writer TextWriter, checker FactChecker, cfg config.PipelineConfig, logger *slog.Logger) *Controller {
	return &Controller{
		writer:  writer,
		checker: checker,
		cfg:     cfg,
		logger:  logger,
	}
}

// transition maps a verification result onto the next state. APPROVED
// short-circuits and is never revisited by later attempts.
func (c *Controller) transition(result models.VerificationResult) loopState {
	switch {
	case result.Errored():
		// Fail closed: a broken judge result regenerates from scratch.
		return stateRegenerating
	case result.Confidence >= c.cfg.TargetConfidence:
		return stateApproved
	case result.Confidence >= c.cfg.MinQueueConfidence:
		return stateQueued
	case result.Confidence >= c.cfg.CorrectionFloor:
		return stateCorrecting
	default:
		return stateRegenerating
	}
}

// Run executes the loop for one content request. The returned
// Decision always carries the text and verification snapshot of the
// attempt it resolves on; exhausted runs resolve via the best attempt.
func (c *Controller) Run(ctx context.Context, contentType models.ContentType, event *models.Event, topic string) (Decision, error) {
	sourceContext := eventContext(event)

	var (
		best           models.VerificationResult
		bestText       string
		correctionUsed int
		correction     string
	)
	best.Confidence = -1

	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		text, err := c.writer.Draft(ctx, DraftRequest{
			ContentType:      contentType,
			Event:            event,
			Topic:            topic,
			CorrectionPrompt: correction,
			Attempt:          attempt,
		})
		if err != nil {
			return Decision{}, fmt.Errorf("attempt %d: %w", attempt, err)
		}

		result, err := c.checker.Verify(ctx, text, sourceContext)
		if err != nil {
			// Fail closed. The errored result carries confidence 0 and
			// routes through the regenerate branch below.
			c.logger.Warn("verification failed",
				"attempt", attempt,
				"error", err)
		}

		if result.Confidence > best.Confidence {
			best = result
			bestText = text
		}

		state := c.transition(result)
		c.logger.Info("verification attempt complete",
			"attempt", attempt,
			"confidence", result.Confidence,
			"verdict", result.Verdict,
			"next_state", state.String())

		switch state {
		case stateApproved:
			return Decision{
				Outcome:      OutcomeApproved,
				Text:         text,
				Verification: result,
				Attempts:     attempt,
				Corrections:  correctionUsed,
			}, nil
		case stateQueued:
			return Decision{
				Outcome:      OutcomeQueued,
				Text:         text,
				Verification: result,
				Attempts:     attempt,
				Corrections:  correctionUsed,
			}, nil
		case stateCorrecting:
			correction = verifier.BuildCorrectionPrompt(text, result.Concerns, result.Corrections)
			correctionUsed++
		case stateRegenerating:
			// Corrections are discarded; next attempt drafts fresh.
			correction = ""
		}
	}

	return c.resolveExhausted(best, bestText, correctionUsed), nil
}

// resolveExhausted decides the terminal state after the attempt
// budget runs out with no approval or queue.
func (c *Controller) resolveExhausted(best models.VerificationResult, bestText string, corrections int) Decision {
	if best.Confidence >= c.cfg.BestResultQueueBar {
		c.logger.Info("attempts exhausted, queueing best result",
			"confidence", best.Confidence)
		return Decision{
			Outcome:      OutcomeQueued,
			Text:         bestText,
			Verification: best,
			Attempts:     c.cfg.MaxAttempts,
			Corrections:  corrections,
			Reason:       "attempts exhausted, best result above queue bar",
		}
	}

	c.logger.Info("attempts exhausted, rejecting",
		"best_confidence", best.Confidence)
	return Decision{
		Outcome:      OutcomeRejected,
		Text:         bestText,
		Verification: best,
		Attempts:     c.cfg.MaxAttempts,
		Corrections:  corrections,
		Reason:       fmt.Sprintf("attempts exhausted, best confidence %.0f below queue bar", best.Confidence),
	}
}
