package inference

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/chronopost/chronopost/internal/models"
)

// Usage carries token counts from a completed LLM call.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Repository persists inference audit records.
type Repository interface {
	Insert(ctx context.Context, log *models.InferenceLog) error
}

// Logger records every LLM API call the pipeline makes. Audit
// failures are logged and swallowed so they never break the pipeline.
type Logger struct {
	repo   Repository
	logger *slog.Logger
}

// NewLogger creates an inference audit logger. A nil repository
// disables persistence but keeps the structured log line.
func NewLogger(repo Repository, logger *slog.Logger) *Logger {
	return &Logger{repo: repo, logger: logger}
}

// LogCall records one LLM call. operation is one of 'draft', 'verify'
// or 'correction'.
func (l *Logger) LogCall(ctx context.Context, model, operation string, usage Usage, latency time.Duration, callErr error, metadata map[string]any) {
	if l == nil {
		return
	}

	status := "success"
	var errMsg *string
	if callErr != nil {
		status = "error"
		msg := callErr.Error()
		errMsg = &msg
	}

	latencyMs := int(latency.Milliseconds())
	inputTokens := usage.PromptTokens
	outputTokens := usage.CompletionTokens

	metaJSON := "{}"
	if len(metadata) > 0 {
		if raw, err := json.Marshal(metadata); err == nil {
			metaJSON = string(raw)
		}
	}

	record := &models.InferenceLog{
		Provider:     "openai",
		Model:        model,
		Operation:    operation,
		TokensUsed:   usage.TotalTokens,
		InputTokens:  &inputTokens,
		OutputTokens: &outputTokens,
		LatencyMs:    &latencyMs,
		Status:       status,
		ErrorMessage: errMsg,
		Metadata:     metaJSON,
		CreatedAt:    time.Now(),
	}

	l.logger.Debug("inference call",
		"model", model,
		"operation", operation,
		"tokens", usage.TotalTokens,
		"latency_ms", latencyMs,
		"status", status)

	if l.repo == nil {
		return
	}

	if err := l.repo.Insert(ctx, record); err != nil {
		l.logger.Warn("failed to persist inference log",
			"operation", operation,
			"error", err)
	}
}
