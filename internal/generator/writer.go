package generator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/chronopost/chronopost/internal/config"
	"github.com/chronopost/chronopost/internal/inference"
	"github.com/chronopost/chronopost/internal/models"
	"github.com/chronopost/chronopost/internal/retry"
)

// DraftRequest describes one draft generation call.
type DraftRequest struct {
	ContentType models.ContentType
	Event       *models.Event
	Topic       string
	// CorrectionPrompt, when set, replaces the fresh-draft prompt.
	CorrectionPrompt string
	Attempt          int
}

// TextWriter produces draft text. Satisfied by Writer; faked in tests.
type TextWriter interface {
	Draft(ctx context.Context, req DraftRequest) (string, error)
}

// Writer drafts post text with the writer model.
type Writer struct {
	client          *openai.Client
	cfg             config.OpenAIConfig
	logger          *slog.Logger
	inferenceLogger *inference.Logger
}

// NewWriter creates a writer client.
func NewWriter(client *openai.Client, cfg config.OpenAIConfig, logger *slog.Logger, inferenceLogger *inference.Logger) *Writer {
	return &Writer{
		client:          client,
		cfg:             cfg,
		logger:          logger,
		inferenceLogger: inferenceLogger,
	}
}

// Draft generates one draft. Correction attempts reuse the longer
// generation timeout only for threads; single posts stay on the
// standard timeout.
func (w *Writer) Draft(ctx context.Context, req DraftRequest) (string, error) {
	userPrompt := req.CorrectionPrompt
	operation := "correction"
	if userPrompt == "" {
		userPrompt = buildDraftPrompt(req.ContentType, req.Event, req.Topic)
		operation = "draft"
	}

	timeout := w.cfg.StandardTimeout
	if req.ContentType == models.ContentTypeStoryThread {
		timeout = w.cfg.GenerationTimeout
	}

	request := openai.ChatCompletionRequest{
		Model:               w.cfg.WriterModel,
		Temperature:         w.cfg.Temperature,
		MaxCompletionTokens: w.cfg.MaxOutputTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: writerSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
	}

	var resp openai.ChatCompletionResponse
	err := retry.Do(ctx, retry.DefaultPolicy(), func() error {
		apiCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		start := time.Now()
		var callErr error
		resp, callErr = w.client.CreateChatCompletion(apiCtx, request)
		latency := time.Since(start)

		usage := inference.Usage{}
		if callErr == nil {
			usage = inference.Usage{
				PromptTokens:     resp.Usage.PromptTokens,
				CompletionTokens: resp.Usage.CompletionTokens,
				TotalTokens:      resp.Usage.TotalTokens,
			}
		}
		w.inferenceLogger.LogCall(ctx, w.cfg.WriterModel, operation, usage, latency, callErr, map[string]any{
			"content_type": string(req.ContentType),
			"attempt":      req.Attempt,
		})

		if callErr != nil {
			if retry.LooksRateLimited(callErr) {
				return retry.Transient(callErr)
			}
			return callErr
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("draft generation failed: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no completion choices from model %s", w.cfg.WriterModel)
	}

	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", fmt.Errorf("empty draft from model %s (finish_reason: %s)", w.cfg.WriterModel, resp.Choices[0].FinishReason)
	}

	w.logger.Debug("draft generated",
		"content_type", req.ContentType,
		"attempt", req.Attempt,
		"operation", operation,
		"length", len(text))

	return text, nil
}
