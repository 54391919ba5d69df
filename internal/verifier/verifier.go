package verifier

import (
	"context"
	"encoding/json"
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

// ValidationError signals malformed judge output. It is never retried
// as-is; the caller regenerates instead.
type ValidationError struct {
	Reason string
	Raw    string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("malformed judge output: %s", e.Reason)
}

// Verifier scores draft confidence with a primary LLM judge pass and
// an optional cross-reference pass for high-confidence drafts.
type Verifier struct {
	client          *openai.Client
	crossRef        CrossReferencer
	openaiCfg       config.OpenAIConfig
	pipelineCfg     config.PipelineConfig
	logger          *slog.Logger
	inferenceLogger *inference.Logger
}

// New creates a verifier. crossRef may be nil, which disables the
// secondary pass.
func New(client *openai.Client, crossRef CrossReferencer, openaiCfg config.OpenAIConfig, pipelineCfg config.PipelineConfig, logger *slog.Logger, inferenceLogger *inference.Logger) *Verifier {
	return &Verifier{
		client:          client,
		crossRef:        crossRef,
		openaiCfg:       openaiCfg,
		pipelineCfg:     pipelineCfg,
		logger:          logger,
		inferenceLogger: inferenceLogger,
	}
}

// judgeResponse mirrors the JSON shape the judge prompt requests.
type judgeResponse struct {
	Confidence  float64  `json:"confidence"`
	Verdict     string   `json:"verdict"`
	Concerns    []string `json:"concerns"`
	Corrections []string `json:"corrections"`
}

// Verify scores one draft. Every failure path returns confidence 0
// and VerdictError so a broken judge can never wave content through.
// The result is always usable; the error explains failures.
func (v *Verifier) Verify(ctx context.Context, text, sourceContext string) (models.VerificationResult, error) {
	primary, err := v.primaryPass(ctx, text, sourceContext)
	if err != nil {
		return models.VerificationResult{Confidence: 0, Verdict: models.VerdictError}, err
	}

	result := primary

	if v.crossRef != nil && primary.Confidence >= v.pipelineCfg.CrossRefTrigger {
		secondary, checked, err := v.crossReferencePass(ctx, text)
		if err != nil {
			// Secondary failures fall back to the primary score alone.
			v.logger.Warn("cross-reference pass failed, using primary score",
				"error", err)
		} else if checked {
			blended := primary.Confidence*v.pipelineCfg.PrimaryWeight + secondary*v.pipelineCfg.SecondaryWeight
			result.Confidence = blended
			result.CrossReferenceScore = &secondary
		}
	}

	if result.Confidence > v.pipelineCfg.ConfidenceCap {
		result.Confidence = v.pipelineCfg.ConfidenceCap
	}

	v.logger.Info("verification complete",
		"confidence", result.Confidence,
		"verdict", result.Verdict,
		"concerns", len(result.Concerns),
		"cross_referenced", result.CrossReferenceScore != nil)

	return result, nil
}

// primaryPass runs the judge model in JSON mode and parses its
// structured assessment.
func (v *Verifier) primaryPass(ctx context.Context, text, sourceContext string) (models.VerificationResult, error) {
	request := openai.ChatCompletionRequest{
		Model:               v.openaiCfg.JudgeModel,
		MaxCompletionTokens: v.openaiCfg.MaxOutputTokens,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: judgeSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: buildJudgePrompt(text, sourceContext)},
		},
	}

	var resp openai.ChatCompletionResponse
	err := retry.Do(ctx, retry.DefaultPolicy(), func() error {
		apiCtx, cancel := context.WithTimeout(ctx, v.openaiCfg.StandardTimeout)
		defer cancel()

		start := time.Now()
		var callErr error
		resp, callErr = v.client.CreateChatCompletion(apiCtx, request)
		latency := time.Since(start)

		usage := inference.Usage{}
		if callErr == nil {
			usage = inference.Usage{
				PromptTokens:     resp.Usage.PromptTokens,
				CompletionTokens: resp.Usage.CompletionTokens,
				TotalTokens:      resp.Usage.TotalTokens,
			}
		}
		v.inferenceLogger.LogCall(ctx, v.openaiCfg.JudgeModel, "verify", usage, latency, callErr, nil)

		if callErr != nil {
			if retry.LooksRateLimited(callErr) {
				return retry.Transient(callErr)
			}
			return callErr
		}
		return nil
	})
	if err != nil {
		return models.VerificationResult{}, fmt.Errorf("judge call failed: %w", err)
	}

	if len(resp.Choices) == 0 {
		return models.VerificationResult{}, &ValidationError{Reason: "no completion choices"}
	}

	return parseJudgeResponse(resp.Choices[0].Message.Content)
}

// parseJudgeResponse decodes and validates the judge's JSON. Any
// malformed field is a ValidationError, never a silently-parsed
// partial.
func parseJudgeResponse(raw string) (models.VerificationResult, error) {
	trimmed := strings.TrimSpace(raw)
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(trimmed, "```")

	var parsed judgeResponse
	if err := json.Unmarshal([]byte(trimmed), &parsed); err != nil {
		return models.VerificationResult{}, &ValidationError{Reason: err.Error(), Raw: raw}
	}

	if parsed.Confidence < 0 || parsed.Confidence > 100 {
		return models.VerificationResult{}, &ValidationError{
			Reason: fmt.Sprintf("confidence %v outside [0, 100]", parsed.Confidence),
			Raw:    raw,
		}
	}

	var verdict models.Verdict
	switch strings.ToLower(parsed.Verdict) {
	case "accurate":
		verdict = models.VerdictAccurate
	case "uncertain":
		verdict = models.VerdictUncertain
	case "inaccurate":
		verdict = models.VerdictInaccurate
	default:
		return models.VerificationResult{}, &ValidationError{
			Reason: fmt.Sprintf("unknown verdict %q", parsed.Verdict),
			Raw:    raw,
		}
	}

	return models.VerificationResult{
		Confidence:  parsed.Confidence,
		Verdict:     verdict,
		Concerns:    parsed.Concerns,
		Corrections: parsed.Corrections,
	}, nil
}

// crossReferencePass checks each salient term against the reference
// corpus and returns the found-fraction scaled to 0-100. checked is
// false when the text yields no terms; the primary score then stands
// unblended.
func (v *Verifier) crossReferencePass(ctx context.Context, text string) (score float64, checked bool, err error) {
	terms := crossRefTerms(text)
	if len(terms) == 0 {
		return 0, false, nil
	}

	found := 0
	for _, term := range terms {
		result, err := v.crossRef.Lookup(ctx, term)
		if err != nil {
			return 0, false, fmt.Errorf("lookup %q: %w", term, err)
		}
		if result.Found {
			found++
		}
		v.logger.Debug("cross-reference term",
			"term", term,
			"found", result.Found)
	}

	return float64(found) / float64(len(terms)) * 100, true, nil
}
