package verifier

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/chronopost/chronopost/internal/config"
	"github.com/chronopost/chronopost/internal/inference"
	"github.com/chronopost/chronopost/internal/models"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestParseJudgeResponse(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    models.VerificationResult
		wantErr bool
	}{
		{
			name: "valid response",
			raw:  `{"confidence": 92, "verdict": "accurate", "concerns": [], "corrections": []}`,
			want: models.VerificationResult{Confidence: 92, Verdict: models.VerdictAccurate},
		},
		{
			name: "code-fenced response",
			raw:  "```json\n{\"confidence\": 75, \"verdict\": \"uncertain\", \"concerns\": [\"year may be wrong\"], \"corrections\": [\"change 1067 to 1066\"]}\n```",
			want: models.VerificationResult{
				Confidence:  75,
				Verdict:     models.VerdictUncertain,
				Concerns:    []string{"year may be wrong"},
				Corrections: []string{"change 1067 to 1066"},
			},
		},
		{
			name:    "malformed json",
			raw:     `not json at all`,
			wantErr: true,
		},
		{
			name:    "confidence out of range",
			raw:     `{"confidence": 150, "verdict": "accurate"}`,
			wantErr: true,
		},
		{
			name:    "unknown verdict",
			raw:     `{"confidence": 80, "verdict": "maybe"}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseJudgeResponse(tt.raw)

			if tt.wantErr {
				var valErr *ValidationError
				if !errors.As(err, &valErr) {
					t.Fatalf("expected ValidationError, got %v", err)
				}
				return
			}

			if err != nil {
				t.Fatalf("parseJudgeResponse failed: %v", err)
			}
			if got.Confidence != tt.want.Confidence {
				t.Errorf("confidence = %v, want %v", got.Confidence, tt.want.Confidence)
			}
			if got.Verdict != tt.want.Verdict {
				t.Errorf("verdict = %v, want %v", got.Verdict, tt.want.Verdict)
			}
			if len(got.Concerns) != len(tt.want.Concerns) {
				t.Errorf("concerns = %v, want %v", got.Concerns, tt.want.Concerns)
			}
		})
	}
}

func TestCrossRefTerms(t *testing.T) {
	terms := crossRefTerms("The Battle of Hastings occurred in 1066 in England")

	hasYear := false
	hasEngland := false
	for _, term := range terms {
		if term == "1066" {
			hasYear = true
		}
		if term == "England" {
			hasEngland = true
		}
	}
	if !hasYear {
		t.Errorf("terms %v missing year 1066", terms)
	}
	if !hasEngland {
		t.Errorf("terms %v missing England", terms)
	}
}

func TestCrossRefTerms_PhraseStaysIntact(t *testing.T) {
	terms := crossRefTerms("Forces met at the Battle of Hastings that autumn")

	joined := strings.Join(terms, "|")
	if !strings.Contains(joined, "Battle of Hastings") {
		t.Errorf("terms %v should keep 'Battle of Hastings' as one phrase", terms)
	}
}

// judgeServer fakes the chat completions endpoint, returning the given
// judge JSON as the completion content.
func judgeServer(t *testing.T, judgeJSON string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		resp := map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"role": "assistant", "content": judgeJSON}},
			},
			"usage": map[string]int{"prompt_tokens": 100, "completion_tokens": 50, "total_tokens": 150},
		}
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			t.Errorf("write response: %v", err)
		}
	}))
}

type fakeCrossRef struct {
	results map[string]bool
	err     error
}

func (f *fakeCrossRef) Lookup(_ context.Context, term string) (LookupResult, error) {
	if f.err != nil {
		return LookupResult{}, f.err
	}
	return LookupResult{Found: f.results[term], Title: term}, nil
}

func newTestVerifier(serverURL string, crossRef CrossReferencer) *Verifier {
	clientCfg := openai.DefaultConfig("test-key")
	clientCfg.BaseURL = serverURL + "/v1"

	openaiCfg := config.OpenAIConfig{
		JudgeModel:      "gpt-4o",
		MaxOutputTokens: 1200,
		StandardTimeout: 5 * time.Second,
	}

	return New(
		openai.NewClientWithConfig(clientCfg),
		crossRef,
		openaiCfg,
		config.DefaultPipelineConfig(),
		discardLogger(),
		inference.NewLogger(nil, discardLogger()),
	)
}

func TestVerify_PrimaryOnly(t *testing.T) {
	server := judgeServer(t, `{"confidence": 80, "verdict": "uncertain", "concerns": ["date unverified"], "corrections": ["confirm the year 1066"]}`)
	defer server.Close()

	v := newTestVerifier(server.URL, nil)

	result, err := v.Verify(context.Background(), "The Battle of Hastings occurred in 1066", "")
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if result.Confidence != 80 {
		t.Errorf("confidence = %v, want 80", result.Confidence)
	}
	if result.CrossReferenceScore != nil {
		t.Error("below-trigger confidence must not run the secondary pass")
	}
}

func TestVerify_BlendsCrossReference(t *testing.T) {
	server := judgeServer(t, `{"confidence": 90, "verdict": "accurate", "concerns": [], "corrections": []}`)
	defer server.Close()

	// Every term found: secondary score 100.
	crossRef := &fakeCrossRef{results: map[string]bool{}}
	v := newTestVerifier(server.URL, crossRef)
	for _, term := range crossRefTerms("The Battle of Hastings occurred in 1066 in England") {
		crossRef.results[term] = true
	}

	result, err := v.Verify(context.Background(), "The Battle of Hastings occurred in 1066 in England", "")
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}

	// 90*0.7 + 100*0.3 = 93.
	if math.Abs(result.Confidence-93) > 0.001 {
		t.Errorf("blended confidence = %v, want 93", result.Confidence)
	}
	if result.CrossReferenceScore == nil || *result.CrossReferenceScore != 100 {
		t.Errorf("cross-reference score = %v, want 100", result.CrossReferenceScore)
	}
}

func TestVerify_NoSalientTermsSkipsBlend(t *testing.T) {
	server := judgeServer(t, `{"confidence": 90, "verdict": "accurate", "concerns": [], "corrections": []}`)
	defer server.Close()

	// No proper nouns and no years: nothing for the secondary pass to
	// look up, so the primary score must stand unblended.
	crossRef := &fakeCrossRef{results: map[string]bool{}}
	v := newTestVerifier(server.URL, crossRef)

	result, err := v.Verify(context.Background(), "the armies met at dawn near the coast", "")
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if result.Confidence != 90 {
		t.Errorf("confidence = %v, want unblended 90", result.Confidence)
	}
	if result.CrossReferenceScore != nil {
		t.Error("a pass that checked nothing must not record a score")
	}
}

func TestVerify_ConfidenceCapped(t *testing.T) {
	server := judgeServer(t, `{"confidence": 100, "verdict": "accurate", "concerns": [], "corrections": []}`)
	defer server.Close()

	crossRef := &fakeCrossRef{results: map[string]bool{}}
	v := newTestVerifier(server.URL, crossRef)
	for _, term := range crossRefTerms("Apollo 11 landed on the Moon in 1969") {
		crossRef.results[term] = true
	}

	result, err := v.Verify(context.Background(), "Apollo 11 landed on the Moon in 1969", "")
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if result.Confidence > 98 {
		t.Errorf("confidence = %v, must never exceed the 98 cap", result.Confidence)
	}
}

func TestVerify_CrossRefErrorFallsBackToPrimary(t *testing.T) {
	server := judgeServer(t, `{"confidence": 92, "verdict": "accurate", "concerns": [], "corrections": []}`)
	defer server.Close()

	v := newTestVerifier(server.URL, &fakeCrossRef{err: errors.New("lookup down")})

	result, err := v.Verify(context.Background(), "The Battle of Hastings occurred in 1066", "")
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if result.Confidence != 92 {
		t.Errorf("confidence = %v, want primary-only 92", result.Confidence)
	}
	if result.CrossReferenceScore != nil {
		t.Error("failed secondary pass must not record a score")
	}
}

func TestVerify_MalformedJudgeFailsClosed(t *testing.T) {
	server := judgeServer(t, `this is not json`)
	defer server.Close()

	v := newTestVerifier(server.URL, nil)

	result, err := v.Verify(context.Background(), "Some text", "")
	if err == nil {
		t.Fatal("malformed judge output should surface an error")
	}
	if result.Confidence != 0 {
		t.Errorf("confidence = %v, want 0 on failure", result.Confidence)
	}
	if result.Verdict != models.VerdictError {
		t.Errorf("verdict = %v, want error", result.Verdict)
	}
}

func TestBuildCorrectionPrompt(t *testing.T) {
	prompt := BuildCorrectionPrompt(
		"The Battle of Hastings occurred in 1067",
		[]string{"the year looks wrong"},
		[]string{"change 1067 to 1066"},
	)

	for _, want := range []string{"1067", "the year looks wrong", "change 1067 to 1066"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("correction prompt missing %q", want)
		}
	}
}
