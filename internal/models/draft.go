package models

// ContentDraft is one attempt's worth of generated narrative text.
// Each correction cycle supersedes the previous draft entirely.
type ContentDraft struct {
	Text    string `json:"text"`
	Attempt int    `json:"attempt"`
}

// Verdict is the judge's qualitative assessment of a draft.
type Verdict string

const (
	VerdictAccurate   Verdict = "accurate"
	VerdictUncertain  Verdict = "uncertain"
	VerdictInaccurate Verdict = "inaccurate"
	// VerdictError marks a failed judge call. Error results always carry
	// confidence 0 so a broken judge can never wave content through.
	VerdictError Verdict = "error"
)

// VerificationResult is the outcome of one verification call.
// Results are computed fresh for every text; they are never reused
// across drafts.
type VerificationResult struct {
	Confidence          float64  `json:"confidence"` // 0-100
	Verdict             Verdict  `json:"verdict"`
	Concerns            []string `json:"concerns"`
	Corrections         []string `json:"corrections"`
	CrossReferenceScore *float64 `json:"cross_reference_score,omitempty"`
}

// Errored reports whether the result came from a failed judge call.
func (r VerificationResult) Errored() bool {
	return r.Verdict == VerdictError
}
