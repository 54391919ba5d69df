package verifier

import (
	"fmt"
	"strings"
)

// judgeSystemPrompt instructs the judge model to return structured
// JSON only. Corrections must be specific enough to act on.
const judgeSystemPrompt = `You are a meticulous fact-checker for historical content. You evaluate short texts about historical events for factual accuracy.

Respond ONLY with a JSON object of this exact shape:
{
  "confidence": <number 0-100, your estimated likelihood the text is factually accurate>,
  "verdict": "<accurate|uncertain|inaccurate>",
  "concerns": ["<each factual concern, one per entry>"],
  "corrections": ["<each specific correction, e.g. 'change the year from 1067 to 1066', never vague advice like 'verify the dates'>"]
}

Rules:
- Dates, names, places and causal claims must all be checked.
- A text with any likely factual error cannot score above 70.
- Corrections must name the exact change to make. Vague corrections are useless.
- An empty concerns list requires confidence of at least 90.`

// buildJudgePrompt packages the draft and its source context for the
// judge.
func buildJudgePrompt(text, context string) string {
	var b strings.Builder
	b.WriteString("Evaluate the factual accuracy of this text:\n\n")
	b.WriteString(text)
	if context != "" {
		b.WriteString("\n\nSource context (the event the text was written from):\n")
		b.WriteString(context)
	}
	return b.String()
}

// BuildCorrectionPrompt packages the prior draft, the judge's
// concerns and its corrections into a follow-up generation
// instruction.
func BuildCorrectionPrompt(priorText string, concerns, corrections []string) string {
	var b strings.Builder
	b.WriteString("Your previous draft had factual problems. Rewrite it, applying every correction below while keeping the tone and length.\n\n")
	b.WriteString("Previous draft:\n")
	b.WriteString(priorText)

	if len(concerns) > 0 {
		b.WriteString("\n\nConcerns raised:\n")
		for _, concern := range concerns {
			fmt.Fprintf(&b, "- %s\n", concern)
		}
	}

	if len(corrections) > 0 {
		b.WriteString("\nRequired corrections:\n")
		for _, correction := range corrections {
			fmt.Fprintf(&b, "- %s\n", correction)
		}
	}

	b.WriteString("\nReturn only the corrected text.")
	return b.String()
}
