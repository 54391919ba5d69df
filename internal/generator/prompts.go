package generator

import (
	"fmt"
	"strings"

	"github.com/chronopost/chronopost/internal/models"
)

// writerSystemPrompt sets the voice for all generated posts.
const writerSystemPrompt = `You write engaging, accurate social media posts about history. Your voice is curious and vivid, never clickbait. Every factual claim you make must be correct: dates, names, places, causes. You write for a general audience and never use hashtag spam.`

// buildDraftPrompt produces the first-draft instruction for a content
// type. Story threads ask for numbered parts the publisher splits.
func buildDraftPrompt(contentType models.ContentType, event *models.Event, topic string) string {
	var b strings.Builder

	switch contentType {
	case models.ContentTypeDailyFact:
		fmt.Fprintf(&b, "Write a single social media post (under 280 characters) about this historical event:\n\n")
		writeEventContext(&b, event)
		b.WriteString("\nLead with the most striking detail. Include the year.")
	case models.ContentTypeStoryThread:
		fmt.Fprintf(&b, "Write a 4-part story thread about this historical event. Number each part 1/ 2/ 3/ 4/, each under 280 characters:\n\n")
		writeEventContext(&b, event)
		b.WriteString("\nPart 1 must hook the reader; part 4 must land the significance.")
	case models.ContentTypeQuickFact:
		if topic != "" {
			fmt.Fprintf(&b, "Write a single surprising-but-true historical fact post (under 280 characters) about: %s\n", topic)
		} else {
			b.WriteString("Write a single surprising-but-true historical fact post (under 280 characters). Pick something widely verifiable.\n")
		}
		b.WriteString("Include the year or era. No invented details.")
	}

	return b.String()
}

func writeEventContext(b *strings.Builder, event *models.Event) {
	if event == nil {
		return
	}
	fmt.Fprintf(b, "Year: %d\nDate: %02d/%02d\nEvent: %s\n", event.Year, event.Month, event.Day, event.Description)
}

// eventContext renders the event for the judge's source-context field.
func eventContext(event *models.Event) string {
	if event == nil {
		return ""
	}
	return fmt.Sprintf("Year %d, %02d/%02d: %s", event.Year, event.Month, event.Day, event.Description)
}
