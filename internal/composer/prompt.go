package composer

import (
	"fmt"
	"strings"

	"helpdesk-autoreply/internal/model"
)

const (
	defaultHistoryLimit = 10
	maxMessageChars     = 500
)

const systemPrompt = `You are an assistant drafting customer replies for a Google Business Profile management agency. Your drafts are reviewed by account managers before sending.

## Brand Voice
- Nerdy and nice, fun and friendly
- Professional but approachable
- An expert guide helping customers through the "digital jungle"
- Never use "Cheers" as a closing

## Message Format
1. Start with a greeting: "Hi {name}", "Howdy {name}" or "Good morning/afternoon {name}"
2. Keep messages to 5 sentences or less when possible
3. Be direct and concise; most customers read on mobile
4. Use bullet points only when listing 3+ distinct items
5. End with a friendly closing such as "Thanks!" or "Let me know if you have questions!"
6. Include the sign-off line if one is provided

## Services & Timelines
- Setup: 2-4 weeks to verify and set up the listing
- Optimization: 2-4 weeks, results in 30-90 days
- Management: initial optimization in the first 30 days, then ongoing monthly management
- Support: per-incident help with suspensions, duplicates and recovery

## Management Stages (first 30 days)
- Days 1-7 [Onboarding]: intake form, location group ID, tool setup
- Days 8-15 [Audit]: 100-point audit and scorecard
- Days 16-23 [Enhancement]: optimization guide
- Days 24-30 [Management]: posts, Q&A, review responses, service descriptions

## Difficult Situations
- Frustrated client: acknowledge, apologize if warranted, give clear next steps
- Unknown answer: "Let me check with the team and get back to you"
- Out of scope: explain what is included and offer alternatives

## Do NOT
- Promise specific ranking improvements
- Guarantee timelines that haven't been discussed
- Give technical Google support advice
- Write long paragraphs`

// formatHistory renders the last limit messages, oldest first
func formatHistory(messages []model.Message, limit int) string {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if len(messages) > limit {
		messages = messages[len(messages)-limit:]
	}

	lines := make([]string, 0, len(messages))
	for _, msg := range messages {
		sender := "STAFF"
		switch {
		case msg.Internal:
			sender = "STAFF (internal)"
		case msg.SenderRole == model.SenderClient:
			sender = "CLIENT"
		}
		lines = append(lines, fmt.Sprintf("[%s]: %s", sender, truncate(msg.Body, maxMessageChars)))
	}
	return strings.Join(lines, "\n\n")
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "... [truncated]"
}

func buildUserPrompt(history []model.Message, meta Metadata, historyLimit int, signOff string) string {
	clientName := meta.ClientName
	if clientName == "" {
		clientName = "there"
	}

	var b strings.Builder
	b.WriteString("Generate a draft response for this customer message.\n\n")
	b.WriteString("## Context\n")
	fmt.Fprintf(&b, "- **Source**: %s #%s\n", strings.ToUpper(string(meta.SourceType)), meta.SourceID)
	if meta.ServiceName != "" {
		fmt.Fprintf(&b, "- **Service**: %s\n", meta.ServiceName)
	}
	if meta.Subject != "" {
		fmt.Fprintf(&b, "- **Subject**: %s\n", meta.Subject)
	}
	fmt.Fprintf(&b, "- **Client Name**: %s\n", clientName)
	fmt.Fprintf(&b, "- **Status**: %s\n", meta.Status)
	if desc := meta.Stage.Describe(); desc != "" {
		fmt.Fprintf(&b, "- **Stage**: %s\n", desc)
	}
	if meta.Note != "" {
		fmt.Fprintf(&b, "- **Internal Note**: %s\n", meta.Note)
	}
	if signOff != "" {
		fmt.Fprintf(&b, "- **Sign-off**: %s\n", signOff)
	}

	b.WriteString("\n## Conversation History\n")
	b.WriteString(formatHistory(history, historyLimit))

	b.WriteString("\n\n## Message to Reply To\n")
	b.WriteString(meta.ReplyTo.Body)

	b.WriteString(`

---

Please provide:
1. A draft response following the voice and format guidelines
2. Brief notes for the reviewer (confidence level, anything to verify, suggested edits)

Format your response as:
DRAFT:
[your draft message here]

NOTES:
[your notes for the reviewer]`)

	return b.String()
}
