package composer

import (
	"strings"

	"helpdesk-autoreply/internal/model"
)

const noNotes = "No notes provided"

var lowConfidenceSignals = []string{
	"not sure",
	"unclear",
	"need more",
	"check with",
	"might",
	"possibly",
	"complex",
	"escalate",
}

// parseResponse splits model output into the draft and the reviewer notes
func parseResponse(text string) (draft, notes string) {
	if !strings.Contains(text, "DRAFT:") || !strings.Contains(text, "NOTES:") {
		return strings.TrimSpace(text), noNotes
	}

	parts := strings.SplitN(text, "NOTES:", 2)
	draft = strings.TrimSpace(strings.Replace(parts[0], "DRAFT:", "", 1))
	notes = strings.TrimSpace(parts[1])
	return draft, notes
}

// assessConfidence labels a draft: reviewer-facing doubt in the notes means
// low, long drafts are medium, everything else is high.
func assessConfidence(draft, notes string) model.Confidence {
	lower := strings.ToLower(notes)
	for _, signal := range lowConfidenceSignals {
		if strings.Contains(lower, signal) {
			return model.ConfidenceLow
		}
	}

	if len(draft) > 400 {
		return model.ConfidenceMedium
	}

	return model.ConfidenceHigh
}
