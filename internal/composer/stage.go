package composer

import (
	"strings"
	"time"
)

// Stage is the phase of a managed service an order is in
type Stage string

const (
	StageOnboarding  Stage = "onboarding"
	StageSetup       Stage = "setup"
	StageAudit       Stage = "audit"
	StageEnhancement Stage = "enhancement"
	StageManagement  Stage = "management"
)

var stageDescriptions = map[Stage]string{
	StageOnboarding:  "Customer is in ONBOARDING phase (Days 1-7).",
	StageSetup:       "Customer is in SETUP/AUDIT phase (Days 8-15).",
	StageAudit:       "Customer is in AUDIT phase - audit should be sent soon.",
	StageEnhancement: "Customer is in ENHANCEMENT phase (Days 16-23).",
	StageManagement:  "Customer is in ongoing MANAGEMENT phase.",
}

// Describe returns the prompt line for the stage
func (s Stage) Describe() string {
	return stageDescriptions[s]
}

// InferStage derives the service stage from the order status, falling back
// to the order's age when the status carries no stage keyword.
func InferStage(status string, createdAt, now time.Time) Stage {
	s := strings.ToLower(status)
	switch {
	case strings.Contains(s, "pending"), strings.Contains(s, "submitted"):
		return StageOnboarding
	case strings.Contains(s, "working"), strings.Contains(s, "setup"):
		return StageSetup
	case strings.Contains(s, "audit"):
		return StageAudit
	case strings.Contains(s, "enhancement"):
		return StageEnhancement
	case strings.Contains(s, "management"), strings.Contains(s, "completed"):
		return StageManagement
	}

	if createdAt.IsZero() || now.Before(createdAt) {
		return ""
	}

	day := int(now.Sub(createdAt).Hours()/24) + 1
	switch {
	case day <= 7:
		return StageOnboarding
	case day <= 15:
		return StageAudit
	case day <= 23:
		return StageEnhancement
	default:
		return StageManagement
	}
}
