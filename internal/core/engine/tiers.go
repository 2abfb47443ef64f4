package engine

import "strings"

// DefaultTiers maps a model to the next cheaper tier used for followups.
func DefaultTiers() map[string]string {
	return map[string]string{
		"claude-3-opus":     "claude-3-5-sonnet",
		"claude-3-5-sonnet": "claude-3-5-haiku",
		"gpt-4o":            "gpt-4o-mini",
		"gpt-4-turbo":       "gpt-3.5-turbo",
		"deepseek-reasoner": "deepseek-chat",
		"qwen-max":          "qwen-plus",
		"qwen-plus":         "qwen-turbo",
	}
}

// Followup sampling adjustments.
const (
	followupTemperatureDrop  = 0.3
	followupTemperatureFloor = 0.3
)

// StepDown returns the next cheaper model, or model itself when none is mapped.
func StepDown(tiers map[string]string, model string) string {
	if tiers == nil {
		tiers = DefaultTiers()
	}
	if next, ok := tiers[strings.TrimSpace(model)]; ok && strings.TrimSpace(next) != "" {
		return next
	}
	return model
}

// FollowupMaxTokens halves maxTokens with a floor of one. Validated skills
// carry at least two tokens, so the result never exceeds half the original.
func FollowupMaxTokens(maxTokens int) int {
	if half := maxTokens / 2; half > 1 {
		return half
	}
	return 1
}

// FollowupTemperature lowers temperature by 0.3 without going under 0.3.
func FollowupTemperature(temperature float64) float64 {
	lowered := temperature - followupTemperatureDrop
	if lowered < followupTemperatureFloor {
		return followupTemperatureFloor
	}
	return lowered
}
