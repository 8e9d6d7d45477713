// Package domain contains core concepts of the conversation engine.
// This file defines Participant entities and related invariants.
// No runtime, network, or UI logic should be added here.
package domain

// Participant is a configured model identity able to generate turns.
//
// Participants are mutable configuration shared across sessions and read
// live at the top of every loop iteration. Disabling a participant is the
// only way to remove it from future turns; it is never retroactive.
type Participant struct {
	ID          string     `json:"id" validate:"required"`
	Name        string     `json:"name" validate:"required,min=1,max=64"`
	Nickname    string     `json:"nickname,omitempty" validate:"omitempty,max=64"`
	Alliance    string     `json:"alliance,omitempty" validate:"omitempty,max=32"`
	Enabled     bool       `json:"enabled"`
	Provider    string     `json:"provider" validate:"required"`
	Model       string     `json:"model" validate:"required"`
	APIKey      string     `json:"api_key,omitempty"`
	BaseURL     string     `json:"base_url,omitempty" validate:"omitempty,url"`
	Temperature float64    `json:"temperature" validate:"gte=0,lte=2"`
	Usage       TokenUsage `json:"usage"`
}

// TokenUsage accumulates prompt and completion counters.
type TokenUsage struct {
	Prompt     int `json:"prompt"`
	Completion int `json:"completion"`
	Total      int `json:"total"`
}

// Add merges another usage sample into the counter.
func (u *TokenUsage) Add(other TokenUsage) {
	u.Prompt += other.Prompt
	u.Completion += other.Completion
	u.Total += other.Total
}
