// Package prompts manages the instructions sent to the reasoning model.
// Each stage has built-in default instructions and a fixed response
// specification. An admin may override a stage's instructions; earlier
// overrides are kept as history and at most one is in effect per stage.
package prompts

import "github.com/google/uuid"

// Prompt is a stored instruction override for a pipeline stage.
type Prompt struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	Stage        Stage     `json:"stage"`
	Instructions string    `json:"instructions"`
	Description  *string   `json:"description"`
	Active       bool      `json:"active"`
}

// OverrideCommand replaces the instructions in effect for a stage.
type OverrideCommand struct {
	Name         string  `json:"name"`
	Instructions string  `json:"instructions"`
	Description  *string `json:"description"`
}

// StageView is what the model is sent for a stage: the effective
// instructions, the fixed response specification appended to them, and the
// override in effect, if any.
type StageView struct {
	Stage        Stage   `json:"stage"`
	Instructions string  `json:"instructions"`
	Spec         string  `json:"spec"`
	Override     *Prompt `json:"override,omitempty"`
}
