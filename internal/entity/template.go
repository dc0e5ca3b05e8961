package entity

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Template is a reusable extraction configuration: a named field-spec list
// plus an optional custom prompt.
type Template struct {
	ID               uuid.UUID       `json:"id"`
	Name             string          `json:"name"`
	Description      *string         `json:"description,omitempty"`
	ExtractionFields json.RawMessage `json:"extraction_fields"`
	CustomPrompt     *string         `json:"custom_prompt,omitempty"`
	IsDefault        bool            `json:"is_default"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        *time.Time      `json:"updated_at,omitempty"`
}
