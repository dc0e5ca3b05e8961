package entity

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/casekit/evidence-extractor/constants"
	"github.com/casekit/evidence-extractor/internal/recognize"
)

// Case represents one uploaded evidence document and everything the pipeline
// computed for it. Mutated exclusively through the case store as stages
// complete.
type Case struct {
	ID               uuid.UUID            `json:"id"`
	OriginalFilename string               `json:"original_filename"`
	FilePath         string               `json:"file_path"`
	Status           constants.CaseStatus `json:"status"`

	PageCount int   `json:"page_count,omitempty"`
	FileSize  int64 `json:"file_size,omitempty"`

	OCRText           *string         `json:"ocr_text,omitempty"`
	VLMText           *string         `json:"vlm_text,omitempty"`
	ExtractedInfo     json.RawMessage `json:"extracted_info,omitempty"`
	ProcessingDetails json.RawMessage `json:"processing_details,omitempty"`

	ExtractionFields json.RawMessage `json:"extraction_fields,omitempty"`
	CustomPrompt     *string         `json:"custom_prompt,omitempty"`

	ErrorMessage *string `json:"error_message,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   *time.Time `json:"updated_at,omitempty"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`
}

// ProcessingDetails is the persisted per-page breakdown of both recognition
// stages, stored on the case as JSON.
type ProcessingDetails struct {
	PageCount int                    `json:"page_count"`
	OCRPages  []recognize.PageResult `json:"ocr_pages"`
	VLMPages  []recognize.PageResult `json:"vlm_pages"`
	OCRStats  StageStats             `json:"ocr_stats"`
	VLMStats  StageStats             `json:"vlm_stats"`
}

type StageStats struct {
	TotalPages      int `json:"total_pages"`
	SuccessfulPages int `json:"successful_pages"`
}
