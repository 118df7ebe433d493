package entity

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/parsemed/constants"
)

// ExtractJob records one run of the upload pipeline.
type ExtractJob struct {
	ID            uuid.UUID           `json:"id"`
	Filename      string              `json:"filename"`
	PDFKey        string              `json:"pdf_key"`
	TemplateID    *uuid.UUID          `json:"template_id,omitempty"`
	Status        constants.JobStatus `json:"status"`
	Pages         int                 `json:"pages,omitempty"`
	Markdown      *string             `json:"markdown,omitempty"`
	ExtractedJSON json.RawMessage     `json:"extracted_json,omitempty"`
	ModelName     *string             `json:"model_name,omitempty"`
	ErrorMessage  *string             `json:"error_message,omitempty"`
	StartedAt     time.Time           `json:"started_at"`
	FinishedAt    *time.Time          `json:"finished_at,omitempty"`
}
