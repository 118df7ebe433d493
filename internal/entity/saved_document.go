package entity

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// SavedDocument is a finalized attributes document.
type SavedDocument struct {
	ID              uuid.UUID       `json:"id"`
	Filename        string          `json:"filename"`
	SourceReference *string         `json:"source_reference,omitempty"`
	JSONKey         string          `json:"json_key"`
	ExtractedJSON   json.RawMessage `json:"extracted_json"`
	CreatedAt       time.Time       `json:"created_at"`
}
