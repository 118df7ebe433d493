package entity

import (
	"time"

	"github.com/google/uuid"
)

// TemplateAttribute is one attribute the extractor is asked to fill, with
// the question that locates it in the document.
type TemplateAttribute struct {
	Name  string `json:"name"`
	Query string `json:"query"`
}

// TemplateJSON is the stored body of a template.
type TemplateJSON struct {
	Attributes []TemplateAttribute `json:"attributes"`
}

// Template is a named, ordered list of attributes used to seed extraction.
type Template struct {
	ID           uuid.UUID    `json:"id"`
	Name         string       `json:"name"`
	TemplateJSON TemplateJSON `json:"template_json"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}
