package llm

import (
	"context"

	"github.com/joseph-ayodele/parsemed/internal/attributes"
	"github.com/joseph-ayodele/parsemed/internal/entity"
)

type ExtractRequest struct {
	Markdown     string
	FilenameHint string

	// Template, when set, names the attributes to extract. Without it the
	// extractor returns the document's tables.
	Template []entity.TemplateAttribute
}

// Extraction is the outcome of one extractor call.
type Extraction struct {
	Document *attributes.Document
	Raw      []byte
	Model    string
	// Repairs lists the fixes applied to the model output before it parsed.
	Repairs []string
}

// AttributeExtractor is the interface the pipeline depends on.
type AttributeExtractor interface {
	ExtractAttributes(ctx context.Context, req ExtractRequest) (Extraction, error)
}
