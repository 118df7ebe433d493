package llm

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/joseph-ayodele/parsemed/internal/attributes"
	"github.com/joseph-ayodele/parsemed/internal/common"
	"github.com/joseph-ayodele/parsemed/internal/entity"
)

// ErrInvalidOutput is returned when model output cannot be read as a JSON object.
var ErrInvalidOutput = fmt.Errorf("%w: model output is not a JSON object", common.ErrUpstream)

var codeFence = regexp.MustCompile("(?m)^```(?:json)?|```$")

// CleanModelOutput turns a chat completion message into a JSON object.
// It strips markdown code fences, cuts surrounding prose away from the first
// {...} block and wraps a bare top-level array as "table_1". The applied
// repairs are returned for logging.
func CleanModelOutput(content string, logger *slog.Logger) ([]byte, []string, error) {
	if logger == nil {
		logger = slog.Default()
	}
	repairs := make([]string, 0, 3)

	s := strings.TrimSpace(content)
	if stripped := strings.TrimSpace(codeFence.ReplaceAllString(s, "")); stripped != s {
		s = stripped
		repairs = append(repairs, "code_fence")
	}

	if !json.Valid([]byte(s)) {
		start, end := strings.Index(s, "{"), strings.LastIndex(s, "}")
		if start < 0 || end <= start || !json.Valid([]byte(s[start:end+1])) {
			logger.Warn("llm.sanitize.unparseable", "bytes", len(content))
			return nil, repairs, ErrInvalidOutput
		}
		s = s[start : end+1]
		repairs = append(repairs, "isolated_object")
	}

	out := []byte(s)
	switch firstByte(out) {
	case '{':
	case '[':
		var buf bytes.Buffer
		buf.WriteString(`{"table_1":`)
		buf.Write(out)
		buf.WriteByte('}')
		out = buf.Bytes()
		repairs = append(repairs, "wrapped_array")
	default:
		return nil, repairs, ErrInvalidOutput
	}

	if len(repairs) > 0 {
		logger.Warn("llm.sanitize.repaired", "repairs", repairs)
	}
	return out, repairs, nil
}

func firstByte(b []byte) byte {
	b = bytes.TrimSpace(b)
	if len(b) == 0 {
		return 0
	}
	return b[0]
}

// AlignToTemplate orders doc by the template's attribute order, adds an
// empty string for every attribute the model left out and keeps any extra
// keys after them. It returns the names that had to be added.
func AlignToTemplate(doc *attributes.Document, template []entity.TemplateAttribute) (*attributes.Document, []string) {
	if len(template) == 0 {
		return doc, nil
	}
	out := attributes.NewDocument()
	var missing []string
	for _, a := range template {
		if v, ok := doc.Get(a.Name); ok {
			out.Set(a.Name, v)
			continue
		}
		out.Set(a.Name, attributes.String(""))
		missing = append(missing, a.Name)
	}
	for _, k := range doc.Keys() {
		if !out.Has(k) {
			v, _ := doc.Get(k)
			out.Set(k, v)
		}
	}
	return out, missing
}
