package llm

import "github.com/joseph-ayodele/parsemed/internal/entity"

// BuildAttributesJSONSchema returns the JSON Schema model output is checked
// against: a non-empty object, with every template attribute described when a
// template is given.
func BuildAttributesJSONSchema(template []entity.TemplateAttribute) map[string]any {
	schema := map[string]any{
		"$schema":       "https://json-schema.org/draft/2020-12/schema",
		"type":          "object",
		"minProperties": 1,
	}
	if len(template) == 0 {
		return schema
	}
	props := make(map[string]any, len(template))
	for _, a := range template {
		props[a.Name] = map[string]any{
			"description": a.Query,
			"type":        []any{"string", "number", "boolean", "object", "array", "null"},
		}
	}
	schema["properties"] = props
	return schema
}
