package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/parsemed/internal/attributes"
	"github.com/joseph-ayodele/parsemed/internal/common"
	"github.com/joseph-ayodele/parsemed/internal/entity"
)

func TestCleanModelOutput(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
		repairs []string
		wantErr bool
	}{
		{name: "plain object", content: `{"a":1}`, want: `{"a":1}`, repairs: []string{}},
		{name: "fenced json", content: "```json\n{\"a\":1}\n```", want: `{"a":1}`, repairs: []string{"code_fence"}},
		{name: "prose around object", content: "Here you go: {\"a\":{\"b\":2}} hope it helps", want: `{"a":{"b":2}}`, repairs: []string{"isolated_object"}},
		{name: "bare array", content: `[{"x":"1"}]`, want: `{"table_1":[{"x":"1"}]}`, repairs: []string{"wrapped_array"}},
		{name: "not json", content: "sorry, I cannot help", wantErr: true},
		{name: "scalar", content: `"just text"`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, repairs, err := CleanModelOutput(tt.content, nil)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrInvalidOutput)
				assert.ErrorIs(t, err, common.ErrUpstream)
				return
			}
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(out))
			assert.Equal(t, tt.repairs, repairs)
		})
	}
}

func TestAlignToTemplate(t *testing.T) {
	doc, err := attributes.ParseDocument([]byte(`{"extra":"x","Age":"44"}`))
	require.NoError(t, err)

	out, missing := AlignToTemplate(doc, []entity.TemplateAttribute{
		{Name: "Diagnosis", Query: "What was diagnosed?"},
		{Name: "Age", Query: "Patient age"},
	})
	assert.Equal(t, []string{"Diagnosis"}, missing)
	b, err := out.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `{"Diagnosis":"","Age":"44","extra":"x"}`, string(b))

	same, missing := AlignToTemplate(doc, nil)
	assert.Same(t, doc, same)
	assert.Nil(t, missing)
}

func TestBuildUserPrompt(t *testing.T) {
	tables := BuildUserPrompt(ExtractRequest{Markdown: "TABLE 1. Demographics"})
	assert.Contains(t, tables, `Output a JSON object like { "table_1": [...], "table_2": [...] }`)
	assert.True(t, len(tables) > len("TABLE 1. Demographics"))
	assert.Contains(t, tables, "\n\nTABLE 1. Demographics")

	templ := BuildUserPrompt(ExtractRequest{
		Markdown:     "body",
		FilenameHint: "study.pdf",
		Template:     []entity.TemplateAttribute{{Name: "Sample size", Query: "How many patients?"}, {Name: "Year"}},
	})
	assert.Contains(t, templ, "- Sample size: How many patients?\n")
	assert.Contains(t, templ, "- Year\n")
	assert.Contains(t, templ, "Filename: study.pdf")
	assert.NotContains(t, templ, "table_1")
}

func TestAttributesSchema(t *testing.T) {
	schema := BuildAttributesJSONSchema(nil)
	assert.NoError(t, ValidateJSONAgainstSchema(schema, []byte(`{"a":[1,2]}`)))
	assert.Error(t, ValidateJSONAgainstSchema(schema, []byte(`{}`)))
	assert.Error(t, ValidateJSONAgainstSchema(schema, []byte(`[1]`)))

	withTemplate := BuildAttributesJSONSchema([]entity.TemplateAttribute{{Name: "Age", Query: "age"}})
	assert.NoError(t, ValidateJSONAgainstSchema(withTemplate, []byte(`{"Age":"44"}`)))
}
