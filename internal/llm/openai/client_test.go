package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/parsemed/internal/common"
	"github.com/joseph-ayodele/parsemed/internal/entity"
	"github.com/joseph-ayodele/parsemed/internal/llm"
)

func completionServer(t *testing.T, content string, inspect func(body map[string]any)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if inspect != nil {
			inspect(body)
		}
		resp := map[string]any{
			"choices": []map[string]any{{
				"message":       map[string]any{"role": "assistant", "content": content},
				"finish_reason": "stop",
			}},
		}
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestClient(srv *httptest.Server, lenient bool) *Client {
	return NewClient(Config{
		APIKey:      "test-key",
		BaseURL:     srv.URL + "/v1/",
		Temperature: 0.2,
		Lenient:     lenient,
	}, nil)
}

func TestExtractAttributesTables(t *testing.T) {
	srv := completionServer(t, "```json\n{\"table_1\":[{\"group\":\"Clinical\"},{\"SOA\":\"58\"}]}\n```", func(body map[string]any) {
		assert.Equal(t, DefaultModel, body["model"])
		assert.EqualValues(t, DefaultMaxTokens, body["max_tokens"])
		assert.InDelta(t, 0.2, body["temperature"], 1e-6)
		assert.Equal(t, map[string]any{"type": "json_object"}, body["response_format"])
		msgs := body["messages"].([]any)
		require.Len(t, msgs, 2)
		assert.Equal(t, llm.SystemPrompt, msgs[0].(map[string]any)["content"])
		assert.Contains(t, msgs[1].(map[string]any)["content"], "TABLE 1. Outcomes")
	})

	out, err := newTestClient(srv, true).ExtractAttributes(context.Background(), llm.ExtractRequest{Markdown: "TABLE 1. Outcomes"})
	require.NoError(t, err)
	assert.Equal(t, []string{"table_1"}, out.Document.Keys())
	assert.Equal(t, []string{"code_fence"}, out.Repairs)
	assert.Equal(t, DefaultModel, out.Model)
	assert.JSONEq(t, `{"table_1":[{"group":"Clinical"},{"SOA":"58"}]}`, string(out.Raw))
}

func TestExtractAttributesTemplateFillsMissing(t *testing.T) {
	srv := completionServer(t, `{"Year":"2021"}`, nil)

	out, err := newTestClient(srv, false).ExtractAttributes(context.Background(), llm.ExtractRequest{
		Markdown: "some study",
		Template: []entity.TemplateAttribute{
			{Name: "Sample size", Query: "How many patients?"},
			{Name: "Year", Query: "Publication year"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, `{"Sample size":"","Year":"2021"}`, string(out.Raw))
}

func TestExtractAttributesStrictRejectsRepairs(t *testing.T) {
	srv := completionServer(t, "```json\n{\"a\":\"b\"}\n```", nil)
	_, err := newTestClient(srv, false).ExtractAttributes(context.Background(), llm.ExtractRequest{Markdown: "x"})
	require.Error(t, err)
	assert.ErrorIs(t, err, llm.ErrInvalidOutput)
}

func TestExtractAttributesRejectsGarbage(t *testing.T) {
	srv := completionServer(t, "I could not find any tables.", nil)
	_, err := newTestClient(srv, true).ExtractAttributes(context.Background(), llm.ExtractRequest{Markdown: "x"})
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrUpstream)
}

func TestExtractAttributesEmptyMarkdown(t *testing.T) {
	c := NewClient(Config{APIKey: "k"}, nil)
	_, err := c.ExtractAttributes(context.Background(), llm.ExtractRequest{Markdown: "  "})
	assert.ErrorIs(t, err, common.ErrInvalidInput)
}

func TestExtractAttributesUpstreamFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"bad key"}}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := newTestClient(srv, true).ExtractAttributes(context.Background(), llm.ExtractRequest{Markdown: "x"})
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrUpstream)
}
