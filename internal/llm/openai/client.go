package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/joseph-ayodele/parsemed/internal/attributes"
	"github.com/joseph-ayodele/parsemed/internal/common"
	"github.com/joseph-ayodele/parsemed/internal/llm"
)

var _ llm.AttributeExtractor = (*Client)(nil)

type chatCompletion struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

// ExtractAttributes implements llm.AttributeExtractor using chat/completions
// in JSON mode.
func (c *Client) ExtractAttributes(ctx context.Context, req llm.ExtractRequest) (llm.Extraction, error) {
	start := time.Now()
	log := common.LoggerFrom(ctx, c.logger)

	if strings.TrimSpace(req.Markdown) == "" {
		return llm.Extraction{}, common.NewAppError("LLM_ERROR", "no markdown provided", common.ErrInvalidInput)
	}

	log.Info("llm.extract.start",
		"model", c.cfg.Model,
		"temp", c.cfg.Temperature,
		"markdown_len", len(req.Markdown),
		"template_attributes", len(req.Template),
	)

	body := map[string]any{
		"model":           c.cfg.Model,
		"temperature":     c.cfg.Temperature,
		"max_tokens":      c.cfg.MaxTokens,
		"response_format": map[string]any{"type": "json_object"},
		"messages": []map[string]any{
			{"role": "system", "content": llm.SystemPrompt},
			{"role": "user", "content": llm.BuildUserPrompt(req)},
		},
	}
	headers := map[string]string{"Authorization": "Bearer " + c.cfg.APIKey}
	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"

	raw, _, err := llm.SendJSON(ctx, c.http, endpoint, body, headers, log, llm.WithRetries(c.cfg.MaxRetries))
	if err != nil {
		log.Error("llm.extract.http_error", "error", err, "elapsed_ms", time.Since(start).Milliseconds())
		return llm.Extraction{}, err
	}

	var cc chatCompletion
	if err := json.Unmarshal(raw, &cc); err != nil {
		log.Error("llm.extract.decode_error", "error", err, "raw_bytes", len(raw))
		return llm.Extraction{}, fmt.Errorf("%w: decode openai response: %v", common.ErrUpstream, err)
	}
	if len(cc.Choices) == 0 {
		log.Error("llm.extract.no_choices", "raw_bytes", len(raw))
		return llm.Extraction{}, fmt.Errorf("%w: no choices in openai response", common.ErrUpstream)
	}
	if cc.Choices[0].FinishReason == "length" {
		log.Warn("llm.extract.truncated", "max_tokens", c.cfg.MaxTokens)
	}

	content := cc.Choices[0].Message.Content
	cleaned, repairs, err := llm.CleanModelOutput(content, log)
	if err != nil {
		log.Error("llm.extract.invalid_output", "error", err, "content_len", len(content))
		return llm.Extraction{}, err
	}
	if len(repairs) > 0 && !c.cfg.Lenient {
		log.Error("llm.extract.repairs_rejected", "repairs", repairs)
		return llm.Extraction{}, fmt.Errorf("%w: output needed repairs %v", llm.ErrInvalidOutput, repairs)
	}

	doc, err := attributes.ParseDocument(cleaned)
	if err != nil {
		return llm.Extraction{}, fmt.Errorf("%w: %v", llm.ErrInvalidOutput, err)
	}
	doc, missing := llm.AlignToTemplate(doc, req.Template)
	if len(missing) > 0 {
		log.Warn("llm.extract.missing_attributes", "missing", missing)
	}

	out, err := doc.MarshalJSON()
	if err != nil {
		return llm.Extraction{}, fmt.Errorf("encode document: %w", err)
	}
	if err := llm.ValidateJSONAgainstSchema(llm.BuildAttributesJSONSchema(req.Template), out); err != nil {
		log.Error("llm.extract.schema_validation_failed", "error", err)
		return llm.Extraction{}, fmt.Errorf("%w: %v", llm.ErrInvalidOutput, err)
	}

	log.Info("llm.extract.ok",
		"attributes", doc.Len(),
		"repairs", len(repairs),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return llm.Extraction{Document: doc, Raw: out, Model: c.cfg.Model, Repairs: repairs}, nil
}
