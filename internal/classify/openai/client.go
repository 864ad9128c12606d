package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/docpipe/constants"
	"github.com/joseph-ayodele/docpipe/internal/classify"
	"github.com/joseph-ayodele/docpipe/internal/common"
)

// Classify implements classify.DocumentClassifier using text-only
// chat/completions against any OpenAI-compatible endpoint.
func (c *Client) Classify(ctx context.Context, req classify.Request) (classify.Classification, []byte, error) {
	rid := uuid.New().String()
	start := time.Now()

	allowedTypes := constants.DocumentTypeStrings()
	c.logger.Info("llm.classify.start",
		"req_id", rid,
		"document_id", common.DocumentIDFromContext(ctx),
		"model", c.cfg.Model,
		"temp", c.cfg.Temperature,
		"text_len", len(req.Text),
		"key_values", len(req.KeyValues),
		"passages", len(req.Passages),
	)

	schema := classify.BuildClassificationJSONSchema(allowedTypes)
	sys := classify.BuildSystemPrompt(allowedTypes)
	user := classify.BuildUserPrompt(req)

	body := map[string]any{
		"model":           c.cfg.Model,
		"temperature":     c.cfg.Temperature,
		"response_format": map[string]any{"type": "json_object"},
		"messages": []map[string]any{
			{"role": "system", "content": sys},
			{"role": "user", "content": user + "\n\nReturn ONLY JSON that matches the provided schema."},
			{"role": "system", "content": "JSON Schema:\n" + mustJSON(schema)},
		},
	}
	if c.cfg.MaxTokens > 0 {
		body["max_tokens"] = c.cfg.MaxTokens
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
	raw, httpErr := c.post(ctx, endpoint, body)
	if httpErr != nil {
		c.logger.Error("llm.classify.http_error",
			"req_id", rid, "error", httpErr,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return classify.Classification{}, nil, httpErr
	}

	var cc struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(raw, &cc); err != nil {
		c.logger.Error("llm.classify.decode_error",
			"req_id", rid, "error", err, "raw_bytes", len(raw),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return classify.Classification{}, raw, fmt.Errorf("decode model response: %w", err)
	}
	if len(cc.Choices) == 0 {
		c.logger.Error("llm.classify.no_choices",
			"req_id", rid, "raw", string(raw),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return classify.Classification{}, raw, fmt.Errorf("no choices in model response")
	}

	content, err := classify.ExtractFirstJSONObject([]byte(cc.Choices[0].Message.Content))
	if err != nil {
		c.logger.Error("llm.classify.no_json",
			"req_id", rid, "error", err, "content", cc.Choices[0].Message.Content,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return classify.Classification{}, []byte(cc.Choices[0].Message.Content),
			fmt.Errorf("%w: %v", common.ErrValidation, err)
	}

	// Validate strictly first; repair deterministically and try once more.
	if err := classify.ValidateJSONAgainstSchema(schema, content); err != nil {
		cleaned, dropped, sErr := classify.SanitizeClassification(content)
		if sErr != nil {
			c.logger.Error("llm.classify.sanitize_failed",
				"req_id", rid, "error", sErr,
				"elapsed_ms", time.Since(start).Milliseconds(),
			)
			return classify.Classification{}, content, fmt.Errorf("%w: sanitize failed: %v", common.ErrValidation, sErr)
		}
		if vErr := classify.ValidateJSONAgainstSchema(schema, cleaned); vErr != nil {
			c.logger.Error("llm.classify.schema_validation_failed",
				"req_id", rid, "error", vErr, "content", string(content),
				"elapsed_ms", time.Since(start).Milliseconds(),
			)
			return classify.Classification{}, content, fmt.Errorf("%w: schema validation failed: %v", common.ErrValidation, vErr)
		}
		c.logger.Warn("llm.classify.lenient_sanitize_applied",
			"req_id", rid, "dropped", dropped,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		content = cleaned
	}

	var out classify.Classification
	if err := json.Unmarshal(content, &out); err != nil {
		c.logger.Error("llm.classify.unmarshal_failed",
			"req_id", rid, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return classify.Classification{}, content, fmt.Errorf("%w: unmarshal classification: %v", common.ErrValidation, err)
	}

	c.logger.Info("llm.classify.ok",
		"req_id", rid,
		"document_type", out.DocumentType,
		"confidence", out.Confidence,
		"language", out.Language,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return out, content, nil
}

func (c *Client) post(ctx context.Context, url string, body map[string]any) ([]byte, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("model http error: %w", err)
	}
	defer func(body io.ReadCloser) {
		if err := body.Close(); err != nil {
			c.logger.Warn("model response body close error", "error", err)
		}
	}(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		buf := new(bytes.Buffer)
		_, _ = buf.ReadFrom(resp.Body)
		return nil, fmt.Errorf("model status %d: %s", resp.StatusCode, buf.String())
	}

	buf := new(bytes.Buffer)
	_, _ = buf.ReadFrom(resp.Body)
	return buf.Bytes(), nil
}

func mustJSON(v any) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}
