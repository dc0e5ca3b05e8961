package openai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/casekit/evidence-extractor/internal/common"
	"github.com/casekit/evidence-extractor/internal/llm"
)

// System and user prompts for the vision page-analysis call.
const (
	vlmSystemPrompt = "You are a professional document-image analysis assistant, " +
		"skilled at accurately recognizing and extracting the text content of evidence documents."
	vlmUserPrompt = "Carefully analyze this evidence document image and extract all of its text content."
)

// Complete implements llm.Completer over the /chat/completions endpoint.
// When imagePNG is non-nil it is embedded as a base64 data URL, switching the
// request to the vision model.
func (c *Client) Complete(ctx context.Context, systemPrompt, userPrompt string, imagePNG []byte) (string, error) {
	if !c.Configured() {
		return "", fmt.Errorf("%w: no API key configured", common.ErrAuth)
	}

	model := c.cfg.Model
	var userContent any = userPrompt
	if imagePNG != nil {
		model = c.cfg.VisionModel
		dataURL := "data:image/png;base64," + base64.StdEncoding.EncodeToString(imagePNG)
		userContent = []map[string]any{
			{"type": "text", "text": userPrompt},
			{"type": "image_url", "image_url": map[string]any{"url": dataURL}},
		}
	}

	body := map[string]any{
		"model":       model,
		"temperature": c.cfg.Temperature,
		"messages": []map[string]any{
			{"role": "system", "content": systemPrompt},
			{"role": "user", "content": userContent},
		},
	}

	start := time.Now()
	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
	headers := map[string]string{"Authorization": "Bearer " + c.cfg.APIKey}

	raw, status, err := llm.SendJSON(ctx, c.http, endpoint, body, headers, c.logger)
	if err != nil {
		if status != 0 {
			return "", fmt.Errorf("%w: chat completion status %d: %s", common.ErrTransport, status, truncate(string(raw), 1<<10))
		}
		return "", fmt.Errorf("%w: chat completion: %v", common.ErrTransport, err)
	}

	var cc struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(raw, &cc); err != nil {
		return "", fmt.Errorf("decode chat response: %w", err)
	}
	if len(cc.Choices) == 0 {
		return "", fmt.Errorf("no choices in chat response")
	}

	content := strings.TrimSpace(cc.Choices[0].Message.Content)
	c.logger.Debug("openai.complete.ok",
		"model", model,
		"image_attached", imagePNG != nil,
		"content_len", len(content),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return content, nil
}

// AnalyzePage implements recognize.PageAnalyzer: one vision call per page
// with the fixed document-analysis prompts.
func (c *Client) AnalyzePage(ctx context.Context, png []byte) (string, error) {
	return c.Complete(ctx, vlmSystemPrompt, vlmUserPrompt, png)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "...(truncated)"
}
