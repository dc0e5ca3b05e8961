package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"
)

// ExtractRequest carries everything one extraction call needs.
type ExtractRequest struct {
	CombinedText string
	Fields       []FieldSpec // empty -> DefaultExtractionFields
	CustomPrompt string
}

// Engine turns merged recognition text into a validated record. A nil
// completer puts the engine in mock mode: deterministic canned records that
// validate against the requested schema.
type Engine struct {
	completer Completer
	logger    *slog.Logger
}

func NewEngine(completer Completer, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{completer: completer, logger: logger}
}

// Extract never returns an error: its output is always a JSON-serializable
// map, either a fully-validated record or a uniform error descriptor
// {error, details?, raw_content?}. Validation failure is data for human
// review, not a pipeline failure.
func (e *Engine) Extract(ctx context.Context, req ExtractRequest) map[string]any {
	fields := req.Fields
	if len(fields) == 0 {
		fields = DefaultExtractionFields()
	}
	schema := BuildSchema(fields, e.logger)

	if e.completer == nil {
		e.logger.Warn("llm.extract.no_provider", "hint", "returning mock record")
		return e.mockRecord(schema)
	}

	start := time.Now()
	e.logger.Info("llm.extract.start",
		"fields", schema.Len(),
		"text_len", len(req.CombinedText),
		"custom_prompt", req.CustomPrompt != "",
	)

	prompt := BuildExtractionPrompt(req.CombinedText, schema, req.CustomPrompt)
	content, err := e.completer.Complete(ctx, ExtractionSystemPrompt, prompt, nil)
	if err != nil {
		e.logger.Error("llm.extract.provider_error", "error", err, "elapsed_ms", time.Since(start).Milliseconds())
		return errorDescriptor(fmt.Sprintf("language model call failed: %v", err), nil, nil)
	}
	if content == "" {
		e.logger.Warn("llm.extract.empty_response")
		return errorDescriptor("language model returned empty content", nil, nil)
	}

	parsed, cleaned, perr := DecodeObject(content)
	if perr != nil {
		e.logger.Error("llm.extract.parse_failed", "error", perr, "content_len", len(content))
		return errorDescriptor(fmt.Sprintf("response is not valid JSON: %v", perr), nil, cleaned)
	}

	shaped, _ := json.Marshal(parsed)
	if serr := schema.ValidateShape(shaped); serr != nil {
		e.logger.Error("llm.extract.shape_failed", "error", serr, "elapsed_ms", time.Since(start).Milliseconds())
		return errorDescriptor(fmt.Sprintf("response shape does not match schema: %v", serr), nil, parsed)
	}

	validated, fieldErrs := schema.Validate(parsed)
	if len(fieldErrs) > 0 {
		e.logger.Error("llm.extract.validation_failed", "errors", len(fieldErrs), "elapsed_ms", time.Since(start).Milliseconds())
		return errorDescriptor("extracted record failed validation", fieldErrs, parsed)
	}

	e.logger.Info("llm.extract.ok", "fields", len(validated), "elapsed_ms", time.Since(start).Milliseconds())
	return validated
}

// errorDescriptor builds the uniform failure shape. details and rawContent
// are omitted when absent so the stored JSON stays tidy.
func errorDescriptor(msg string, details []FieldError, rawContent any) map[string]any {
	desc := map[string]any{"error": msg}
	if len(details) > 0 {
		desc["details"] = details
	}
	if rawContent != nil {
		desc["raw_content"] = rawContent
	}
	return desc
}

// mockValues are the canned answers used when no provider is configured.
// They cover every default field so the round trip always validates.
var mockValues = map[string]any{
	"name":                  "张三",
	"gender":                "男",
	"ethnicity":             "汉族",
	"id_number":             "110101199001011234",
	"address":               "北京市东城区某某街道某某号",
	"contract_date":         "2024-01-15",
	"transfer_from":         "李四",
	"transfer_from_account": "6222021234567890123",
	"channel":               "网上银行",
	"transfer_time":         "2024-01-20 14:30:00",
	"transfer_to":           "王五",
	"transfer_to_account":   "6228481234567890456",
}

// mockRecord synthesizes a record for the schema and runs it through the same
// validation as a real response. A required field with no canned value
// surfaces as a normal validation-error descriptor.
func (e *Engine) mockRecord(schema *Schema) map[string]any {
	candidate := make(map[string]any, schema.Len())
	for _, rule := range schema.Rules() {
		if v, ok := mockValues[rule.Key]; ok {
			candidate[rule.Key] = v
			continue
		}
		candidate[rule.Key] = nil
	}

	validated, fieldErrs := schema.Validate(candidate)
	if len(fieldErrs) > 0 {
		e.logger.Error("llm.mock.validation_failed", "errors", len(fieldErrs))
		return errorDescriptor("extracted record failed validation", fieldErrs, candidate)
	}
	e.logger.Info("llm.mock.ok", "fields", len(validated))
	return validated
}
