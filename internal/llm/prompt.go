package llm

import (
	"fmt"
	"strings"

	"github.com/casekit/evidence-extractor/constants"
)

// textPlaceholder is the substitution point for the combined recognition text
// inside a custom prompt.
const textPlaceholder = "{text}"

// ExtractionSystemPrompt frames the extraction call for the model.
const ExtractionSystemPrompt = "You are a professional evidence-material extraction assistant. " +
	"You read OCR output from legal documents, reason about the surrounding context, " +
	"and extract structured facts accurately. The text below is recognition output; " +
	"extract the requested information from it."

const defaultPromptTemplate = `You are a professional evidence-material extraction assistant. Extract the key facts from the text below and return them as JSON.

Information to extract:
%s

Text:
%s

Return STRICTLY the following JSON shape; set a field to null when it cannot be extracted:
%s

Rules:
1. Return JSON only, no surrounding prose.
2. Make sure the JSON is well-formed.
3. Partial information is acceptable when the source is unclear.
4. Use date format YYYY-MM-DD and datetime format YYYY-MM-DD HH:MM:SS.
5. Keep ID numbers exactly as printed.
6. Keep bank account numbers in their original format.`

// BuildExtractionPrompt renders the user prompt for the extraction call.
// A custom prompt is used verbatim with the combined text substituted in;
// otherwise the default template is filled from the schema.
func BuildExtractionPrompt(combinedText string, schema *Schema, customPrompt string) string {
	if customPrompt != "" {
		return strings.ReplaceAll(customPrompt, textPlaceholder, combinedText)
	}

	var descs []string
	var shape []string
	for i, rule := range schema.Rules() {
		marker := "(optional)"
		if rule.Required {
			marker = "(required)"
		}
		hint := ""
		switch rule.Type {
		case constants.FieldDate:
			hint = " (date format: YYYY-MM-DD)"
		case constants.FieldDatetime:
			hint = " (datetime format: YYYY-MM-DD HH:MM:SS)"
		}
		descs = append(descs, fmt.Sprintf("%d. %s: %s %s%s", i+1, rule.Key, rule.Label, marker, hint))
		shape = append(shape, fmt.Sprintf("    %q: \"extract %s (type: %s)\"", rule.Key, rule.Label, rule.Type))
	}

	shapeText := "{\n" + strings.Join(shape, ",\n") + "\n}"
	return fmt.Sprintf(defaultPromptTemplate, strings.Join(descs, "\n"), combinedText, shapeText)
}
