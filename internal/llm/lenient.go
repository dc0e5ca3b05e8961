package llm

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// reJSONBlock grabs the first-to-last brace span across newlines, the same
// bounded-block search the validator falls back to when models wrap their
// JSON in prose.
var reJSONBlock = regexp.MustCompile(`(?s)\{.*\}`)

// StripFences removes markdown code fences so a fenced response parses the
// same as a bare one.
func StripFences(content string) string {
	s := strings.ReplaceAll(content, "```json", "")
	s = strings.ReplaceAll(s, "```", "")
	return strings.TrimSpace(s)
}

// DecodeObject parses free-form model output into a JSON object using a
// two-phase strategy: direct parse first, then the first {...} block found by
// pattern search. The cleaned text is returned alongside so callers can
// preserve it for diagnostics when both phases fail.
func DecodeObject(content string) (map[string]any, string, error) {
	cleaned := StripFences(content)

	var m map[string]any
	if err := json.Unmarshal([]byte(cleaned), &m); err == nil {
		return m, cleaned, nil
	}

	block := reJSONBlock.FindString(cleaned)
	if block == "" {
		return nil, cleaned, fmt.Errorf("no JSON object found in response")
	}
	if err := json.Unmarshal([]byte(block), &m); err != nil {
		return nil, cleaned, fmt.Errorf("extracted JSON block does not parse: %w", err)
	}
	return m, cleaned, nil
}
