package llm

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/casekit/evidence-extractor/constants"
)

// FieldRule is one compiled schema entry: the declared type plus a coercion
// function resolved from a fixed table. No reflection, no codegen.
type FieldRule struct {
	Key      string
	Label    string
	Type     constants.FieldType
	Required bool
}

// FieldError describes one field-level validation failure.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Schema is the runtime-compiled form of a field-spec list. Built fresh per
// extraction call and discarded after validation.
type Schema struct {
	rules []FieldRule
	byKey map[string]FieldRule
}

// BuildSchema compiles field specs into a validation schema. Specs with an
// empty or duplicate key are dropped with a warning; unknown declared types
// degrade to text with a warning. Zero surviving fields yields an empty
// schema that accepts an empty record.
func BuildSchema(specs []FieldSpec, logger *slog.Logger) *Schema {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Schema{byKey: make(map[string]FieldRule, len(specs))}
	for _, spec := range specs {
		key := strings.TrimSpace(spec.Key)
		if key == "" {
			logger.Warn("schema.field.missing_key", "label", spec.Label)
			continue
		}
		if _, dup := s.byKey[key]; dup {
			logger.Warn("schema.field.duplicate_key", "key", key)
			continue
		}

		ft := spec.Type
		if _, known := coercers[ft]; !known {
			logger.Warn("schema.field.unknown_type", "key", key, "type", string(ft))
			ft = constants.FieldText
		}

		rule := FieldRule{Key: key, Label: spec.Label, Type: ft, Required: spec.Required}
		s.rules = append(s.rules, rule)
		s.byKey[key] = rule
	}
	return s
}

// Rules returns the compiled entries in declaration order.
func (s *Schema) Rules() []FieldRule {
	return s.rules
}

// Len returns the number of compiled fields.
func (s *Schema) Len() int {
	return len(s.rules)
}

// Validate coerces the candidate record against the schema. On success the
// returned map contains every declared key, with nulls for absent optional
// fields. Field-level failures are reported, never raised.
func (s *Schema) Validate(candidate map[string]any) (map[string]any, []FieldError) {
	out := make(map[string]any, len(s.rules))
	var errs []FieldError

	for _, rule := range s.rules {
		v, present := candidate[rule.Key]
		if !present || v == nil {
			if rule.Required {
				errs = append(errs, FieldError{Field: rule.Key, Message: "required field missing"})
				continue
			}
			out[rule.Key] = nil
			continue
		}

		coerced, err := coercers[rule.Type](v)
		if err != nil {
			errs = append(errs, FieldError{Field: rule.Key, Message: err.Error()})
			continue
		}
		out[rule.Key] = coerced
	}

	if len(errs) > 0 {
		return nil, errs
	}
	return out, nil
}

// coercers maps each declared field type to its semantic coercion.
var coercers = map[constants.FieldType]func(any) (any, error){
	constants.FieldText:     coerceString,
	constants.FieldTextarea: coerceString,
	constants.FieldDate:     coerceDate,
	constants.FieldDatetime: coerceDatetime,
	constants.FieldNumber:   coerceNumber,
}

func coerceString(v any) (any, error) {
	s, ok := v.(string)
	if !ok {
		return nil, fmt.Errorf("expected string, got %T", v)
	}
	return s, nil
}

func coerceDate(v any) (any, error) {
	s, ok := v.(string)
	if !ok {
		return nil, fmt.Errorf("expected date string, got %T", v)
	}
	s = strings.TrimSpace(s)
	if t, err := time.Parse(constants.DateLayout, s); err == nil {
		return t.Format(constants.DateLayout), nil
	}
	// accept a full timestamp and keep the calendar date
	if t, err := time.Parse(constants.DatetimeLayout, s); err == nil {
		return t.Format(constants.DateLayout), nil
	}
	return nil, fmt.Errorf("invalid date %q, want YYYY-MM-DD", s)
}

func coerceDatetime(v any) (any, error) {
	s, ok := v.(string)
	if !ok {
		return nil, fmt.Errorf("expected datetime string, got %T", v)
	}
	s = strings.TrimSpace(s)
	for _, layout := range []string{constants.DatetimeLayout, time.RFC3339, constants.DateLayout} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format(constants.DatetimeLayout), nil
		}
	}
	return nil, fmt.Errorf("invalid datetime %q, want YYYY-MM-DD HH:MM:SS", s)
}

func coerceNumber(v any) (any, error) {
	switch t := v.(type) {
	case float64:
		return t, nil
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return nil, fmt.Errorf("invalid number %q", t.String())
		}
		return f, nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid number %q", t)
		}
		return f, nil
	default:
		return nil, fmt.Errorf("expected number, got %T", v)
	}
}

// JSONSchemaDoc renders the compiled schema as a JSON-Schema document for the
// structural pre-check that runs before coercion. Required-field presence is
// deliberately absent here: Validate reports missing fields per field, which
// callers store as reviewable detail.
func (s *Schema) JSONSchemaDoc() map[string]any {
	props := make(map[string]any, len(s.rules))
	for _, rule := range s.rules {
		var prop map[string]any
		switch rule.Type {
		case constants.FieldNumber:
			prop = map[string]any{"type": []string{"number", "string", "null"}}
		default:
			prop = map[string]any{"type": []string{"string", "null"}}
		}
		prop["description"] = rule.Label
		props[rule.Key] = prop
	}

	return map[string]any{
		"type":       "object",
		"properties": props,
	}
}

// ValidateShape checks the raw parsed object against the JSON-Schema form of
// this schema. It is looser than Validate (no semantic coercion, no required
// check) and exists to catch grossly wrong shapes with a precise diagnostic
// before field-level validation runs.
func (s *Schema) ValidateShape(data []byte) error {
	b, err := json.Marshal(s.JSONSchemaDoc())
	if err != nil {
		return fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", bytes.NewReader(b)); err != nil {
		return fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("schema.json")
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("unmarshal data: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("json does not match schema: %w", err)
	}
	return nil
}
