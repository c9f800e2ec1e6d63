// Package parser turns raw model output into typed values: structured
// responses (with a fenced-JSON fallback) and text-encoded tool calls.
package parser

import (
	"bytes"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/kaptinlin/jsonrepair"

	jsonx "triad/internal/shared/json"
)

var (
	// ErrNoStructured is the strict-stage error when the model returned no
	// structured payload.
	ErrNoStructured = errors.New("no structured response")
	// ErrNoJSONBlock is the fallback-stage error when the text holds no JSON.
	ErrNoJSONBlock = errors.New("no JSON block in model output")
)

// Validator is implemented by extraction targets that check their own shape.
type Validator interface {
	Validate() error
}

// ExtractionError reports that both extraction stages failed. Raw keeps the
// free text that could not be parsed.
type ExtractionError struct {
	StrictErr   error
	FallbackErr error
	Raw         string
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("structured extraction failed: strict: %v; fallback: %v", e.StrictErr, e.FallbackErr)
}

func (e *ExtractionError) Unwrap() []error {
	return []error{e.StrictErr, e.FallbackErr}
}

var fencedBlock = regexp.MustCompile("(?s)```(?:json|JSON)?[ \\t]*\\n(.*?)```")

// Extract decodes a T from a model reply. The strict stage decodes the
// provider-validated payload; the fallback stage locates a fenced JSON block
// (or a bare JSON object) in the free text and repairs it before decoding.
// If T implements Validator, each stage's value must also pass Validate.
func Extract[T any](structured jsonx.RawMessage, raw string) (T, error) {
	value, strictErr := decodeStrict[T](structured)
	if strictErr == nil {
		return value, nil
	}
	value, fallbackErr := decodeFallback[T](raw)
	if fallbackErr == nil {
		return value, nil
	}
	var zero T
	return zero, &ExtractionError{StrictErr: strictErr, FallbackErr: fallbackErr, Raw: raw}
}

func decodeStrict[T any](structured jsonx.RawMessage) (T, error) {
	var value T
	if len(bytes.TrimSpace(structured)) == 0 {
		return value, ErrNoStructured
	}
	if err := jsonx.Unmarshal(structured, &value); err != nil {
		return value, fmt.Errorf("decode structured response: %w", err)
	}
	return value, validate(&value)
}

func decodeFallback[T any](raw string) (T, error) {
	var value T
	block, ok := FindJSONBlock(raw)
	if !ok {
		return value, ErrNoJSONBlock
	}
	if err := jsonx.Unmarshal([]byte(block), &value); err != nil {
		repaired, repairErr := jsonrepair.JSONRepair(block)
		if repairErr != nil {
			return value, fmt.Errorf("repair JSON block: %w", repairErr)
		}
		value = *new(T)
		if err := jsonx.Unmarshal([]byte(repaired), &value); err != nil {
			return value, fmt.Errorf("decode repaired JSON block: %w", err)
		}
	}
	return value, validate(&value)
}

// FindJSONBlock returns the last fenced code block in text, or failing that
// the outermost {...} span.
func FindJSONBlock(text string) (string, bool) {
	if matches := fencedBlock.FindAllStringSubmatch(text, -1); len(matches) > 0 {
		block := strings.TrimSpace(matches[len(matches)-1][1])
		if block != "" {
			return block, true
		}
	}
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		return text[start : end+1], true
	}
	return "", false
}

func validate(value any) error {
	if v, ok := value.(Validator); ok {
		if err := v.Validate(); err != nil {
			return fmt.Errorf("validate: %w", err)
		}
	}
	return nil
}
