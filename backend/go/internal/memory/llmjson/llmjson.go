// Package llmjson decodes structured JSON out of free-form model output.
package llmjson

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"memory_orchestrator/backend/go/internal/models"
)

// DecodeStrict locates the single JSON object in raw (tolerating code fences and
// surrounding prose) and decodes it into v, rejecting unknown fields and trailing data.
// Every failure wraps models.ErrParse.
func DecodeStrict(raw string, v interface{}) error {
	body, err := objectSpan(raw)
	if err != nil {
		return err
	}
	dec := json.NewDecoder(bytes.NewReader([]byte(body)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", models.ErrParse, err)
	}
	if dec.More() {
		return fmt.Errorf("%w: trailing data after JSON object", models.ErrParse)
	}
	return nil
}

func objectSpan(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end < start {
		return "", fmt.Errorf("%w: no JSON object in output", models.ErrParse)
	}
	return s[start : end+1], nil
}
