// Package jsonx extracts structured JSON from model text.
//
// Models often wrap JSON in markdown fences or surrounding prose, and
// occasionally emit near-JSON with unquoted keys or trailing commas.
// This package strips the wrapping and runs a repair pass before giving up.
package jsonx

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

// Extract finds and returns the JSON portion of model output.
// It handles common response patterns:
// 1. Pure JSON output - returned as is
// 2. JSON wrapped in markdown code blocks (```json ... ```)
// 3. JSON object embedded in prose - finds first '{' and last '}'
// 4. Near-JSON - repaired (quoting, commas) as a last resort
//
// Limitations:
// - Only handles JSON objects, not arrays
// - Uses simple brace matching, not full JSON parsing
func Extract(response string) (string, error) {
	stripped := stripMarkdownFences(response)

	var probe any
	if err := json.Unmarshal([]byte(stripped), &probe); err == nil {
		return stripped, nil
	}

	if start := strings.Index(stripped, "{"); start != -1 {
		if end := strings.LastIndex(stripped, "}"); end > start {
			candidate := stripped[start : end+1]
			if err := json.Unmarshal([]byte(candidate), &probe); err == nil {
				return candidate, nil
			}
			if repaired, err := jsonrepair.JSONRepair(candidate); err == nil {
				if err := json.Unmarshal([]byte(repaired), &probe); err == nil {
					return repaired, nil
				}
			}
		}
	}

	preview := response
	if len(preview) > 100 {
		preview = preview[:100] + "..."
	}
	return "", fmt.Errorf("no JSON object in model output: %q", preview)
}

// stripMarkdownFences removes markdown code block markers.
// Handles patterns like ```json\n...\n``` or ```\n...\n```
func stripMarkdownFences(response string) string {
	trimmed := strings.TrimSpace(response)

	if strings.HasPrefix(trimmed, "```json") {
		trimmed = strings.TrimSpace(strings.TrimPrefix(trimmed, "```json"))
	} else if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimSpace(strings.TrimPrefix(trimmed, "```"))
	}
	if strings.HasSuffix(trimmed, "```") {
		trimmed = strings.TrimSpace(strings.TrimSuffix(trimmed, "```"))
	}
	return trimmed
}

// Decode extracts the JSON portion of model output and unmarshals it
// into T.
func Decode[T any](response string) (T, error) {
	var result T
	jsonStr, err := Extract(response)
	if err != nil {
		return result, err
	}
	if err := json.Unmarshal([]byte(jsonStr), &result); err != nil {
		return result, fmt.Errorf("decode extracted JSON: %w", err)
	}
	return result, nil
}

// DecodeInto extracts the JSON portion of model output into a provided
// pointer. Non-generic version for cases where generics aren't suitable.
func DecodeInto(response string, result any) error {
	jsonStr, err := Extract(response)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(jsonStr), result); err != nil {
		return fmt.Errorf("decode extracted JSON: %w", err)
	}
	return nil
}
