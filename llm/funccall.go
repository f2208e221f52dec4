// Function-call normalization.
//
// Providers surface function calls in several shapes: a decoded mapping
// under "args", a raw JSON string under "arguments", or SDK structs with
// either. NormalizeFunctionCall folds all of them into the one canonical
// FunctionCall form so nothing downstream ever parses provider payloads.

package llm

import (
	"encoding/json"
	"fmt"
	"log/slog"
)

// RawFunctionCall is a provider-shaped function call whose arguments are
// still the raw JSON string from the wire.
type RawFunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// NormalizeFunctionCall converts any supported function-call shape into the
// canonical form. It accepts, in order of preference:
//
//  1. a mapping with a decoded "args" mapping
//  2. a mapping with an "arguments" JSON string
//  3. a FunctionCall (or pointer), whose Args mapping is used as is
//  4. a RawFunctionCall (or pointer), whose Arguments string is parsed
//
// Unparseable argument strings degrade to empty args and are logged; they
// never fail the request. nil input returns nil. The result always has a
// non-nil Args mapping, and normalizing an already-normalized value returns
// an equal value.
func NormalizeFunctionCall(v any) *FunctionCall {
	switch fc := v.(type) {
	case nil:
		return nil
	case *FunctionCall:
		if fc == nil {
			return nil
		}
		return &FunctionCall{Name: fc.Name, Args: ensureArgs(fc.Args)}
	case FunctionCall:
		return &FunctionCall{Name: fc.Name, Args: ensureArgs(fc.Args)}
	case *RawFunctionCall:
		if fc == nil {
			return nil
		}
		return &FunctionCall{Name: fc.Name, Args: parseArgs(fc.Name, fc.Arguments)}
	case RawFunctionCall:
		return &FunctionCall{Name: fc.Name, Args: parseArgs(fc.Name, fc.Arguments)}
	case map[string]any:
		return normalizeMapping(fc)
	}
	slog.Warn("unrecognized function call shape", "type", fmt.Sprintf("%T", v))
	return nil
}

func normalizeMapping(m map[string]any) *FunctionCall {
	name, _ := m["name"].(string)
	if args, ok := m["args"].(map[string]any); ok {
		return &FunctionCall{Name: name, Args: ensureArgs(args)}
	}
	if raw, ok := m["arguments"].(string); ok {
		return &FunctionCall{Name: name, Args: parseArgs(name, raw)}
	}
	if name == "" {
		return nil
	}
	return &FunctionCall{Name: name, Args: map[string]any{}}
}

// parseArgs decodes a raw arguments string, degrading to empty args when the
// payload is not valid JSON or not an object.
func parseArgs(name, raw string) map[string]any {
	if raw == "" {
		return map[string]any{}
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil || args == nil {
		slog.Warn("malformed function call arguments",
			"function", name,
			"payload", truncate(raw, 200))
		return map[string]any{}
	}
	return args
}

func ensureArgs(args map[string]any) map[string]any {
	if args == nil {
		return map[string]any{}
	}
	return args
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
