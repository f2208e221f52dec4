package jsonx

import (
	"strings"
	"testing"
)

type testPayload struct {
	Name  string `json:"name"`
	Value int    `json:"value"`
}

func TestDecodePureJSON(t *testing.T) {
	response := `{"name": "test", "value": 42}`
	result, err := Decode[testPayload](response)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Name != "test" || result.Value != 42 {
		t.Errorf("unexpected result: %+v", result)
	}
}

func TestDecodeWithProse(t *testing.T) {
	for name, response := range map[string]string{
		"prefix": `Here is the result: {"name": "test", "value": 42}`,
		"suffix": `{"name": "test", "value": 42} That's the output.`,
		"both":   `Let me think... {"name": "test", "value": 42} Done!`,
	} {
		result, err := Decode[testPayload](response)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", name, err)
		}
		if result.Name != "test" || result.Value != 42 {
			t.Errorf("%s: unexpected result: %+v", name, result)
		}
	}
}

func TestDecodeFenced(t *testing.T) {
	response := "```json\n{\"name\": \"test\", \"value\": 42}\n```"
	result, err := Decode[testPayload](response)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Name != "test" || result.Value != 42 {
		t.Errorf("unexpected result: %+v", result)
	}
}

func TestDecodeRepairsNearJSON(t *testing.T) {
	// Unquoted keys and single quotes survive via the repair pass.
	response := `{name: 'test', value: 42}`
	result, err := Decode[testPayload](response)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Name != "test" || result.Value != 42 {
		t.Errorf("unexpected result: %+v", result)
	}
}

func TestDecodePlainTextFails(t *testing.T) {
	response := "This is just plain text without any JSON."
	_, err := Decode[testPayload](response)
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !strings.Contains(err.Error(), "no JSON object") {
		t.Errorf("expected 'no JSON object' in error, got: %v", err)
	}
}

func TestExtractReturnsRawString(t *testing.T) {
	jsonStr, err := Extract("noise before {\"a\": 1} noise after")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if jsonStr != `{"a": 1}` {
		t.Errorf("extracted %q", jsonStr)
	}
}

func TestDecodeInto(t *testing.T) {
	var result testPayload
	if err := DecodeInto(`{"name": "test", "value": 7}`, &result); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Value != 7 {
		t.Errorf("unexpected result: %+v", result)
	}
}
