// Request fingerprinting.
//
// Two requests share a fingerprint exactly when a cached response for one is
// a valid response for the other. Message content is hashed verbatim: no
// whitespace folding, no case folding, so "Hello" and "hello " are distinct
// requests.

package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/calyptra/relay/llm"
)

// fingerprintPayload fixes the field set and order that feed the hash.
// encoding/json writes struct fields in declaration order and sorts map
// keys, so the encoding is deterministic.
type fingerprintPayload struct {
	Provider    string             `json:"provider"`
	Model       string             `json:"model"`
	Messages    []llm.Message      `json:"messages"`
	Temperature *float32           `json:"temperature"`
	MaxTokens   int                `json:"max_tokens"`
	Functions   []llm.FunctionSpec `json:"functions"`
}

// Fingerprint returns the hex sha256 identity of a request for cache
// lookup.
func Fingerprint(req llm.Request) string {
	payload, err := json.Marshal(fingerprintPayload{
		Provider:    req.Provider,
		Model:       req.Model,
		Messages:    req.Messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		Functions:   req.Functions,
	})
	if err != nil {
		// Requests are built from JSON-compatible values; Marshal cannot
		// fail on them. Hash the error text rather than panic.
		payload = []byte(err.Error())
	}
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// Key builds the store key for a model and fingerprint.
func Key(model, fingerprint string) string {
	return keyPrefix + model + ":" + fingerprint
}

// ModelPrefix is the key prefix shared by all entries for one model; it is
// what invalidation scans.
func ModelPrefix(model string) string {
	return keyPrefix + model + ":"
}

const keyPrefix = "response:"
