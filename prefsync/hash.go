package prefsync

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// ContentHash returns a stable SHA-256 hex digest of v's JSON form. Map keys
// are sorted by the encoder, so two semantically equal values always hash the
// same. The hash is a change detector, not an integrity guarantee.
func ContentHash(v any) (string, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("hash content: %w", err)
	}
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:]), nil
}
