package weft

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// StableHash returns the sha256 hex digest of v's canonical JSON form.
// encoding/json emits struct fields in declaration order and sorts map
// keys, so equal values always produce the same digest.
func StableHash(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshal for hash: %w", err)
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}
