package weft

import (
	"crypto/rand"
	"encoding/hex"
)

// GenerateID generates a random ID with the given prefix, e.g.
// "wf-1f8a9c0d2b3e4f5a".
func GenerateID(prefix string) string {
	b := make([]byte, 8)
	rand.Read(b)
	return prefix + "-" + hex.EncodeToString(b)
}
