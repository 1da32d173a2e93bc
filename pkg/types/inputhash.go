package types

import (
	"crypto/sha256"
	"encoding/hex"
)

// InputHash is a content-addressed identity for raw input text, used only
// by the allowlisted-hash escape hatch. It is never persisted alongside
// the content it hashes.
type InputHash [32]byte

// HashInput computes the InputHash of content.
func HashInput(content string) InputHash {
	return sha256.Sum256([]byte(content))
}

// Hex returns the lowercase hex encoding of the hash.
func (h InputHash) Hex() string {
	return hex.EncodeToString(h[:])
}

func (h InputHash) String() string {
	return h.Hex()
}
