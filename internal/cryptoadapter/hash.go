// Package cryptoadapter composes the primitives the rest of the ledger
// core needs (hashing, authenticated symmetric encryption, key
// derivation, secure randomness, key management) without specifying
// their internals beyond how they're combined — SHA-256, AES-256-CBC,
// HMAC-SHA-256, and PBKDF2 stay exactly the stdlib/x-crypto primitives
// they already are.
package cryptoadapter

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
)

// SHA256Hex returns the lowercase hex SHA-256 digest of data.
func SHA256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// SHA256HexString is a convenience wrapper over a string input.
func SHA256HexString(data string) string {
	return SHA256Hex([]byte(data))
}

// ConstantTimeEqual compares two strings in constant time, used for IDX
// and session verification so a timing side-channel can't leak which
// prefix byte first differs.
func ConstantTimeEqual(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// SecureRandomBytes returns n cryptographically random bytes.
func SecureRandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, err
	}
	return b, nil
}
