// Package identity derives deterministic anonymous identifiers (IDX)
// from a user's regulatory identity and issues the rotating per-bank
// session tokens used as the unit of pseudonymity on the public chain.
package identity

import (
	"regexp"
	"strings"

	"github.com/rawblock/idx-consortium-ledger/internal/cryptoadapter"
	"github.com/rawblock/idx-consortium-ledger/internal/ledgererr"
)

var (
	panPattern = regexp.MustCompile(`^[A-Z]{5}[0-9]{4}[A-Z]$`)
	rbiPattern = regexp.MustCompile(`^[A-Z0-9]{6}$`)
)

// IDXGenerator derives the permanent anonymous identifier from a PAN
// card and RBI registration number, salted with a process-wide pepper
// that is never logged.
type IDXGenerator struct {
	pepper string
}

// NewIDXGenerator builds a generator bound to a secret pepper, loaded
// once at startup by the caller (it never reads the environment itself).
func NewIDXGenerator(pepper string) *IDXGenerator {
	return &IDXGenerator{pepper: pepper}
}

// Generate normalizes pan/rbi, validates their format, and returns
// "IDX_" + hex(sha256("PAN:RBI:PEPPER")).
func (g *IDXGenerator) Generate(panCard, rbiNumber string) (string, error) {
	pan := strings.ToUpper(strings.TrimSpace(panCard))
	rbi := strings.ToUpper(strings.TrimSpace(rbiNumber))

	if !panPattern.MatchString(pan) {
		return "", ledgererr.New(ledgererr.InvalidIdentityFormat,
			"PAN must be 5 letters + 4 digits + 1 letter")
	}
	if !rbiPattern.MatchString(rbi) {
		return "", ledgererr.New(ledgererr.InvalidIdentityFormat,
			"RBI number must be 6 alphanumeric characters")
	}

	combined := pan + ":" + rbi + ":" + g.pepper
	return "IDX_" + cryptoadapter.SHA256HexString(combined), nil
}

// Verify re-derives the IDX from pan/rbi and compares it against
// idxToVerify in constant time. Returns false (never an error) on a
// format mismatch, matching the reference semantics that verification
// is a boolean predicate.
func (g *IDXGenerator) Verify(panCard, rbiNumber, idxToVerify string) bool {
	generated, err := g.Generate(panCard, rbiNumber)
	if err != nil {
		return false
	}
	return cryptoadapter.ConstantTimeEqual(generated, idxToVerify)
}
