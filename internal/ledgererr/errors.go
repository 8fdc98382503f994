// Package ledgererr defines the stable error-kind taxonomy the core uses
// instead of exceptions: every failure path returns one of these kinds
// wrapped with context, so callers switch on Kind rather than parsing
// strings and external surfaces translate a Kind to a stable identifier
// without ever seeing internal state (SQL text, key bytes, stack traces).
package ledgererr

import (
	"errors"
	"fmt"
)

// Kind is a taxonomy of core failure classes.
type Kind string

const (
	InvalidIdentityFormat Kind = "INVALID_IDENTITY_FORMAT"
	UnknownUser           Kind = "UNKNOWN_USER"
	UnknownAccount        Kind = "UNKNOWN_ACCOUNT"
	UnknownSession        Kind = "UNKNOWN_SESSION"
	UnknownRecipient      Kind = "UNKNOWN_RECIPIENT"
	SessionExpired        Kind = "SESSION_EXPIRED"
	AccountFrozen         Kind = "ACCOUNT_FROZEN"
	InsufficientBalance   Kind = "INSUFFICIENT_BALANCE"
	DuplicateTransaction  Kind = "DUPLICATE_TRANSACTION"
	ConsensusFailed       Kind = "CONSENSUS_FAILED"
	BlockInvalid          Kind = "BLOCK_INVALID"
	OrderExpired          Kind = "ORDER_EXPIRED"
	UnknownJudge          Kind = "UNKNOWN_JUDGE"
	JudgeInactive         Kind = "JUDGE_INACTIVE"
	MacMismatch           Kind = "MAC_MISMATCH"
	KeyMissing            Kind = "KEY_MISSING"
)

// Error wraps a Kind with a message and optional cause. Never embeds
// SQL text or key material — callers must not format those into msg.
type Error struct {
	Kind  Kind
	Msg   string
	Cause error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds an *Error of the given kind.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Wrap builds an *Error of the given kind around a cause.
func Wrap(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Msg: msg, Cause: cause}
}

// Is reports whether err carries the given Kind anywhere in its chain.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
