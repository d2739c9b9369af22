package ledger

import "errors"

// Kind is a stable category for programmatic error handling.
//
// Callers should branch on Kind/RuleID rather than matching error strings;
// Error() text is for humans and may evolve.
type Kind string

const (
	// KindStructural: missing or malformed fields. Recoverable only by
	// re-supplying a valid artifact.
	KindStructural Kind = "Structural"

	// KindCrypto: signature or hash mismatch. Always a hard failure.
	KindCrypto Kind = "Crypto"

	// KindChain: hash-chain link mismatch or duplicate receive on a closed
	// transfer. Hard failure, flagged for caller investigation, no auto-repair.
	KindChain Kind = "Chain"

	// KindAvailability: a missing optional capability (ZK verifier,
	// verifying key). Soft by design; most paths degrade instead of erroring.
	KindAvailability Kind = "Availability"

	// KindPolicy: an operation attempted outside its legal state. The
	// error carries the state that rejected it.
	KindPolicy Kind = "Policy"
)

// Error is the ledger's structured error type.
//
// RuleID is a stable identifier (e.g. LDG-STR-001, LDG-CHAIN-102) naming the
// violated invariant.
type Error struct {
	Kind    Kind
	RuleID  string
	Message string
	Cause   error

	// State is populated for KindPolicy so the caller can surface which
	// state rejected the operation.
	State State
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

func newError(kind Kind, ruleID, msg string) error {
	return &Error{Kind: kind, RuleID: ruleID, Message: msg}
}

func wrapError(kind Kind, ruleID, msg string, cause error) error {
	if cause == nil {
		return newError(kind, ruleID, msg)
	}
	return &Error{Kind: kind, RuleID: ruleID, Message: msg, Cause: cause}
}

func policyError(state State, ruleID, msg string) error {
	return &Error{Kind: KindPolicy, RuleID: ruleID, Message: msg, State: state}
}

// IsKind reports whether err is (or wraps) a *Error with the given Kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == kind
}

// RuleIDOf returns the stable RuleID for a structured error, or "" if unknown.
func RuleIDOf(err error) string {
	var e *Error
	if !errors.As(err, &e) {
		return ""
	}
	return e.RuleID
}

// StateOf returns the controller state attached to a policy error, or
// StateInvalid when err carries none.
func StateOf(err error) State {
	var e *Error
	if !errors.As(err, &e) {
		return StateInvalid
	}
	return e.State
}
