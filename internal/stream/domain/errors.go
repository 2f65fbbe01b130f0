package stream

import "errors"

// Kind classifies domain errors for callers that only care about the category.
type Kind string

const (
	KindValidation         Kind = "ValidationError"
	KindAuthorization      Kind = "AuthorizationError"
	KindState              Kind = "StateError"
	KindArithmetic         Kind = "ArithmeticError"
	KindInactivityNotMet   Kind = "InactivityNotMet"
	KindInsufficientFunds  Kind = "InsufficientFunds"
	KindInsufficientEscrow Kind = "InsufficientEscrow"
	KindNotFound           Kind = "NotFound"
	KindInternal           Kind = "InternalError"
)

// Error is a typed domain error. Code identifies the exact failure.
type Error struct {
	Kind Kind
	Code string
	msg  string
}

func (e *Error) Error() string { return "stream: " + e.msg }

func newError(kind Kind, code, msg string) *Error {
	return &Error{Kind: kind, Code: code, msg: msg}
}

var (
	// ErrInvalidSchedule is returned when start/end/cliff are not ordered.
	ErrInvalidSchedule = newError(KindValidation, "InvalidSchedule", "invalid schedule")
	// ErrInvalidParty is returned when employer and employee are the same or malformed.
	ErrInvalidParty = newError(KindValidation, "InvalidParty", "invalid party")
	// ErrInvalidAmount is returned for zero amounts.
	ErrInvalidAmount = newError(KindValidation, "InvalidAmount", "amount must be positive")
	// ErrUnevenTopUp is returned when a top-up cannot keep deposited/duration exact.
	ErrUnevenTopUp = newError(KindValidation, "UnevenTopUp", "top-up does not keep the stream rate exact")
	// ErrInvalidOperation is returned for a nil or unknown operation, or a
	// stream id that is not in canonical form.
	ErrInvalidOperation = newError(KindValidation, "InvalidOperation", "invalid operation")
	// ErrUnauthorized is returned when the signer is not allowed to run the operation.
	ErrUnauthorized = newError(KindAuthorization, "Unauthorized", "unauthorized")
	// ErrStreamClosed is returned when the operation needs an active stream.
	ErrStreamClosed = newError(KindState, "StreamClosed", "stream closed")
	// ErrStreamExists is returned when creating a stream over an existing id.
	ErrStreamExists = newError(KindState, "StreamExists", "stream already exists")
	// ErrConcurrentUpdate is returned when a compare-and-swap lost the race.
	ErrConcurrentUpdate = newError(KindState, "ConcurrentUpdate", "concurrent update")
	// ErrArithmetic is returned on overflow or underflow in balance or schedule math.
	ErrArithmetic = newError(KindArithmetic, "ArithmeticError", "arithmetic overflow")
	// ErrInactivityNotMet is returned when emergency withdraw runs before the threshold.
	ErrInactivityNotMet = newError(KindInactivityNotMet, "InactivityNotMet", "inactivity threshold not met")
	// ErrInsufficientFunds is returned when a wallet cannot cover a transfer.
	ErrInsufficientFunds = newError(KindInsufficientFunds, "InsufficientFunds", "insufficient funds")
	// ErrInsufficientEscrow is returned when an escrow cannot cover a payout. It means the
	// record and the escrow balance disagree.
	ErrInsufficientEscrow = newError(KindInsufficientEscrow, "InsufficientEscrow", "insufficient escrow")
	// ErrStreamNotFound is returned when no record exists for the id.
	ErrStreamNotFound = newError(KindNotFound, "StreamNotFound", "stream not found")
	// ErrCorruptRecord is returned when a persisted record cannot be decoded.
	ErrCorruptRecord = newError(KindInternal, "CorruptRecord", "corrupt record")
)

// KindOf returns the Kind of a domain error, or "" for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// CodeOf returns the Code of a domain error, or "" for foreign errors.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
