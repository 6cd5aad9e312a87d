package position

import (
	"errors"

	"github.com/atmx/synthetic-ledger/internal/limits"
)

var (
	// ErrInvalidAmount is returned when a caller-supplied amount violates a
	// bound: a non-positive deposit, a reduce beyond the current size, a
	// negative or fractional amount, or a non-positive price.
	ErrInvalidAmount = errors.New("position: invalid amount")

	// ErrCustodyFailure is returned when the custodian rejects a transfer.
	// The custodian's error is kept in the chain.
	ErrCustodyFailure = errors.New("position: custody failure")

	// ErrUnauthorized is returned when the caller lacks the price-setter role.
	ErrUnauthorized = errors.New("position: unauthorized")

	// ErrPositionOpen is returned by Deposit under RedepositRejectOpen when
	// the owner already has a position with positive size.
	ErrPositionOpen = errors.New("position: position already open")
)

// Stable reason strings surfaced to clients.
const (
	ReasonZeroDeposit    = "Amount must be greater than 0"
	ReasonInvalidAmount  = "Invalid amount"
	ReasonZeroPrice      = "Price must be greater than 0"
	ReasonUnauthorized   = "Caller is not authorized"
	ReasonPositionOpen   = "Position already open"
	ReasonCustodyFailure = "Collateral transfer failed"
	ReasonSizeLimit      = "Position size limit exceeded"
	ReasonLeverageLimit  = "Leverage limit exceeded"
)

// Error is a ledger rejection. Kind is one of the package sentinels (or a
// limits sentinel); Err, when set, is the underlying cause.
type Error struct {
	Kind   error
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Reason + ": " + e.Err.Error()
	}
	return e.Reason
}

// Unwrap exposes both the kind and the cause to errors.Is / errors.As.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func invalid(reason string) error {
	return &Error{Kind: ErrInvalidAmount, Reason: reason}
}

func custodyFailure(err error) error {
	return &Error{Kind: ErrCustodyFailure, Reason: ReasonCustodyFailure, Err: err}
}

func limitExceeded(err error) error {
	reason := ReasonSizeLimit
	if errors.Is(err, limits.ErrLeverageLimitExceeded) {
		reason = ReasonLeverageLimit
	}
	return &Error{Kind: err, Reason: reason}
}

// Reason returns the client-facing reason for err. Errors that did not come
// from a ledger rejection return their plain message.
func Reason(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Reason
	}
	if err == nil {
		return ""
	}
	return err.Error()
}

// Code returns a short machine-readable classification of err, used for
// metric labels and API responses.
func Code(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrInvalidAmount):
		return "invalid_amount"
	case errors.Is(err, ErrCustodyFailure):
		return "custody_failure"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrPositionOpen):
		return "position_open"
	case errors.Is(err, limits.ErrSizeLimitExceeded), errors.Is(err, limits.ErrLeverageLimitExceeded):
		return "limit_exceeded"
	default:
		return "internal"
	}
}
