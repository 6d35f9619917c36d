package apperror

import "errors"

// Kind describes a stable error category that can be mapped to HTTP status codes.
type Kind string

const (
	KindNotFound   Kind = "not_found"
	KindValidation Kind = "validation"
	KindConflict   Kind = "conflict"

	// Business outcomes of a redemption attempt. All of them are expected and
	// recoverable by the caller.
	KindUnauthenticated Kind = "unauthenticated"
	KindExhausted       Kind = "exhausted"
	KindAlreadyRedeemed Kind = "already_redeemed"
	KindInvalidCode     Kind = "invalid_code"
)

// ErrTxConflict is returned by storage when a transaction keeps conflicting
// after all retries. It carries no Kind: callers should treat it as retryable.
var ErrTxConflict = errors.New("storage transaction conflict: retries exhausted")

// Error is a typed error with a stable Kind and a human-readable message.
// Msg should be safe to return to clients for every Kind declared above.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Msg != "" {
		return e.Msg
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func New(kind Kind, msg string, err error) error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

func NotFound(msg string, err error) error   { return New(KindNotFound, msg, err) }
func Validation(msg string, err error) error { return New(KindValidation, msg, err) }
func Conflict(msg string, err error) error   { return New(KindConflict, msg, err) }

func Unauthenticated(msg string) error { return New(KindUnauthenticated, msg, nil) }
func Exhausted(msg string) error       { return New(KindExhausted, msg, nil) }
func AlreadyRedeemed(msg string) error { return New(KindAlreadyRedeemed, msg, nil) }
func InvalidCode(msg string) error     { return New(KindInvalidCode, msg, nil) }

func Is(err error, kind Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == kind
}

// KindOf returns the Kind of err, or an empty Kind for untyped (infrastructure) errors.
func KindOf(err error) Kind {
	var e *Error
	if !errors.As(err, &e) {
		return ""
	}
	return e.Kind
}
