// Package errs defines the error taxonomy shared by every pipeline stage:
// a small set of kinds that callers use to decide retryability, rather than
// one type per failure site.
package errs

import "fmt"

// Kind classifies why a stage failed. Transport/HttpStatus(429/5xx)/Parse
// failures are retried via the queue's backoff; NotFound/InvariantViolation/
// Unavailable are treated as fatal.
type Kind string

const (
	KindTransport          Kind = "transport"
	KindHTTPStatus         Kind = "http_status"
	KindParse              Kind = "parse"
	KindNotFound           Kind = "not_found"
	KindInvariantViolation Kind = "invariant_violation"
	KindBusy               Kind = "busy"
	KindUnavailable        Kind = "unavailable"
)

// Error is a kinded, wrapped error. Stage handlers construct these at the
// point of failure so a caller one or two frames up can branch on Kind
// without string-matching.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func Transport(message string, err error) *Error {
	return New(KindTransport, message, err)
}

func HTTPStatus(message string, err error) *Error {
	return New(KindHTTPStatus, message, err)
}

func Parse(message string, err error) *Error {
	return New(KindParse, message, err)
}

func NotFound(message string) *Error {
	return New(KindNotFound, message, nil)
}

func InvariantViolation(message string) *Error {
	return New(KindInvariantViolation, message, nil)
}

func Busy(message string) *Error {
	return New(KindBusy, message, nil)
}

func Unavailable(message string, err error) *Error {
	return New(KindUnavailable, message, err)
}

// Retryable reports whether the queue should retry a job that failed with
// this error.
func Retryable(err error) bool {
	var e *Error
	if !asError(err, &e) {
		return true // unclassified errors default to retryable (network blips, panics recovered upstream)
	}
	switch e.Kind {
	case KindTransport, KindHTTPStatus, KindParse, KindBusy:
		return true
	default:
		return false
	}
}

func asError(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
