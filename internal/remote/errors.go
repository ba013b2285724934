package remote

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/JKKN-Institutions/JKKNPOS/internal/dto"
)

// Kind is the failure class of a remote call. It decides what the sync queue
// does with an entry.
type Kind int

const (
	// KindConnectivity: the service was not reached or did not answer in
	// time. Retryable.
	KindConnectivity Kind = iota + 1
	// KindValidation: the service answered and rejected the input.
	KindValidation
	// KindConflict: the service answered and refused because its state
	// disagrees (insufficient stock, already cancelled).
	KindConflict
)

func (k Kind) String() string {
	switch k {
	case KindConnectivity:
		return "connectivity"
	case KindValidation:
		return "validation"
	case KindConflict:
		return "conflict"
	default:
		return "unknown"
	}
}

// Error is a classified remote failure.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Status  int
	Fields  map[string]string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Code != "" {
		return fmt.Sprintf("remote %s (%s): %s", e.Kind, e.Code, msg)
	}
	return fmt.Sprintf("remote %s: %s", e.Kind, msg)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf classifies err. Errors that were never classified, context
// cancellation and deadlines included, are treated as connectivity failures
// so they are retried rather than discarded.
func KindOf(err error) Kind {
	if err == nil {
		return 0
	}
	var re *Error
	if errors.As(err, &re) {
		return re.Kind
	}
	return KindConnectivity
}

func IsConnectivity(err error) bool { return err != nil && KindOf(err) == KindConnectivity }
func IsValidation(err error) bool   { return err != nil && KindOf(err) == KindValidation }
func IsConflict(err error) bool     { return err != nil && KindOf(err) == KindConflict }

func connectivity(op string, err error) *Error {
	msg := err.Error()
	if errors.Is(err, context.DeadlineExceeded) {
		msg = "timed out"
	}
	return &Error{Kind: KindConnectivity, Message: op + ": " + msg, Err: err}
}

// fromEnvelope classifies an error body returned by the service.
func fromEnvelope(status int, e *dto.RPCError) *Error {
	out := &Error{Code: e.Code, Message: e.Message, Status: status, Fields: e.Fields}
	switch e.Code {
	case dto.CodeConflict:
		out.Kind = KindConflict
	case dto.CodeValidation, dto.CodeNotFound, dto.CodeUnknownOperation:
		out.Kind = KindValidation
	default:
		out.Kind = kindForStatus(status)
	}
	return out
}

// kindForStatus is the fallback when the body carries no known code. Auth
// failures are retryable: a terminal with a stale token must not discard its
// queue.
func kindForStatus(status int) Kind {
	switch {
	case status == http.StatusConflict:
		return KindConflict
	case status == http.StatusUnauthorized, status == http.StatusForbidden,
		status == http.StatusRequestTimeout, status == http.StatusTooManyRequests,
		status >= 500:
		return KindConnectivity
	case status >= 400:
		return KindValidation
	default:
		return KindConnectivity
	}
}
