// Package apierror provides the error envelope shared by every HTTP surface:
// {"error": {"code": "...", "message": "..."}}. All errors returned to clients
// go through this package so internal details (stack traces, SQL errors)
// never leak.
package apierror

import (
	"net/http"

	"github.com/JKKN-Institutions/JKKNPOS/internal/dto"
)

// Envelope is the canonical body of every 4xx/5xx response.
type Envelope struct {
	Error *dto.RPCError `json:"error"`
}

func New(code, msg string) *Envelope {
	return &Envelope{Error: &dto.RPCError{Code: code, Message: msg}}
}

// NewValidation wraps per-field failures.
func NewValidation(fields map[string]string) *Envelope {
	return &Envelope{Error: &dto.RPCError{
		Code:    dto.CodeValidation,
		Message: "validation failed",
		Fields:  fields,
	}}
}

// Internal is the only body a 500 ever carries.
func Internal() *Envelope {
	return New(dto.CodeInternal, "internal server error")
}

// Status maps an error code to its HTTP status.
func Status(code string) int {
	switch code {
	case dto.CodeValidation:
		return http.StatusUnprocessableEntity
	case dto.CodeNotFound, dto.CodeUnknownOperation:
		return http.StatusNotFound
	case dto.CodeConflict:
		return http.StatusConflict
	case dto.CodeUnauthorized:
		return http.StatusUnauthorized
	case dto.CodeRateLimited:
		return http.StatusTooManyRequests
	case dto.CodeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
