package handler

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/JKKN-Institutions/JKKNPOS/internal/dto"
	"github.com/JKKN-Institutions/JKKNPOS/internal/service"
)

// decodeParams unmarshals raw into a P and runs its validate tags. Empty or
// null params decode to the zero value, which read operations accept.
func decodeParams[P any](raw json.RawMessage) (P, error) {
	var p P
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null")) {
		if err := json.Unmarshal(trimmed, &p); err != nil {
			return p, &paramsError{msg: "invalid params: " + err.Error()}
		}
	}
	if err := dto.Validate(p); err != nil {
		fields := dto.ValidationFields(err)
		if fields == nil {
			return p, fmt.Errorf("validate params: %w", err)
		}
		return p, &paramsError{msg: "validation failed", fields: fields}
	}
	return p, nil
}

// paramsError is a params failure caught before the service is called.
type paramsError struct {
	msg    string
	fields map[string]string
}

func (e *paramsError) Error() string { return e.msg }

func (e *paramsError) Unwrap() error { return service.ErrValidation }
