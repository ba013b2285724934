package service

import (
	"errors"

	"gorm.io/gorm"
)

// Sentinel errors the RPC handler maps to error codes. Services wrap them
// with a message for the caller.
var (
	ErrValidation = errors.New("validation failed")
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")
)

func isNotFound(err error) bool { return errors.Is(err, gorm.ErrRecordNotFound) }
