package domain

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrValidation = errors.New("validation failed")
	ErrConflict   = errors.New("account already exists")
	ErrNotFound   = errors.New("account not found")
	// ErrInvalidCredentials hides whether the handle or the password was wrong.
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrTokenExpired       = errors.New("verification token expired")
	ErrTokenMalformed     = errors.New("verification token invalid")
	ErrInvalidToken       = errors.New("invalid token")
	ErrExternalAuth       = errors.New("external provider rejected the token")
)

// ValidationError maps offending input fields to a reason.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return fmt.Sprintf("%s: %s", ErrValidation, strings.Join(names, ", "))
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// ConflictError carries the unique field that collided, when the store reports it.
type ConflictError struct {
	Field string
}

func (e *ConflictError) Error() string {
	if e.Field == "" {
		return ErrConflict.Error()
	}
	return fmt.Sprintf("%s: %s is already taken", ErrConflict, e.Field)
}

func (e *ConflictError) Unwrap() error { return ErrConflict }
