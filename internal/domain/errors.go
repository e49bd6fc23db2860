package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrConcurrent = errors.New("another job is active for this client")
	ErrValidation = errors.New("invalid request")
)

// ErrMissingField builds a validation error naming the missing field while
// still matching errors.Is(err, ErrValidation).
func ErrMissingField(field string) error {
	return fmt.Errorf("%w: %s is required", ErrValidation, field)
}
