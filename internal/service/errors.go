package service

import (
	"errors"
	"fmt"
)

var (
	ErrWidgetTokenNotFound     = errors.New("invalid or inactive widget token")
	ErrWidgetNonprofitMismatch = errors.New("widget token is not valid for this nonprofit")
	ErrNonprofitNotFound       = errors.New("nonprofit not found")
	ErrCategoryNotFound        = errors.New("category not found")
	ErrDonationNotFound        = errors.New("donation not found")
	ErrInvalidStatus           = errors.New("invalid nonprofit status")
)

// ValidationError is a client input problem; Msg is safe to show to the caller.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string {
	return e.Msg
}

func invalid(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}
