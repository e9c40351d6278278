package services

import (
	"errors"
	"fmt"

	"gorm.io/gorm"
)

// Error kinds returned by every service operation. Each returned error matches exactly one
// of them with errors.Is.
var (
	ErrValidation   = errors.New("validation error")
	ErrNotFound     = errors.New("not found")
	ErrForbidden    = errors.New("forbidden")
	ErrInvalidState = errors.New("already decided")
	ErrInternal     = errors.New("internal error")
)

var errorKinds = []error{ErrValidation, ErrNotFound, ErrForbidden, ErrInvalidState, ErrInternal}

func validationf(format string, args ...any) error {
	return kindf(ErrValidation, format, args...)
}

func notFoundf(format string, args ...any) error {
	return kindf(ErrNotFound, format, args...)
}

func forbiddenf(format string, args ...any) error {
	return kindf(ErrForbidden, format, args...)
}

func invalidStatef(format string, args ...any) error {
	return kindf(ErrInvalidState, format, args...)
}

func kindf(kind error, format string, args ...any) error {
	return fmt.Errorf("%w: %s", kind, fmt.Sprintf(format, args...))
}

// internal passes classified errors through and wraps everything else as ErrInternal.
func internal(op string, err error) error {
	if err == nil {
		return nil
	}
	if Kind(err) != nil {
		return err
	}
	return fmt.Errorf("%w: %s: %v", ErrInternal, op, err)
}

// lookup turns gorm.ErrRecordNotFound into ErrNotFound for what.
func lookup(err error, what, id string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return notFoundf("%s %s not found", what, id)
	}
	return internal("load "+what, err)
}

// Kind returns the error kind err matches, or nil.
func Kind(err error) error {
	for _, k := range errorKinds {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}
