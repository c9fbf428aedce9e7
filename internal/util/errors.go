package util

import (
	"errors"
	"fmt"
)

// Error kinds. Callers wrap one of these with %w and classify with errors.Is;
// only the HTTP boundary turns a kind into a status code.
var (
	ErrValidation     = errors.New("validation error")
	ErrNotFound       = errors.New("not found")
	ErrExternal       = errors.New("external service error")
	ErrContentBlocked = errors.New("content blocked by provider policy")
)

var ErrNoExtractableText = fmt.Errorf("%w: no extractable text found in PDF", ErrValidation)

func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func NotFoundf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

// External marks err as a collaborator failure unless it already carries a kind.
func External(op string, err error) error {
	if err == nil {
		return nil
	}
	if HasKind(err) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, ErrExternal, err)
}

func HasKind(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrExternal) ||
		errors.Is(err, ErrContentBlocked)
}
