package messaging

import (
	"errors"
	"fmt"
)

// Domain error taxonomy. Handlers match with errors.Is and translate to the
// error frame's stable reason code; none of these are ever broadcast beyond
// the acting connection.
var (
	ErrValidation       = errors.New("validation error")
	ErrPermissionDenied = errors.New("permission denied")
	ErrWindowExpired    = errors.New("window expired")
	ErrNotFound         = errors.New("not found")
	ErrPersistence      = errors.New("persistence failure")
)

// Stable reason codes carried on error frames.
const (
	CodeValidation       = "validation_error"
	CodePermissionDenied = "permission_denied"
	CodeWindowExpired    = "window_expired"
	CodeNotFound         = "not_found"
	CodePersistence      = "persistence_failure"
)

// CodeOf maps a domain error to its reason code and retryability. Only
// persistence failures are worth retrying after a delay.
func CodeOf(err error) (code string, retryable bool) {
	switch {
	case errors.Is(err, ErrValidation):
		return CodeValidation, false
	case errors.Is(err, ErrPermissionDenied):
		return CodePermissionDenied, false
	case errors.Is(err, ErrWindowExpired):
		return CodeWindowExpired, false
	case errors.Is(err, ErrNotFound):
		return CodeNotFound, false
	default:
		return CodePersistence, true
	}
}

func validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func persistence(err error) error {
	return fmt.Errorf("%w: %v", ErrPersistence, err)
}
