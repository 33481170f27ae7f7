package ticket

import (
	"errors"
	"fmt"

	"eventgate/internal/directory"
)

// Sentinel errors for registration and redemption. Handlers translate them
// into HTTP statuses with errors.Is.
var (
	ErrValidation            = errors.New("validation failed")
	ErrInvalidClass          = errors.New("invalid class")
	ErrNotAuthorized         = errors.New("not authorized")
	ErrDuplicateRegistration = errors.New("already registered")
	ErrTicketNotFound        = errors.New("ticket not found")
	ErrAlreadyUsed           = errors.New("ticket already used")
	ErrStoreWrite            = errors.New("store write failed")
	ErrConflict              = errors.New("barcode collision")
)

// MissingFieldError reports a required input that was empty after trimming.
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("missing required field: %s", e.Field)
}

func (e *MissingFieldError) Is(target error) bool { return target == ErrValidation }

// AlreadyUsedError carries the owner of a redeemed ticket so the door can
// show who it belonged to.
type AlreadyUsedError struct {
	Barcode string
	Person  directory.Person
}

func (e *AlreadyUsedError) Error() string {
	return fmt.Sprintf("ticket %s already used by %s", e.Barcode, e.Person.Name)
}

func (e *AlreadyUsedError) Is(target error) bool { return target == ErrAlreadyUsed }

// Invalid wraps ErrValidation with a detail message.
func Invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
