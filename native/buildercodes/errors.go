package buildercodes

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidCode  = errors.New("buildercodes: invalid code")
	ErrCodeTaken    = errors.New("buildercodes: code already registered")
	ErrUnregistered = errors.New("buildercodes: code not registered")
	ErrUnauthorized = errors.New("buildercodes: unauthorized")
	ErrZeroAddress  = errors.New("buildercodes: zero address")
)

// RegistrationDeadlineError reports a signature-delegated registration
// attempted past its validity window.
type RegistrationDeadlineError struct {
	Deadline int64
}

func (e *RegistrationDeadlineError) Error() string {
	return fmt.Sprintf("buildercodes: registration deadline %d passed", e.Deadline)
}
