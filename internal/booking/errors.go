package booking

import (
	"errors"
	"fmt"
)

// ErrAuthentication is matched by every login failure.
var ErrAuthentication = errors.New("authentication failed")

// StepError wraps a driver fault with the step it happened in.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("booking: %s: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// AuthenticationError is the login step's failure. It matches ErrAuthentication.
type AuthenticationError struct {
	Err error
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("booking: login: %v: %v", ErrAuthentication, e.Err)
}

func (e *AuthenticationError) Unwrap() []error { return []error{ErrAuthentication, e.Err} }

func stepErr(step string, err error) error {
	if err == nil {
		return nil
	}
	return &StepError{Step: step, Err: err}
}
