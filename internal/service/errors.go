package service

import "fmt"

// ValidationError reports malformed or out-of-range input, rejected before
// any write
type ValidationError struct {
	Msg string
}

// Error implements the error interface
func (e *ValidationError) Error() string { return e.Msg }

func validationErrorf(format string, args ...interface{}) *ValidationError {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}
