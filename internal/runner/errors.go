package runner

import (
	"errors"
	"fmt"
)

// MissingInputError indicates a run request without a required field.
// Rejected synchronously, before any run row is created.
type MissingInputError struct {
	Field string
}

// Error implements the error interface.
func (e *MissingInputError) Error() string {
	return fmt.Sprintf("missing required input: %s", e.Field)
}

// IsMissingInput returns true if the error is a MissingInputError.
func IsMissingInput(err error) bool {
	var me *MissingInputError
	return errors.As(err, &me)
}
