package sandbox

import (
	"errors"
	"fmt"
	"time"
)

// TimeoutError is returned when a script exceeds the wall-clock limit.
// Distinct from script logic errors: the script was killed, it did not fail.
type TimeoutError struct {
	Limit time.Duration
}

// Error implements the error interface.
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("script exceeded execution time limit (%s)", e.Limit)
}

// IsTimeout returns true if the error is a TimeoutError.
// Uses errors.As to handle wrapped errors.
func IsTimeout(err error) bool {
	var te *TimeoutError
	return errors.As(err, &te)
}

// MemoryLimitError is returned when a script exceeds the memory ceiling.
type MemoryLimitError struct {
	Limit int64 // Ceiling in bytes
}

// Error implements the error interface.
func (e *MemoryLimitError) Error() string {
	return fmt.Sprintf("script exceeded memory limit (%d bytes)", e.Limit)
}

// IsMemoryLimit returns true if the error is a MemoryLimitError.
func IsMemoryLimit(err error) bool {
	var me *MemoryLimitError
	return errors.As(err, &me)
}

// ScriptError is an uncaught exception (or compile failure) inside the
// sandbox. Message and Stack are the script's own words; they end up on the
// run record as the stderr-equivalent.
type ScriptError struct {
	Message string
	Stack   string
}

// Error implements the error interface.
func (e *ScriptError) Error() string {
	return e.Message
}

// IsScriptError returns true if the error is a ScriptError.
func IsScriptError(err error) bool {
	var se *ScriptError
	return errors.As(err, &se)
}
