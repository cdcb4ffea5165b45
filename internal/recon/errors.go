package recon

import (
	"errors"
	"fmt"
)

// MissingTicketTypeError is returned when a ticket add-on references a ticket
// type that is not present in Inputs.TicketTypes.
//
// This is fatal to the calculation: treating the missing type as a free
// ticket would silently corrupt every downstream total.
type MissingTicketTypeError struct {
	AddOnID      string
	TicketTypeID string
}

// Error implements the error interface.
func (e *MissingTicketTypeError) Error() string {
	return fmt.Sprintf("ticket type %q not loaded for ticket add-on %s", e.TicketTypeID, e.AddOnID)
}

// IsMissingTicketType returns true if the error is a MissingTicketTypeError.
// Uses errors.As to handle wrapped errors.
func IsMissingTicketType(err error) bool {
	var me *MissingTicketTypeError
	return errors.As(err, &me)
}

// InvalidFeeConfigError is returned when the event's processing-fee
// percentage makes the gross-up denominator (1 - processorRate - pct)
// non-positive. The closed-form solution has no finite answer there, so the
// configuration is rejected loudly instead of clamped.
type InvalidFeeConfigError struct {
	ProcessingFeePct float64
	Denominator      float64
}

// Error implements the error interface.
func (e *InvalidFeeConfigError) Error() string {
	return fmt.Sprintf("invalid processing fee percentage %v: gross-up denominator would be %v", e.ProcessingFeePct, e.Denominator)
}

// IsInvalidFeeConfig returns true if the error is an InvalidFeeConfigError.
func IsInvalidFeeConfig(err error) bool {
	var fe *InvalidFeeConfigError
	return errors.As(err, &fe)
}
