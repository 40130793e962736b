/*
errors.go - Centralized error types for the ledger engine

ERROR CATEGORIES:
  1. Not found - student, billing or payment lookups
  2. Validation - rejected user input (missing reason, empty target, ...)
  3. Conflict - duplicate record IDs, invalid promotions

  Calculators never return errors: absent data degrades to zero balances
  and 100% clearance. Only mutating operations reject input.

USAGE:
  if errors.Is(err, ledger.ErrReasonRequired) { ... }
  if ledger.IsClientError(err) { ... } // 400
*/
package ledger

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	ErrStudentNotFound = errors.New("student not found")
	ErrBillingNotFound = errors.New("billing not found")
	ErrPaymentNotFound = errors.New("payment not found")

	// ErrValidation is the parent of every ValidationError.
	ErrValidation = errors.New("validation failed")

	// ErrReasonRequired is returned when a correction, delete or status
	// change has no reason.
	ErrReasonRequired = errors.New("a reason is required")

	// ErrNothingToCorrect is returned when the target equals the current balance.
	ErrNothingToCorrect = errors.New("balance already matches target, nothing to do")

	// ErrTargetRequired is returned when no target balance was entered.
	ErrTargetRequired = errors.New("a target balance is required")

	// ErrInvalidStatus is returned for a status outside the three known values.
	ErrInvalidStatus = errors.New("invalid account status")

	// ErrInvalidPromotion is returned when promoting into the current term
	// or into a term the student already has history for.
	ErrInvalidPromotion = errors.New("invalid promotion")

	// ErrDuplicateID is returned when a record with the same ID exists.
	ErrDuplicateID = errors.New("duplicate record id")
)

// =============================================================================
// STRUCTURED ERRORS
// =============================================================================

// ValidationError names the offending field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrReasonRequired) ||
		errors.Is(err, ErrNothingToCorrect) ||
		errors.Is(err, ErrTargetRequired) ||
		errors.Is(err, ErrInvalidStatus) ||
		errors.Is(err, ErrInvalidPromotion)
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrStudentNotFound) ||
		errors.Is(err, ErrBillingNotFound) ||
		errors.Is(err, ErrPaymentNotFound)
}

// IsConflict returns true if the error indicates a duplicate record.
func IsConflict(err error) bool {
	return errors.Is(err, ErrDuplicateID)
}
