/*
errors.go - Centralized error types for the ledger engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  The request surface classifies errors with the helpers at the bottom
  of this file to pick an HTTP status.

ERROR CATEGORIES:
  1. Validation errors - malformed or out-of-range input (wrap ErrValidation)
  2. Not-found errors - referenced entity is absent
  3. Business-rule violations - InsufficientFunds, CreditLimitExceeded
  4. Conflicts - uniqueness and referential integrity

SEE ALSO:
  - engine.go: Returns these errors
  - api/handlers.go: Maps them to HTTP status codes
*/
package ledger

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	ErrAccountNotFound        = errors.New("account not found")
	ErrCategoryNotFound       = errors.New("category not found")
	ErrParentCategoryNotFound = errors.New("parent category not found")
	ErrTransactionNotFound    = errors.New("transaction not found")

	// ErrInsufficientFunds is returned when a cash/debit account would go negative.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrCreditLimitExceeded is returned when a credit account would owe more than its limit.
	ErrCreditLimitExceeded = errors.New("credit limit exceeded")

	// ErrDuplicateName is returned when an account name is already taken.
	ErrDuplicateName = errors.New("name already exists")

	// ErrCategoryInUse is returned when deleting a category that transactions still reference.
	ErrCategoryInUse = errors.New("category is referenced by transactions")

	// ErrValidation is the parent of every input validation error.
	ErrValidation = errors.New("validation failed")
)

var (
	ErrInvalidAccountKind  = fmt.Errorf("%w: account type must be: cash, debit, or credit", ErrValidation)
	ErrInvalidCreditLimit  = fmt.Errorf("%w: credit limit must be greater than 0", ErrValidation)
	ErrEmptyName           = fmt.Errorf("%w: name must not be empty", ErrValidation)
	ErrInvalidCategoryType = fmt.Errorf("%w: category type must be: income or expense", ErrValidation)
	ErrCategoryTooDeep     = fmt.Errorf("%w: subcategories can only be 1 level deep", ErrValidation)
	ErrCategoryRequired    = fmt.Errorf("%w: category_id is required", ErrValidation)
	ErrInvalidAmount       = fmt.Errorf("%w: amount must be greater than 0", ErrValidation)
	ErrSameAccount         = fmt.Errorf("%w: cannot transfer to the same account", ErrValidation)
	ErrTransferLegUpdate   = fmt.Errorf("%w: transfer transactions cannot be edited, delete the transfer instead", ErrValidation)
	ErrInvalidPage         = fmt.Errorf("%w: limit must be between 1 and %d and offset must not be negative", ErrValidation, MaxPageSize)
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// BalanceError provides details about a rejected balance change.
// It unwraps to ErrCreditLimitExceeded for credit accounts and to
// ErrInsufficientFunds otherwise.
type BalanceError struct {
	AccountID   AccountID
	Kind        AccountKind
	Balance     decimal.Decimal
	NewBalance  decimal.Decimal
	CreditLimit decimal.Decimal
}

func (e *BalanceError) Error() string {
	if e.Kind == KindCredit {
		return fmt.Sprintf("credit limit exceeded: account %d would reach %s (limit %s)",
			e.AccountID, e.NewBalance, e.CreditLimit)
	}
	return fmt.Sprintf("insufficient funds: account %d has %s, would reach %s",
		e.AccountID, e.Balance, e.NewBalance)
}

func (e *BalanceError) Unwrap() error {
	if e.Kind == KindCredit {
		return ErrCreditLimitExceeded
	}
	return ErrInsufficientFunds
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrAccountNotFound) ||
		errors.Is(err, ErrCategoryNotFound) ||
		errors.Is(err, ErrParentCategoryNotFound) ||
		errors.Is(err, ErrTransactionNotFound)
}

// IsClientError returns true if the error is due to invalid client input
// or a business rule violation.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInsufficientFunds) ||
		errors.Is(err, ErrCreditLimitExceeded)
}

// IsConflict returns true if the error violates a uniqueness or reference constraint.
func IsConflict(err error) bool {
	return errors.Is(err, ErrDuplicateName) ||
		errors.Is(err, ErrCategoryInUse)
}
