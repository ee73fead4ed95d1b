package core

import (
	"errors"
	"fmt"
)

// Domain errors as sentinel values
var (
	ErrInvalidAmount = errors.New("invalid amount")

	// Product errors
	ErrDuplicateName    = errors.New("product name already exists")
	ErrProductNotFound  = errors.New("product not found")
	ErrProductInCart    = errors.New("product is referenced by a cart line")
	ErrNoFieldsToUpdate = errors.New("no fields to update")

	// Cart errors
	ErrCartLineNotFound = errors.New("cart item not found")
	ErrEmptyCart        = errors.New("cart is empty")

	// Ledger errors
	ErrExpenseNotFound = errors.New("expense not found")
	ErrIncomeNotFound  = errors.New("income not found")

	ErrNothingToExport = errors.New("no data to export")
)

// ValidationError reports a missing or malformed input field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s: %s", e.Field, e.Message)
}

func newValidationError(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// InsufficientStockError is returned when a requested quantity exceeds the
// product's recorded stock.
type InsufficientStockError struct {
	ProductID int64
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock: only %d available", e.Available)
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsInsufficientStock reports whether err is an InsufficientStockError.
func IsInsufficientStock(err error) bool {
	var se *InsufficientStockError
	return errors.As(err, &se)
}

// IsNotFound reports whether err refers to an unknown entity.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrProductNotFound) ||
		errors.Is(err, ErrCartLineNotFound) ||
		errors.Is(err, ErrExpenseNotFound) ||
		errors.Is(err, ErrIncomeNotFound)
}

// IsDomainError separates recoverable domain failures from storage faults.
func IsDomainError(err error) bool {
	if err == nil {
		return false
	}
	if IsValidation(err) || IsInsufficientStock(err) || IsNotFound(err) {
		return true
	}
	for _, target := range []error{
		ErrInvalidAmount,
		ErrDuplicateName,
		ErrProductInCart,
		ErrNoFieldsToUpdate,
		ErrEmptyCart,
		ErrNothingToExport,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
