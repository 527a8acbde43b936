package service

import (
	"errors"
	"fmt"

	"github.com/Aiosol/grandshop/internal/store"
)

// StockInsufficientError reports a line whose requested quantity exceeds the
// available stock. Carries what is available so callers can clamp or retry.
type StockInsufficientError struct {
	ProductID int64
	Available int
	Requested int
}

func (e *StockInsufficientError) Error() string {
	return fmt.Sprintf("insufficient stock for product %d: available=%d, requested=%d",
		e.ProductID, e.Available, e.Requested)
}

// ValidationError reports malformed customer or shipping input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// InvalidStatusError reports a status value outside the enumerated set.
type InvalidStatusError struct {
	Kind  string
	Value string
}

func (e *InvalidStatusError) Error() string {
	return fmt.Sprintf("invalid %s status: %q", e.Kind, e.Value)
}

// IsNotFound reports whether err is a missing-record error from the store.
func IsNotFound(err error) bool {
	return errors.Is(err, store.ErrNotFound)
}

// IsStockInsufficient reports whether err is a stock rejection, from either
// the service pre-check or the store's conditional decrement.
func IsStockInsufficient(err error) bool {
	var se *StockInsufficientError
	return errors.As(err, &se) || errors.Is(err, store.ErrInsufficientStock)
}
