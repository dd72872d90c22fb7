package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidOrder          = errors.New("invalid order")
	ErrInvalidQuantity       = errors.New("quantity must be positive")
	ErrProductNotFound       = errors.New("product not found")
	ErrInsufficientStock     = errors.New("insufficient stock")
	ErrConflict              = errors.New("concurrent update conflict")
	ErrOrderNotFound         = errors.New("order not found")
	ErrDuplicateRequest      = errors.New("duplicate request")
	ErrIdempotencyKeyExpired = errors.New("idempotency key expired")
	ErrInvalidIdempotencyKey = errors.New("invalid idempotency key")
)

// InsufficientStockError carries the product and the requested vs available
// quantity. It matches ErrInsufficientStock with errors.Is.
type InsufficientStockError struct {
	ProductNumber int64
	ProductName   string
	Requested     int
	Available     int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock: product %s(%d), requested %d, available %d",
		e.ProductName, e.ProductNumber, e.Requested, e.Available)
}

func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

// ProductNotFound builds the error returned when productNumber has no inventory row.
func ProductNotFound(productNumber int64) error {
	return fmt.Errorf("%w: %d", ErrProductNotFound, productNumber)
}

// InvalidOrder wraps ErrInvalidOrder with the validation failure.
func InvalidOrder(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidOrder, fmt.Sprintf(format, args...))
}
