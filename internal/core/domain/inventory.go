package domain

import "time"

type Inventory struct {
	ProductNumber int64     `db:"product_number"`
	Name          string    `db:"name"`
	Price         Money     `db:"price"`
	Stock         int       `db:"stock"`
	Version       int64     `db:"version"` // optimistic locking
	CreatedAt     time.Time `db:"created_at"`
	UpdatedAt     time.Time `db:"updated_at"`
}

// CheckAvailable reports whether quantity could be taken from the current
// stock without mutating it.
func (i *Inventory) CheckAvailable(quantity int) error {
	if quantity <= 0 {
		return ErrInvalidQuantity
	}
	if i.Stock-quantity < 0 {
		return &InsufficientStockError{
			ProductNumber: i.ProductNumber,
			ProductName:   i.Name,
			Requested:     quantity,
			Available:     i.Stock,
		}
	}
	return nil
}

// Decrease is the only way stock goes down. It is not safe for concurrent
// use; callers hold a lock or a revision guard around it.
func (i *Inventory) Decrease(quantity int) error {
	if err := i.CheckAvailable(quantity); err != nil {
		return err
	}
	i.Stock -= quantity
	return nil
}
