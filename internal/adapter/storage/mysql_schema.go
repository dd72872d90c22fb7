package storage

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

const createInventoryTable = `
CREATE TABLE IF NOT EXISTS inventory (
    product_number BIGINT NOT NULL PRIMARY KEY,
    name VARCHAR(255) NOT NULL,
    price DECIMAL(15,2) NOT NULL,
    stock INT NOT NULL,
    version BIGINT NOT NULL DEFAULT 0,
    created_at DATETIME(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6),
    updated_at DATETIME(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6) ON UPDATE CURRENT_TIMESTAMP(6),
    CONSTRAINT chk_inventory_stock CHECK (stock >= 0)
) ENGINE=InnoDB`

const createOrdersTable = `
CREATE TABLE IF NOT EXISTS orders (
    order_number VARCHAR(36) NOT NULL PRIMARY KEY,
    ordered_at DATETIME(6) NOT NULL,
    subtotal DECIMAL(15,2) NOT NULL,
    shipping_fee DECIMAL(15,2) NOT NULL,
    payment_amount DECIMAL(15,2) NOT NULL,
    INDEX idx_orders_ordered_at (ordered_at)
) ENGINE=InnoDB`

const createOrderItemsTable = `
CREATE TABLE IF NOT EXISTS order_items (
    id BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY,
    order_number VARCHAR(36) NOT NULL,
    product_number BIGINT NOT NULL,
    product_name VARCHAR(255) NOT NULL,
    unit_price DECIMAL(15,2) NOT NULL,
    quantity INT NOT NULL,
    INDEX idx_order_items_order (order_number),
    CONSTRAINT fk_order_items_order FOREIGN KEY (order_number) REFERENCES orders (order_number) ON DELETE CASCADE
) ENGINE=InnoDB`

const createIdempotencyKeysTable = `
CREATE TABLE IF NOT EXISTS idempotency_keys (
    key_value VARCHAR(255) NOT NULL PRIMARY KEY,
    order_number VARCHAR(36) NULL,
    status VARCHAR(16) NOT NULL,
    created_at DATETIME(6) NOT NULL,
    expires_at DATETIME(6) NOT NULL,
    INDEX idx_idempotency_keys_expires_at (expires_at)
) ENGINE=InnoDB`

var schemaStatements = []string{
	createInventoryTable,
	createOrdersTable,
	createOrderItemsTable,
	createIdempotencyKeysTable,
}

// ApplySchema creates any missing table. It is safe to run on every start.
func ApplySchema(ctx context.Context, db *sqlx.DB) error {
	for _, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}
