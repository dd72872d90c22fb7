package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"

	"github.com/rl1809/order-engine/internal/core/domain"
	"github.com/rl1809/order-engine/internal/port"
)

const (
	mysqlErrDuplicateEntry  = 1062
	mysqlErrLockWaitTimeout = 1205
	mysqlErrDeadlock        = 1213
)

const selectInventory = `
	SELECT product_number, name, price, stock, version, created_at, updated_at
	FROM inventory WHERE product_number = ?`

// OpenMySQL connects with sqlx. The DSN needs parseTime=true.
func OpenMySQL(ctx context.Context, dsn string) (*sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, "mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect mysql: %w", err)
	}
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(5 * time.Minute)
	return db, nil
}

// MySQLAdapter implements InventoryStore and OrderRepository on InnoDB.
type MySQLAdapter struct {
	db          *sqlx.DB
	lockTimeout time.Duration
}

func NewMySQLAdapter(db *sqlx.DB, lockTimeout time.Duration) *MySQLAdapter {
	return &MySQLAdapter{db: db, lockTimeout: lockTimeout}
}

func (m *MySQLAdapter) GetInventory(ctx context.Context, productNumber int64) (*domain.Inventory, error) {
	return getInventory(ctx, m.db, selectInventory, productNumber)
}

// PutInventory inserts a product or overwrites name, price and stock of an
// existing one, bumping its version.
func (m *MySQLAdapter) PutInventory(ctx context.Context, inv domain.Inventory) error {
	_, err := m.db.NamedExecContext(ctx, `
		INSERT INTO inventory (product_number, name, price, stock, version)
		VALUES (:product_number, :name, :price, :stock, 0)
		ON DUPLICATE KEY UPDATE
			name = VALUES(name), price = VALUES(price), stock = VALUES(stock), version = version + 1`,
		inv,
	)
	if err != nil {
		return fmt.Errorf("put inventory %d: %w", inv.ProductNumber, err)
	}
	return nil
}

func (m *MySQLAdapter) WithinTx(ctx context.Context, fn func(ctx context.Context, tx port.InventoryTx) error) error {
	tx, err := m.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if m.lockTimeout > 0 {
		seconds := max(1, int(math.Ceil(m.lockTimeout.Seconds())))
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("SET SESSION innodb_lock_wait_timeout = %d", seconds)); err != nil {
			return fmt.Errorf("set lock wait timeout: %w", err)
		}
	}

	if err := fn(ctx, &mysqlTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", mapLockError(err))
	}
	return nil
}

type orderRow struct {
	OrderNumber   string       `db:"order_number"`
	OrderedAt     time.Time    `db:"ordered_at"`
	Subtotal      domain.Money `db:"subtotal"`
	ShippingFee   domain.Money `db:"shipping_fee"`
	PaymentAmount domain.Money `db:"payment_amount"`
}

type orderItemRow struct {
	OrderNumber string `db:"order_number"`
	domain.OrderLine
}

func (r orderRow) toOrder(lines []domain.OrderLine) domain.Order {
	return domain.Order{
		OrderNumber:   r.OrderNumber,
		OrderedAt:     r.OrderedAt,
		Lines:         lines,
		Subtotal:      r.Subtotal,
		ShippingFee:   r.ShippingFee,
		PaymentAmount: r.PaymentAmount,
	}
}

func (m *MySQLAdapter) GetOrder(ctx context.Context, orderNumber string) (*domain.Order, error) {
	var row orderRow
	err := m.db.GetContext(ctx, &row, `
		SELECT order_number, ordered_at, subtotal, shipping_fee, payment_amount
		FROM orders WHERE order_number = ?`, orderNumber)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query order: %w", err)
	}

	var lines []domain.OrderLine
	err = m.db.SelectContext(ctx, &lines, `
		SELECT product_number, product_name, unit_price, quantity
		FROM order_items WHERE order_number = ? ORDER BY product_number`, orderNumber)
	if err != nil {
		return nil, fmt.Errorf("query order items: %w", err)
	}

	order := row.toOrder(lines)
	return &order, nil
}

// ListOrders returns orders placed in [from, to), newest first. A limit of
// zero means no limit.
func (m *MySQLAdapter) ListOrders(ctx context.Context, from, to time.Time, limit, offset int) ([]domain.Order, error) {
	if limit <= 0 {
		limit = math.MaxInt32
	}

	var rows []orderRow
	err := m.db.SelectContext(ctx, &rows, `
		SELECT order_number, ordered_at, subtotal, shipping_fee, payment_amount
		FROM orders WHERE ordered_at >= ? AND ordered_at < ?
		ORDER BY ordered_at DESC, order_number
		LIMIT ? OFFSET ?`, from, to, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	if len(rows) == 0 {
		return []domain.Order{}, nil
	}

	numbers := make([]string, len(rows))
	for i, row := range rows {
		numbers[i] = row.OrderNumber
	}
	query, args, err := sqlx.In(`
		SELECT order_number, product_number, product_name, unit_price, quantity
		FROM order_items WHERE order_number IN (?) ORDER BY order_number, product_number`, numbers)
	if err != nil {
		return nil, fmt.Errorf("build order items query: %w", err)
	}

	var items []orderItemRow
	if err := m.db.SelectContext(ctx, &items, m.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("query order items: %w", err)
	}

	lines := make(map[string][]domain.OrderLine, len(rows))
	for _, item := range items {
		lines[item.OrderNumber] = append(lines[item.OrderNumber], item.OrderLine)
	}

	orders := make([]domain.Order, len(rows))
	for i, row := range rows {
		orders[i] = row.toOrder(lines[row.OrderNumber])
	}
	return orders, nil
}

type mysqlTx struct {
	tx *sqlx.Tx
}

func (t *mysqlTx) GetInventory(ctx context.Context, productNumber int64) (*domain.Inventory, error) {
	return getInventory(ctx, t.tx, selectInventory, productNumber)
}

func (t *mysqlTx) GetInventoryForUpdate(ctx context.Context, productNumber int64) (*domain.Inventory, error) {
	inv, err := getInventory(ctx, t.tx, selectInventory+" FOR UPDATE", productNumber)
	if err != nil {
		return nil, mapLockError(err)
	}
	return inv, nil
}

func (t *mysqlTx) UpdateInventory(ctx context.Context, inv domain.Inventory) error {
	result, err := t.tx.ExecContext(ctx, `
		UPDATE inventory
		SET stock = ?, version = version + 1
		WHERE product_number = ? AND version = ?`,
		inv.Stock, inv.ProductNumber, inv.Version,
	)
	if err != nil {
		return fmt.Errorf("update inventory: %w", mapLockError(err))
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if rows == 0 {
		return port.ErrOptimisticLock
	}
	return nil
}

func (t *mysqlTx) CreateOrder(ctx context.Context, order domain.Order) error {
	_, err := t.tx.NamedExecContext(ctx, `
		INSERT INTO orders (order_number, ordered_at, subtotal, shipping_fee, payment_amount)
		VALUES (:order_number, :ordered_at, :subtotal, :shipping_fee, :payment_amount)`,
		orderRow{
			OrderNumber:   order.OrderNumber,
			OrderedAt:     order.OrderedAt,
			Subtotal:      order.Subtotal,
			ShippingFee:   order.ShippingFee,
			PaymentAmount: order.PaymentAmount,
		},
	)
	if err != nil {
		return fmt.Errorf("insert order: %w", mapLockError(err))
	}
	if len(order.Lines) == 0 {
		return nil
	}

	items := make([]orderItemRow, len(order.Lines))
	for i, line := range order.Lines {
		items[i] = orderItemRow{OrderNumber: order.OrderNumber, OrderLine: line}
	}
	_, err = t.tx.NamedExecContext(ctx, `
		INSERT INTO order_items (order_number, product_number, product_name, unit_price, quantity)
		VALUES (:order_number, :product_number, :product_name, :unit_price, :quantity)`,
		items,
	)
	if err != nil {
		return fmt.Errorf("insert order items: %w", mapLockError(err))
	}
	return nil
}

func getInventory(ctx context.Context, q sqlx.QueryerContext, query string, productNumber int64) (*domain.Inventory, error) {
	var inv domain.Inventory
	err := sqlx.GetContext(ctx, q, &inv, query, productNumber)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query inventory: %w", err)
	}
	return &inv, nil
}

func isMySQLError(err error, numbers ...uint16) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && slices.Contains(numbers, me.Number)
}

// mapLockError turns lock wait timeouts and deadlock victims into
// port.ErrLockTimeout so the caller can retry the transaction.
func mapLockError(err error) error {
	if isMySQLError(err, mysqlErrLockWaitTimeout, mysqlErrDeadlock) {
		return fmt.Errorf("%w: %w", port.ErrLockTimeout, err)
	}
	return err
}
