package repository

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/chikanoff/arkham-volume-bot/internal/models"
)

// Ошибки репозитория ордеров
var (
	ErrOrderNotFound  = errors.New("order not found")
	ErrDuplicateOrder = errors.New("order already exists")
)

// pq код ошибки unique_violation
const pqUniqueViolation = "23505"

// OrderRepository - работа с таблицей orders.
//
// Таблица - журнал записей о входных ордерах: строки добавляются и
// обновляются, но никогда не удаляются. Все решения бота перечитывают
// состояние отсюда, а не из памяти, поэтому перезапуск процесса
// продолжает сопровождение открытой позиции.
type OrderRepository struct {
	db *sql.DB
}

// NewOrderRepository создает новый экземпляр репозитория
func NewOrderRepository(db *sql.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// EnsureSchema создаёт таблицу и индексы если их ещё нет
func (r *OrderRepository) EnsureSchema() error {
	const schema = `
		CREATE TABLE IF NOT EXISTS orders (
			order_id    TEXT PRIMARY KEY,
			account_id  TEXT NOT NULL,
			symbol      TEXT NOT NULL,
			side        TEXT NOT NULL,
			size        DOUBLE PRECISION NOT NULL,
			open_price  DOUBLE PRECISION NOT NULL,
			status      TEXT NOT NULL DEFAULT 'open',
			created_at  TIMESTAMPTZ NOT NULL,
			closed_at   TIMESTAMPTZ,
			check_count INTEGER NOT NULL DEFAULT 0
		);
		CREATE INDEX IF NOT EXISTS idx_orders_account_status
			ON orders (account_id, status)`

	if _, err := r.db.Exec(schema); err != nil {
		return fmt.Errorf("ensure orders schema: %w", err)
	}
	return nil
}

// Insert создает запись об ордере.
// Возвращает ErrDuplicateOrder если order_id уже существует.
func (r *OrderRepository) Insert(order *models.OrderRecord) error {
	query := `
		INSERT INTO orders (order_id, account_id, symbol, side, size, open_price, status, created_at, closed_at, check_count)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	if order.CreatedAt.IsZero() {
		order.CreatedAt = time.Now()
	}
	if order.Status == "" {
		order.Status = models.OrderStatusOpen
	}

	_, err := r.db.Exec(
		query,
		order.OrderID,
		order.AccountID,
		order.Symbol,
		order.Side,
		order.Size,
		order.OpenPrice,
		order.Status,
		order.CreatedAt,
		order.ClosedAt,
		order.CheckCount,
	)

	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == pqUniqueViolation {
			return ErrDuplicateOrder
		}
		return err
	}

	return nil
}

// GetByID возвращает запись по order_id
func (r *OrderRepository) GetByID(orderID string) (*models.OrderRecord, error) {
	query := `
		SELECT order_id, account_id, symbol, side, size, open_price, status, created_at, closed_at, check_count
		FROM orders
		WHERE order_id = $1`

	order := &models.OrderRecord{}
	err := r.db.QueryRow(query, orderID).Scan(
		&order.OrderID,
		&order.AccountID,
		&order.Symbol,
		&order.Side,
		&order.Size,
		&order.OpenPrice,
		&order.Status,
		&order.CreatedAt,
		&order.ClosedAt,
		&order.CheckCount,
	)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}

	return order, nil
}

// ListOpen возвращает все открытые записи аккаунта, старые первыми
func (r *OrderRepository) ListOpen(accountID string) ([]*models.OrderRecord, error) {
	query := `
		SELECT order_id, account_id, symbol, side, size, open_price, status, created_at, closed_at, check_count
		FROM orders
		WHERE account_id = $1 AND status = $2
		ORDER BY created_at ASC`

	rows, err := r.db.Query(query, accountID, models.OrderStatusOpen)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []*models.OrderRecord
	for rows.Next() {
		order := &models.OrderRecord{}
		err := rows.Scan(
			&order.OrderID,
			&order.AccountID,
			&order.Symbol,
			&order.Side,
			&order.Size,
			&order.OpenPrice,
			&order.Status,
			&order.CreatedAt,
			&order.ClosedAt,
			&order.CheckCount,
		)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return orders, nil
}

// CountOpen возвращает количество открытых записей аккаунта
func (r *OrderRepository) CountOpen(accountID string) (int, error) {
	query := `SELECT COUNT(*) FROM orders WHERE account_id = $1 AND status = $2`

	var count int
	err := r.db.QueryRow(query, accountID, models.OrderStatusOpen).Scan(&count)
	if err != nil {
		return 0, err
	}

	return count, nil
}

// UpdateStatus переводит запись в новый статус.
//
// Идемпотентна: повторное применение того же статуса не меняет строку,
// closed_at выставляется только при первом переходе в closed.
func (r *OrderRepository) UpdateStatus(orderID, status string, closedAt *time.Time) error {
	query := `
		UPDATE orders
		SET status = $1, closed_at = COALESCE(closed_at, $2)
		WHERE order_id = $3 AND status <> $1`

	result, err := r.db.Exec(query, status, closedAt, orderID)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		// Либо записи нет, либо статус уже применён - второе не ошибка
		if _, err := r.GetByID(orderID); err != nil {
			return err
		}
	}

	return nil
}

// IncrementCheckCount увеличивает счётчик эскалаций открытой записи
func (r *OrderRepository) IncrementCheckCount(orderID string) error {
	query := `
		UPDATE orders
		SET check_count = check_count + 1
		WHERE order_id = $1 AND status = $2`

	result, err := r.db.Exec(query, orderID, models.OrderStatusOpen)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return ErrOrderNotFound
	}

	return nil
}
