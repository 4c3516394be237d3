package models

import "time"

// OrderRecord представляет запись о входном ордере в локальном хранилище.
// Одна строка на каждый отправленный на биржу ордер входа.
type OrderRecord struct {
	OrderID    string     `json:"order_id" db:"order_id"`       // идентификатор, присвоенный биржей
	AccountID  string     `json:"account_id" db:"account_id"`   // владелец записи (API key аккаунта)
	Symbol     string     `json:"symbol" db:"symbol"`           // торговая пара
	Side       string     `json:"side" db:"side"`               // buy, sell
	Size       float64    `json:"size" db:"size"`               // количество базового актива
	OpenPrice  float64    `json:"open_price" db:"open_price"`   // цена на момент отправки входа
	Status     string     `json:"status" db:"status"`           // open, closed
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
	ClosedAt   *time.Time `json:"closed_at,omitempty" db:"closed_at"`
	CheckCount int        `json:"check_count" db:"check_count"` // количество эскалаций по времени удержания
}

// Статусы записи
const (
	OrderStatusOpen   = "open"
	OrderStatusClosed = "closed"
)

// Стороны ордера
const (
	SideBuy  = "buy"
	SideSell = "sell"
)

// HoldTime возвращает время удержания позиции относительно now.
func (r *OrderRecord) HoldTime(now time.Time) time.Duration {
	return now.Sub(r.CreatedAt)
}

// IsOpen возвращает true если запись ещё не закрыта.
func (r *OrderRecord) IsOpen() bool {
	return r.Status == OrderStatusOpen
}
