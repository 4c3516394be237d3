// Package exchange предоставляет клиент для работы с биржей Arkham.
package exchange

import (
	"context"
	"errors"
	"time"
)

// Client определяет операции биржи, которые потребляет ядро бота.
// Все вызовы - исходящие подписанные HTTP запросы; входящего API у бота нет.
type Client interface {
	// GetMarketPrice получает текущую цену символа
	GetMarketPrice(ctx context.Context, symbol string) (float64, error)

	// GetBalance получает свободный баланс актива (например USDT)
	GetBalance(ctx context.Context, asset string) (float64, error)

	// CreateOrder размещает ордер и возвращает присвоенный биржей orderId
	CreateOrder(ctx context.Context, req OrderRequest) (*OrderResponse, error)

	// CancelAllOrders снимает все открытые ордера аккаунта
	CancelAllOrders(ctx context.Context) error

	// ListOpenOrders возвращает открытые (неисполненные) ордера аккаунта
	ListOpenOrders(ctx context.Context) ([]OpenOrder, error)

	// GetTradingVolume возвращает накопленную статистику объёма аккаунта
	GetTradingVolume(ctx context.Context) (*VolumeStats, error)

	// Close закрывает соединения клиента
	Close() error
}

// Типы ордеров Arkham
const (
	OrderTypeMarket   = "market"
	OrderTypeLimitGtc = "limitGtc"
)

// OrderRequest - параметры размещаемого ордера
type OrderRequest struct {
	Symbol string
	Side   string  // buy, sell
	Size   float64 // количество базового актива
	Price  float64 // reference цена для market, цена для limit
	Type   string  // market, limitGtc
}

// OrderResponse - ответ биржи на размещение ордера
type OrderResponse struct {
	OrderID       string `json:"orderId"`
	ClientOrderID string `json:"clientOrderId"`
}

// OpenOrder - открытый ордер из списка аккаунта
type OpenOrder struct {
	OrderID   string    `json:"orderId"`
	Symbol    string    `json:"symbol"`
	Side      string    `json:"side"`
	Size      float64   `json:"size"`
	Price     float64   `json:"price"`
	CreatedAt time.Time `json:"created_at"`
}

// VolumeStats - накопленный торговый объём и комиссии аккаунта.
// Биржа раздаёт maker и taker отдельно; бот работает с суммами.
type VolumeStats struct {
	SpotVolume float64
	PerpVolume float64
	SpotFees   float64
	PerpFees   float64
}

// Volume возвращает объём для выбранного режима
func (v *VolumeStats) Volume(perpetual bool) float64 {
	if perpetual {
		return v.PerpVolume
	}
	return v.SpotVolume
}

// Ошибки клиента
var (
	// ErrPriceUnavailable - биржа не вернула цену символа
	ErrPriceUnavailable = errors.New("market price unavailable")

	// ErrInsufficientBalance - баланс отсутствует или неположителен
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrEmptyOrderResponse - ответ на ордер без orderId
	ErrEmptyOrderResponse = errors.New("empty order response")
)

// APIError представляет неуспешный ответ биржи
type APIError struct {
	StatusCode int
	Path       string
	Body       string
}

func (e *APIError) Error() string {
	return "arkham api error: " + e.Path + ": " + e.Body
}

// Temporary: ответы 5xx и 429 считаются временными для retry логики
func (e *APIError) Temporary() bool {
	return e.StatusCode >= 500 || e.StatusCode == 429
}
