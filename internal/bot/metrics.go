package bot

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ============================================================
// Prometheus метрики цикла накрутки объёма
// ============================================================
//
// Использование:
// - Grafana дашборды для контроля прогресса аккаунтов
// - Alertmanager для уведомлений о застрявших аккаунтах

// ============ Счётчики событий ============

// CyclesTotal - количество пройденных циклов драйвера
var CyclesTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "volumebot",
		Subsystem: "driver",
		Name:      "cycles_total",
		Help:      "Total number of driver cycles",
	},
	[]string{"account"},
)

// CycleErrors - ошибки, поглощённые драйвером
var CycleErrors = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "volumebot",
		Subsystem: "driver",
		Name:      "cycle_errors_total",
		Help:      "Total number of transient errors absorbed by the driver loop",
	},
	[]string{"account", "stage"}, // stage: volume_check, opening, managing
)

// OrdersSubmitted - отправленные ордера
var OrdersSubmitted = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "volumebot",
		Subsystem: "orders",
		Name:      "submitted_total",
		Help:      "Total number of orders submitted to the exchange",
	},
	[]string{"account", "symbol", "side", "type"},
)

// PositionsClosed - закрытия позиций по причинам
var PositionsClosed = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "volumebot",
		Subsystem: "positions",
		Name:      "closed_total",
		Help:      "Total number of closed positions by exit reason",
	},
	[]string{"account", "reason"}, // profit_take, breakeven, forced, requeue
)

// RequeuesTotal - переставленные лимитные ордера
var RequeuesTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "volumebot",
		Subsystem: "orders",
		Name:      "requeues_total",
		Help:      "Total number of cancel-and-resubmit cycles for resting limit orders",
	},
	[]string{"account", "symbol"},
)

// ============ Метрики состояния ============

// AccountVolume - накопленный объём аккаунта
var AccountVolume = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: "volumebot",
		Subsystem: "account",
		Name:      "volume_usdt",
		Help:      "Cumulative traded volume reported by the exchange",
	},
	[]string{"account", "market"}, // market: spot, perp
)

// OpenPositions - открытые позиции аккаунта
var OpenPositions = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: "volumebot",
		Subsystem: "positions",
		Name:      "open",
		Help:      "Current number of open position records per account",
	},
	[]string{"account"},
)

// DriverState - текущее состояние драйвера (1 у активного состояния)
var DriverState = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: "volumebot",
		Subsystem: "driver",
		Name:      "state",
		Help:      "Current driver state per account (1 = active state)",
	},
	[]string{"account", "state"},
)

// ============ Метрики латентности ============

// OrderSubmitLatency - время отправки ордера на биржу
var OrderSubmitLatency = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "volumebot",
		Subsystem: "orders",
		Name:      "submit_latency_ms",
		Help:      "Time to submit an order to the exchange in milliseconds",
		Buckets:   []float64{50, 100, 200, 300, 500, 1000, 2000, 5000},
	},
	[]string{"account", "type"},
)

// ============ Вспомогательные функции ============

// RecordOrderSubmitted записывает отправленный ордер
func RecordOrderSubmitted(account, symbol, side, orderType string, latencyMs float64) {
	OrdersSubmitted.WithLabelValues(account, symbol, side, orderType).Inc()
	OrderSubmitLatency.WithLabelValues(account, orderType).Observe(latencyMs)
}

// RecordClose записывает закрытие позиции
func RecordClose(account, reason string) {
	PositionsClosed.WithLabelValues(account, reason).Inc()
}

// RecordCycleError записывает поглощённую ошибку цикла
func RecordCycleError(account, stage string) {
	CycleErrors.WithLabelValues(account, stage).Inc()
}

// UpdateDriverState переключает gauge состояния драйвера
func UpdateDriverState(account, from, to string) {
	if from != "" {
		DriverState.WithLabelValues(account, from).Set(0)
	}
	DriverState.WithLabelValues(account, to).Set(1)
}

// UpdateVolume обновляет накопленный объём аккаунта
func UpdateVolume(account string, spot, perp float64) {
	AccountVolume.WithLabelValues(account, "spot").Set(spot)
	AccountVolume.WithLabelValues(account, "perp").Set(perp)
}
