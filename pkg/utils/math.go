package utils

import (
	"math"
)

// math.go - математика размеров и цен ордеров
//
// Все функции чистые, без побочных эффектов.

// RoundToStep округляет значение ВНИЗ до ближайшего кратного step.
//
// Округление вниз гарантирует, что размер ордера не превысит доступные
// средства, а цена лимитника не пересечёт минимальный шаг биржи.
//
// Если step <= 0, возвращает исходное значение.
//
// Примеры:
//   - RoundToStep(0.123456, 0.001) = 0.123
//   - RoundToStep(100.5, 1.0) = 100.0
func RoundToStep(value, step float64) float64 {
	if step <= 0 {
		return value
	}
	// Относительный epsilon прощает ошибку представления float64,
	// чтобы точное кратное не проваливалось на шаг вниз
	ratio := value / step * (1 + 1e-12)
	return math.Floor(ratio) * step
}

// OrderSize вычисляет размер входного ордера из доступного баланса.
//
// size = balance * fraction * leverage / price, округлённый вниз до lot step.
// fraction оставляет запас на комиссии и проскальзывание.
//
// Возвращает 0 если входные данные не позволяют открыть ордер.
func OrderSize(balance, price, fraction, leverage, lotStep float64) float64 {
	if balance <= 0 || price <= 0 || fraction <= 0 {
		return 0
	}
	if leverage < 1 {
		leverage = 1
	}

	raw := balance * fraction * leverage / price
	size := RoundToStep(raw, lotStep)
	if size <= 0 {
		return 0
	}
	return size
}

// LimitPrice вычисляет цену лимитного ордера со смещением от рынка.
//
// Для buy цена ставится НИЖЕ рынка, для sell - ВЫШЕ:
//
//	buy:  price * (1 - diff)
//	sell: price * (1 + diff)
//
// Результат округляется вниз до priceStep.
func LimitPrice(marketPrice, diff float64, side string, priceStep float64) float64 {
	var price float64
	if side == "buy" {
		price = marketPrice * (1 - diff)
	} else {
		price = marketPrice * (1 + diff)
	}
	return RoundToStep(price, priceStep)
}

// IsMultipleOf проверяет, что value кратно step с поправкой на float64.
func IsMultipleOf(value, step float64) bool {
	if step <= 0 {
		return true
	}
	ratio := value / step
	return math.Abs(ratio-math.Round(ratio)) < 1e-9
}
