package ratelimit

import (
	"context"
	"sync"
	"time"
)

// RateLimiter - Token Bucket лимитер частоты запросов к API биржи.
//
// Ведро наполняется токенами с постоянной скоростью rate токенов/сек,
// ёмкость ведра = burst. Каждый запрос потребляет 1 токен; при пустом
// ведре Wait блокируется до пополнения.
//
// Каждый аккаунт бота получает собственный лимитер: запросы разных
// аккаунтов идут через разные ключи и прокси и не делят лимит.
//
//	limiter := NewRateLimiter(5, 10) // 5 req/sec, burst 10
//	if err := limiter.Wait(ctx); err != nil { ... }
type RateLimiter struct {
	rate       float64   // токенов в секунду
	burst      float64   // ёмкость ведра
	tokens     float64   // текущее количество токенов
	lastRefill time.Time // время последнего пополнения
	mu         sync.Mutex
}

// NewRateLimiter создаёт новый rate limiter.
// rate <= 0 и burst <= 0 заменяются разумными значениями по умолчанию.
func NewRateLimiter(rate, burst float64) *RateLimiter {
	if rate <= 0 {
		rate = 5
	}
	if burst <= 0 {
		burst = rate * 2
	}
	if burst < rate {
		burst = rate
	}

	return &RateLimiter{
		rate:       rate,
		burst:      burst,
		tokens:     burst, // стартуем с полным ведром
		lastRefill: time.Now(),
	}
}

// refill пополняет ведро по прошедшему времени. Вызывать под mu.
func (rl *RateLimiter) refill(now time.Time) {
	elapsed := now.Sub(rl.lastRefill).Seconds()
	if elapsed <= 0 {
		return
	}

	rl.tokens += elapsed * rl.rate
	if rl.tokens > rl.burst {
		rl.tokens = rl.burst
	}
	rl.lastRefill = now
}

// Allow неблокирующе пытается взять токен.
func (rl *RateLimiter) Allow() bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.refill(time.Now())
	if rl.tokens >= 1 {
		rl.tokens--
		return true
	}
	return false
}

// Wait блокируется пока не появится токен или не отменится контекст.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	for {
		rl.mu.Lock()
		now := time.Now()
		rl.refill(now)

		if rl.tokens >= 1 {
			rl.tokens--
			rl.mu.Unlock()
			return nil
		}

		// Сколько ждать до следующего токена
		deficit := 1 - rl.tokens
		wait := time.Duration(deficit / rl.rate * float64(time.Second))
		rl.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// Tokens возвращает текущее количество токенов (для тестов и метрик).
func (rl *RateLimiter) Tokens() float64 {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.refill(time.Now())
	return rl.tokens
}
