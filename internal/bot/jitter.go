package bot

import (
	"math/rand"
	"sync"
	"time"
)

// Pacer выбирает паузу между циклами драйвера.
// Вынесен в интерфейс, чтобы в тестах паузу можно было обнулить.
type Pacer interface {
	Next() time.Duration
}

// UniformPacer выдаёт равномерно случайную паузу в [min, max].
// Нерегулярный темп не даёт циклу работать с детектируемой
// фиксированной периодичностью.
type UniformPacer struct {
	min time.Duration
	max time.Duration

	mu  sync.Mutex
	rng *rand.Rand
}

// NewUniformPacer создаёт пейсер со случайным seed
func NewUniformPacer(min, max time.Duration) *UniformPacer {
	if max < min {
		max = min
	}
	return &UniformPacer{
		min: min,
		max: max,
		rng: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Next возвращает очередную паузу
func (p *UniformPacer) Next() time.Duration {
	if p.max == p.min {
		return p.min
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	return p.min + time.Duration(p.rng.Int63n(int64(p.max-p.min)))
}

// FixedPacer всегда возвращает одну и ту же паузу (для тестов)
type FixedPacer time.Duration

func (p FixedPacer) Next() time.Duration {
	return time.Duration(p)
}
