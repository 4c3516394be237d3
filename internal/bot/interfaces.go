package bot

import (
	"time"

	"github.com/chikanoff/arkham-volume-bot/internal/models"
)

// Store - контракт хранилища записей об ордерах.
// Реализуется repository.OrderRepository; в тестах подменяется фейком.
// Каждое решение цикла перечитывает состояние из хранилища,
// in-memory кэш записей не ведётся.
type Store interface {
	Insert(order *models.OrderRecord) error
	ListOpen(accountID string) ([]*models.OrderRecord, error)
	CountOpen(accountID string) (int, error)
	UpdateStatus(orderID, status string, closedAt *time.Time) error
	IncrementCheckCount(orderID string) error
}
