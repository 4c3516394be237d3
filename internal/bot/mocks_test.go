package bot

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/chikanoff/arkham-volume-bot/internal/exchange"
	"github.com/chikanoff/arkham-volume-bot/internal/models"
)

// fakeStore - in-memory реализация Store для тестов
type fakeStore struct {
	mu      sync.Mutex
	records map[string]*models.OrderRecord

	insertErr error
	listErr   error
	countErr  error
	updateErr error
	incErr    error
}

func newFakeStore() *fakeStore {
	return &fakeStore{records: make(map[string]*models.OrderRecord)}
}

func (s *fakeStore) Insert(order *models.OrderRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.insertErr != nil {
		return s.insertErr
	}
	if _, ok := s.records[order.OrderID]; ok {
		return errors.New("duplicate order_id")
	}

	clone := *order
	s.records[order.OrderID] = &clone
	return nil
}

func (s *fakeStore) ListOpen(accountID string) ([]*models.OrderRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listErr != nil {
		return nil, s.listErr
	}

	var out []*models.OrderRecord
	for _, rec := range s.records {
		if rec.AccountID == accountID && rec.Status == models.OrderStatusOpen {
			clone := *rec
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *fakeStore) CountOpen(accountID string) (int, error) {
	if s.countErr != nil {
		return 0, s.countErr
	}

	open, err := s.ListOpen(accountID)
	if err != nil {
		return 0, err
	}
	return len(open), nil
}

func (s *fakeStore) UpdateStatus(orderID, status string, closedAt *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.updateErr != nil {
		return s.updateErr
	}

	rec, ok := s.records[orderID]
	if !ok {
		return errors.New("order not found")
	}
	if rec.Status == status {
		return nil // идемпотентный no-op
	}

	rec.Status = status
	if rec.ClosedAt == nil && closedAt != nil {
		t := *closedAt
		rec.ClosedAt = &t
	}
	return nil
}

func (s *fakeStore) IncrementCheckCount(orderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.incErr != nil {
		return s.incErr
	}

	rec, ok := s.records[orderID]
	if !ok || rec.Status != models.OrderStatusOpen {
		return errors.New("order not found or closed")
	}

	rec.CheckCount++
	return nil
}

func (s *fakeStore) get(orderID string) *models.OrderRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[orderID]
	if !ok {
		return nil
	}
	clone := *rec
	return &clone
}

func (s *fakeStore) openCount(accountID string) int {
	n, _ := s.CountOpen(accountID)
	return n
}

// fakeExchange - управляемая реализация exchange.Client для тестов
type fakeExchange struct {
	mu sync.Mutex

	price    float64
	priceErr error

	balance    float64
	balanceErr error

	createErr   error
	emptyOrder  bool
	orderSeq    int
	created     []exchange.OrderRequest
	createdIDs  []string
	cancelCalls int
	cancelErr   error

	// Последовательности ответов: каждый вызов съедает элемент,
	// последний элемент повторяется
	openOrdersSeq  [][]exchange.OpenOrder
	openOrdersErrs []error
	openOrdersIdx  int

	volumeSeq []exchange.VolumeStats
	volumeErr error
	volumeIdx int
}

func newFakeExchange() *fakeExchange {
	return &fakeExchange{price: 100, balance: 1000}
}

func (f *fakeExchange) GetMarketPrice(ctx context.Context, symbol string) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.priceErr != nil {
		return 0, f.priceErr
	}
	return f.price, nil
}

func (f *fakeExchange) GetBalance(ctx context.Context, asset string) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.balanceErr != nil {
		return 0, f.balanceErr
	}
	return f.balance, nil
}

func (f *fakeExchange) CreateOrder(ctx context.Context, req exchange.OrderRequest) (*exchange.OrderResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.createErr != nil {
		return nil, f.createErr
	}
	if f.emptyOrder {
		return nil, exchange.ErrEmptyOrderResponse
	}

	f.orderSeq++
	id := fmt.Sprintf("ord-%d", f.orderSeq)
	f.created = append(f.created, req)
	f.createdIDs = append(f.createdIDs, id)

	return &exchange.OrderResponse{OrderID: id}, nil
}

func (f *fakeExchange) CancelAllOrders(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cancelErr != nil {
		return f.cancelErr
	}
	f.cancelCalls++
	return nil
}

func (f *fakeExchange) ListOpenOrders(ctx context.Context) ([]exchange.OpenOrder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	idx := f.openOrdersIdx
	if idx >= len(f.openOrdersSeq) && len(f.openOrdersSeq) > 0 {
		idx = len(f.openOrdersSeq) - 1
	}
	if f.openOrdersIdx < len(f.openOrdersSeq) {
		f.openOrdersIdx++
	}

	if idx < len(f.openOrdersErrs) && f.openOrdersErrs[idx] != nil {
		return nil, f.openOrdersErrs[idx]
	}
	if idx < len(f.openOrdersSeq) {
		return f.openOrdersSeq[idx], nil
	}
	return nil, nil
}

func (f *fakeExchange) GetTradingVolume(ctx context.Context) (*exchange.VolumeStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.volumeErr != nil {
		err := f.volumeErr
		f.volumeErr = nil // однократная ошибка
		return nil, err
	}

	if len(f.volumeSeq) == 0 {
		return &exchange.VolumeStats{}, nil
	}

	idx := f.volumeIdx
	if idx >= len(f.volumeSeq) {
		idx = len(f.volumeSeq) - 1
	} else {
		f.volumeIdx++
	}

	stats := f.volumeSeq[idx]
	return &stats, nil
}

func (f *fakeExchange) Close() error { return nil }

func (f *fakeExchange) createdOrders() []exchange.OrderRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]exchange.OrderRequest, len(f.created))
	copy(out, f.created)
	return out
}

func (f *fakeExchange) cancels() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cancelCalls
}
