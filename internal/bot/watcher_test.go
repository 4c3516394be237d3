package bot

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/chikanoff/arkham-volume-bot/internal/config"
	"github.com/chikanoff/arkham-volume-bot/internal/exchange"
	"github.com/chikanoff/arkham-volume-bot/internal/models"
)

func watcherConfig() config.BotConfig {
	cfg := testBotConfig()
	cfg.OrderStyle = "limit"
	cfg.FillPollInterval = 10 * time.Millisecond
	cfg.LimitHoldTime = time.Hour // перестановка по умолчанию не срабатывает
	return cfg
}

func newTestWatcher(store *fakeStore, client *fakeExchange, cfg config.BotConfig) *Watcher {
	rules := map[string]models.SymbolRule{"BTC_USDT": btcRule()}
	return NewWatcher(store, client, cfg, rules, testAccount, zap.NewNop())
}

func restingRecord(store *fakeStore) *models.OrderRecord {
	rec := &models.OrderRecord{
		OrderID:   "limit-1",
		AccountID: testAccount,
		Symbol:    "BTC_USDT",
		Side:      models.SideBuy,
		Size:      0.01,
		OpenPrice: 49950,
		Status:    models.OrderStatusOpen,
		CreatedAt: time.Now(),
	}
	store.Insert(rec)
	return rec
}

func TestWatcherReturnsOnFill(t *testing.T) {
	store := newFakeStore()
	client := newFakeExchange()
	client.openOrdersSeq = [][]exchange.OpenOrder{
		{{OrderID: "limit-1"}},
		{}, // исполнился
	}

	rec := restingRecord(store)

	w := newTestWatcher(store, client, watcherConfig())

	got, err := w.Wait(context.Background(), rec)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if got.OrderID != "limit-1" {
		t.Errorf("returned record %s, want limit-1", got.OrderID)
	}
	if client.cancels() != 0 {
		t.Errorf("no cancels expected, got %d", client.cancels())
	}
}

func TestWatcherRequeuesStaleOrder(t *testing.T) {
	store := newFakeStore()
	client := newFakeExchange()
	client.price = 50000
	client.openOrdersSeq = [][]exchange.OpenOrder{
		{{OrderID: "limit-1"}}, // висит, hold time истёк -> перестановка
		{},                     // новый ордер исполнился
	}

	rec := restingRecord(store)

	cfg := watcherConfig()
	cfg.LimitHoldTime = time.Millisecond

	w := newTestWatcher(store, client, cfg)

	got, err := w.Wait(context.Background(), rec)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}

	// Ровно один cancel-all и одна повторная отправка
	if client.cancels() != 1 {
		t.Errorf("cancel calls = %d, want 1", client.cancels())
	}
	orders := client.createdOrders()
	if len(orders) != 1 {
		t.Fatalf("resubmissions = %d, want 1", len(orders))
	}

	// Покупка переставляется ниже рынка на configured diff
	wantPrice := 50000 * (1 - cfg.LimitOrderDiff)
	if math.Abs(orders[0].Price-wantPrice) > 1e-6 {
		t.Errorf("requeue price = %v, want %v", orders[0].Price, wantPrice)
	}
	if orders[0].Price >= 50000 {
		t.Errorf("buy requeue price %v must be below market", orders[0].Price)
	}
	if orders[0].Type != exchange.OrderTypeLimitGtc {
		t.Errorf("requeue type = %s", orders[0].Type)
	}

	// Старая запись закрыта, новая открыта, открытых не больше одной
	old := store.get("limit-1")
	if old.Status != models.OrderStatusClosed || old.ClosedAt == nil {
		t.Errorf("stale record not closed: %+v", old)
	}
	if got.OrderID == "limit-1" {
		t.Error("watcher must return the resubmitted record")
	}
	if math.Abs(got.OpenPrice-wantPrice) > 1e-6 {
		t.Errorf("new record price = %v, want %v", got.OpenPrice, wantPrice)
	}
	if n := store.openCount(testAccount); n != 1 {
		t.Errorf("open records = %d, want 1", n)
	}
}

func TestWatcherSurvivesPollErrors(t *testing.T) {
	store := newFakeStore()
	client := newFakeExchange()
	client.openOrdersSeq = [][]exchange.OpenOrder{
		{{OrderID: "limit-1"}},
		{{OrderID: "limit-1"}},
		{},
	}
	client.openOrdersErrs = []error{errors.New("connection reset"), nil, nil}

	rec := restingRecord(store)

	w := newTestWatcher(store, client, watcherConfig())

	if _, err := w.Wait(context.Background(), rec); err != nil {
		t.Fatalf("Wait must absorb poll errors, got %v", err)
	}
}

func TestWatcherStopsOnContextCancel(t *testing.T) {
	store := newFakeStore()
	client := newFakeExchange()
	client.openOrdersSeq = [][]exchange.OpenOrder{
		{{OrderID: "limit-1"}}, // вечно висит
	}

	rec := restingRecord(store)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	w := newTestWatcher(store, client, watcherConfig())

	_, err := w.Wait(ctx, rec)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}
}
