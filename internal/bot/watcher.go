package bot

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/chikanoff/arkham-volume-bot/internal/config"
	"github.com/chikanoff/arkham-volume-bot/internal/exchange"
	"github.com/chikanoff/arkham-volume-bot/internal/models"
	"github.com/chikanoff/arkham-volume-bot/pkg/utils"
)

// Watcher следит за неисполненным лимитным ордером входа.
//
// Опрашивает список открытых ордеров с фиксированным периодом.
// Пустой список означает исполнение. Если ордер висит дольше
// LimitHoldTime, все открытые ордера снимаются и ставится свежий
// лимитник по пересчитанной цене. Переставленный ордер получает
// новый order_id, поэтому старая запись закрывается и заводится новая
// - уникальность ключа и лимит одной открытой записи сохраняются.
type Watcher struct {
	store     Store
	client    exchange.Client
	cfg       config.BotConfig
	rules     map[string]models.SymbolRule
	accountID string
	logger    *zap.Logger
}

// NewWatcher создаёт Watcher для одного аккаунта
func NewWatcher(store Store, client exchange.Client, cfg config.BotConfig, rules map[string]models.SymbolRule, accountID string, logger *zap.Logger) *Watcher {
	return &Watcher{
		store:     store,
		client:    client,
		cfg:       cfg,
		rules:     rules,
		accountID: accountID,
		logger:    logger,
	}
}

// Wait блокируется до исполнения ордера записи rec или отмены контекста.
// Возвращает актуальную запись: после перестановок это уже другая строка.
// Сетевые ошибки опроса поглощаются и повторяются на следующем тике,
// лимита перестановок нет.
func (w *Watcher) Wait(ctx context.Context, rec *models.OrderRecord) (*models.OrderRecord, error) {
	current := rec
	submittedAt := time.Now()

	ticker := time.NewTicker(w.cfg.FillPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return current, ctx.Err()
		case <-ticker.C:
		}

		orders, err := w.client.ListOpenOrders(ctx)
		if err != nil {
			w.logger.Warn("open orders poll failed",
				zap.String("order_id", current.OrderID),
				zap.Error(err))
			continue
		}

		// Пустой список = ордер исполнен
		if len(orders) == 0 {
			w.logger.Info("entry order filled",
				zap.String("order_id", current.OrderID),
				zap.String("symbol", current.Symbol))
			return current, nil
		}

		if time.Since(submittedAt) < w.cfg.LimitHoldTime {
			continue
		}

		next, err := w.requeue(ctx, current)
		if err != nil {
			if IsFatal(err) {
				return current, err
			}
			w.logger.Warn("requeue failed",
				zap.String("order_id", current.OrderID),
				zap.Error(err))
			continue
		}

		current = next
		submittedAt = time.Now()
	}
}

// requeue снимает все ордера аккаунта и ставит свежий лимитник
// по смещённой от текущего рынка цене
func (w *Watcher) requeue(ctx context.Context, rec *models.OrderRecord) (*models.OrderRecord, error) {
	rule, ok := w.rules[rec.Symbol]
	if !ok {
		return nil, fmt.Errorf("no rounding rule for symbol %s", rec.Symbol)
	}

	if err := w.client.CancelAllOrders(ctx); err != nil {
		return nil, fmt.Errorf("cancel all: %w", err)
	}

	price, err := w.client.GetMarketPrice(ctx, rec.Symbol)
	if err != nil {
		return nil, fmt.Errorf("price for %s: %w", rec.Symbol, err)
	}

	newPrice := utils.LimitPrice(price, w.cfg.LimitOrderDiff, rec.Side, rule.PriceStep)

	started := time.Now()
	resp, err := w.client.CreateOrder(ctx, exchange.OrderRequest{
		Symbol: rec.Symbol,
		Side:   rec.Side,
		Size:   rec.Size,
		Price:  newPrice,
		Type:   exchange.OrderTypeLimitGtc,
	})
	if err != nil {
		// Старый ордер уже снят: запись закрываем, позицию переоткроет
		// драйвер в следующем цикле
		now := time.Now()
		if uerr := w.store.UpdateStatus(rec.OrderID, models.OrderStatusClosed, &now); uerr != nil {
			return nil, wrapStore(uerr)
		}
		RecordClose(w.accountID, "requeue")
		return nil, fmt.Errorf("resubmit after cancel: %w", err)
	}

	RecordOrderSubmitted(w.accountID, rec.Symbol, rec.Side, exchange.OrderTypeLimitGtc,
		float64(time.Since(started).Milliseconds()))
	RequeuesTotal.WithLabelValues(w.accountID, rec.Symbol).Inc()

	// Старая запись закрывается, переставленный ордер заводит новую
	now := time.Now()
	if err := w.store.UpdateStatus(rec.OrderID, models.OrderStatusClosed, &now); err != nil {
		return nil, wrapStore(err)
	}
	RecordClose(w.accountID, "requeue")

	next := &models.OrderRecord{
		OrderID:   resp.OrderID,
		AccountID: rec.AccountID,
		Symbol:    rec.Symbol,
		Side:      rec.Side,
		Size:      rec.Size,
		OpenPrice: newPrice,
		Status:    models.OrderStatusOpen,
		CreatedAt: now,
	}
	if err := w.store.Insert(next); err != nil {
		return nil, wrapStore(err)
	}

	w.logger.Info("limit order requeued",
		zap.String("old_order_id", rec.OrderID),
		zap.String("new_order_id", next.OrderID),
		zap.Float64("old_price", rec.OpenPrice),
		zap.Float64("new_price", newPrice))

	return next, nil
}
