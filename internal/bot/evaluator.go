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

// Причины закрытия позиции
const (
	ReasonProfitTake = "profit_take" // цена выше входа на slippage
	ReasonBreakeven  = "breakeven"   // пересидели hold time, выходим в ноль
	ReasonForced     = "forced"      // эскалации исчерпаны, выходим в рынок
)

// Evaluator решает судьбу открытых позиций аккаунта.
//
// Порядок правил строгий: профитный выход, затем безубыточный,
// затем принудительный; иначе эскалация счётчика. За один проход
// запись получает не больше одного перехода.
type Evaluator struct {
	store     Store
	client    exchange.Client
	cfg       config.BotConfig
	rules     map[string]models.SymbolRule
	accountID string
	logger    *zap.Logger

	// Подменяется в тестах для контроля hold time
	now func() time.Time
}

// NewEvaluator создаёт Evaluator для одного аккаунта
func NewEvaluator(store Store, client exchange.Client, cfg config.BotConfig, rules map[string]models.SymbolRule, accountID string, logger *zap.Logger) *Evaluator {
	return &Evaluator{
		store:     store,
		client:    client,
		cfg:       cfg,
		rules:     rules,
		accountID: accountID,
		logger:    logger,
		now:       time.Now,
	}
}

// EvaluateAll один раз проходит по всем открытым записям аккаунта.
// Сбой по одной записи не мешает оценке остальных; фатальные
// ошибки хранилища всплывают сразу.
func (e *Evaluator) EvaluateAll(ctx context.Context) error {
	records, err := e.store.ListOpen(e.accountID)
	if err != nil {
		return wrapStore(err)
	}

	OpenPositions.WithLabelValues(e.accountID).Set(float64(len(records)))

	for _, rec := range records {
		if err := e.evaluate(ctx, rec); err != nil {
			if IsFatal(err) {
				return err
			}
			e.logger.Warn("evaluation failed, will retry next cycle",
				zap.String("order_id", rec.OrderID),
				zap.Error(err))
		}
	}

	return nil
}

// evaluate применяет правила выхода к одной записи
func (e *Evaluator) evaluate(ctx context.Context, rec *models.OrderRecord) error {
	// Продажные входы не сопровождаются
	if rec.Side != models.SideBuy {
		return nil
	}

	price, err := e.client.GetMarketPrice(ctx, rec.Symbol)
	if err != nil {
		// Без цены решение не принимается, запись не трогаем
		e.logger.Warn("price unavailable, skipping record",
			zap.String("order_id", rec.OrderID),
			zap.String("symbol", rec.Symbol),
			zap.Error(err))
		return nil
	}

	holdTime := rec.HoldTime(e.now())

	switch {
	case price >= rec.OpenPrice*(1+e.cfg.Slippage):
		return e.close(ctx, rec, price, ReasonProfitTake)

	case holdTime < e.cfg.HoldTime:
		// Временные правила ещё не применимы, счётчик не трогаем
		e.logger.Debug("position held",
			zap.String("order_id", rec.OrderID),
			zap.Float64("price", price),
			zap.Float64("open_price", rec.OpenPrice),
			zap.Duration("hold_time", holdTime))
		return nil

	case price >= rec.OpenPrice:
		return e.close(ctx, rec, price, ReasonBreakeven)

	case rec.CheckCount >= e.cfg.MaxCheckPrice:
		return e.close(ctx, rec, price, ReasonForced)

	default:
		if err := e.store.IncrementCheckCount(rec.OrderID); err != nil {
			return wrapStore(err)
		}
		e.logger.Debug("hold-time escalation",
			zap.String("order_id", rec.OrderID),
			zap.Float64("price", price),
			zap.Float64("open_price", rec.OpenPrice),
			zap.Duration("hold_time", holdTime),
			zap.Int("check_count", rec.CheckCount+1))
		return nil
	}
}

// close отправляет ордер выхода и закрывает запись.
// Запись переводится в closed только после непустого ответа биржи:
// неудачный выход оставляет её открытой до следующего цикла.
func (e *Evaluator) close(ctx context.Context, rec *models.OrderRecord, price float64, reason string) error {
	orderType := exchange.OrderTypeMarket
	exitPrice := price
	if e.cfg.CloseOrderStyle == "limit" {
		rule, ok := e.rules[rec.Symbol]
		if !ok {
			return fmt.Errorf("no rounding rule for symbol %s", rec.Symbol)
		}
		orderType = exchange.OrderTypeLimitGtc
		exitPrice = utils.LimitPrice(price, e.cfg.LimitOrderDiff, models.SideSell, rule.PriceStep)
	}

	started := time.Now()
	resp, err := e.client.CreateOrder(ctx, exchange.OrderRequest{
		Symbol: rec.Symbol,
		Side:   models.SideSell,
		Size:   rec.Size,
		Price:  exitPrice,
		Type:   orderType,
	})
	if err != nil {
		return fmt.Errorf("submit exit order %s: %w", rec.OrderID, err)
	}

	RecordOrderSubmitted(e.accountID, rec.Symbol, models.SideSell, orderType,
		float64(time.Since(started).Milliseconds()))

	closedAt := e.now()
	if err := e.store.UpdateStatus(rec.OrderID, models.OrderStatusClosed, &closedAt); err != nil {
		return wrapStore(err)
	}

	RecordClose(e.accountID, reason)

	e.logger.Info("position closed",
		zap.String("order_id", rec.OrderID),
		zap.String("exit_order_id", resp.OrderID),
		zap.String("reason", reason),
		zap.Float64("open_price", rec.OpenPrice),
		zap.Float64("exit_price", exitPrice),
		zap.Duration("hold_time", rec.HoldTime(closedAt)))

	return nil
}
