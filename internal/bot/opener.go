package bot

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/chikanoff/arkham-volume-bot/internal/config"
	"github.com/chikanoff/arkham-volume-bot/internal/exchange"
	"github.com/chikanoff/arkham-volume-bot/internal/models"
	"github.com/chikanoff/arkham-volume-bot/pkg/retry"
	"github.com/chikanoff/arkham-volume-bot/pkg/utils"
)

var (
	// ErrNoFreeSymbol - по всем настроенным парам уже есть открытая запись
	ErrNoFreeSymbol = errors.New("no symbol without an open record")

	// ErrZeroSize - размер после округления к лотности стал нулевым
	ErrZeroSize = errors.New("order size rounds down to zero")
)

// Opener открывает входную позицию: выбирает пару, считает размер
// от баланса и отправляет ордер входа, фиксируя запись в хранилище.
type Opener struct {
	store     Store
	client    exchange.Client
	cfg       config.BotConfig
	rules     []models.SymbolRule
	accountID string
	logger    *zap.Logger

	rng *rand.Rand
}

// NewOpener создаёт Opener для одного аккаунта
func NewOpener(store Store, client exchange.Client, cfg config.BotConfig, rules []models.SymbolRule, accountID string, logger *zap.Logger) *Opener {
	return &Opener{
		store:     store,
		client:    client,
		cfg:       cfg,
		rules:     rules,
		accountID: accountID,
		logger:    logger,
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Open открывает одну позицию и возвращает созданную запись.
// Ошибка не мутирует хранилище: драйвер повторит попытку в следующем цикле.
func (o *Opener) Open(ctx context.Context) (*models.OrderRecord, error) {
	rule, err := o.pickSymbol()
	if err != nil {
		return nil, err
	}

	balance, err := o.client.GetBalance(ctx, quoteAsset(rule.Symbol))
	if err != nil {
		return nil, fmt.Errorf("balance for %s: %w", rule.Symbol, err)
	}
	if balance <= 0 {
		return nil, fmt.Errorf("%w: balance %v", exchange.ErrInsufficientBalance, balance)
	}

	price, err := o.client.GetMarketPrice(ctx, rule.Symbol)
	if err != nil {
		return nil, fmt.Errorf("price for %s: %w", rule.Symbol, err)
	}

	leverage := 1.0
	if o.cfg.IsPerpetual {
		leverage = o.cfg.Leverage
	}

	size := utils.OrderSize(balance, price, o.cfg.BalanceFraction, leverage, rule.LotStep)
	if size <= 0 {
		return nil, fmt.Errorf("%w: balance %v price %v step %v", ErrZeroSize, balance, price, rule.LotStep)
	}

	// Рыночный ордер несёт живую цену как референс,
	// лимитный - смещённую от рынка и округлённую к шагу цены
	orderType := exchange.OrderTypeMarket
	refPrice := price
	if o.cfg.OrderStyle == "limit" {
		orderType = exchange.OrderTypeLimitGtc
		refPrice = utils.LimitPrice(price, o.cfg.LimitOrderDiff, models.SideBuy, rule.PriceStep)
	}

	started := time.Now()
	resp, err := retry.DoWithResult(ctx, func() (*exchange.OrderResponse, error) {
		return o.client.CreateOrder(ctx, exchange.OrderRequest{
			Symbol: rule.Symbol,
			Side:   models.SideBuy,
			Size:   size,
			Price:  refPrice,
			Type:   orderType,
		})
	}, retry.OrderConfig())
	if err != nil {
		return nil, fmt.Errorf("submit entry order %s: %w", rule.Symbol, err)
	}

	RecordOrderSubmitted(o.accountID, rule.Symbol, models.SideBuy, orderType,
		float64(time.Since(started).Milliseconds()))

	record := &models.OrderRecord{
		OrderID:   resp.OrderID,
		AccountID: o.accountID,
		Symbol:    rule.Symbol,
		Side:      models.SideBuy,
		Size:      size,
		OpenPrice: refPrice,
		Status:    models.OrderStatusOpen,
		CreatedAt: time.Now(),
	}

	if err := o.store.Insert(record); err != nil {
		return nil, wrapStore(fmt.Errorf("insert record %s: %w", record.OrderID, err))
	}

	o.logger.Info("position opened",
		zap.String("order_id", record.OrderID),
		zap.String("symbol", record.Symbol),
		zap.Float64("size", size),
		zap.Float64("price", refPrice),
		zap.String("type", orderType))

	return record, nil
}

// pickSymbol выбирает равномерно случайную пару среди тех,
// по которым нет открытой записи
func (o *Opener) pickSymbol() (models.SymbolRule, error) {
	open, err := o.store.ListOpen(o.accountID)
	if err != nil {
		return models.SymbolRule{}, wrapStore(err)
	}

	busy := make(map[string]bool, len(open))
	for _, rec := range open {
		busy[rec.Symbol] = true
	}

	candidates := make([]models.SymbolRule, 0, len(o.rules))
	for _, rule := range o.rules {
		if !busy[rule.Symbol] {
			candidates = append(candidates, rule)
		}
	}

	if len(candidates) == 0 {
		return models.SymbolRule{}, ErrNoFreeSymbol
	}

	return candidates[o.rng.Intn(len(candidates))], nil
}

// quoteAsset возвращает котируемый актив пары: "BTC_USDT" -> "USDT"
func quoteAsset(symbol string) string {
	if i := strings.LastIndex(symbol, "_"); i >= 0 && i < len(symbol)-1 {
		return symbol[i+1:]
	}
	return "USDT"
}
