package exchange

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/chikanoff/arkham-volume-bot/pkg/ratelimit"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Окно действия подписи: 5 минут в микросекундах
const signatureTTLMicros = 300_000_000

// свежесть кэшированного тикера из WebSocket потока
const tickerCacheTTL = 2 * time.Second

// Arkham реализует интерфейс Client поверх подписанного HTTP API arkm.com.
//
// Каждый аккаунт создаёт собственный экземпляр: ключи, прокси и rate limit
// не разделяются между аккаунтами.
type Arkham struct {
	apiKey    string
	apiSecret string
	baseURL   string

	httpClient *http.Client
	limiter    *ratelimit.RateLimiter
	logger     *zap.Logger

	// Кэш цен из WebSocket потока тикеров (опционально)
	tickerFeed *TickerFeed
	prices     map[string]cachedPrice
	pricesMu   sync.RWMutex
}

type cachedPrice struct {
	price float64
	at    time.Time
}

// ArkhamConfig - параметры создания клиента
type ArkhamConfig struct {
	APIKey    string
	APISecret string // base64
	BaseURL   string
	Proxy     string

	RequestRate  float64
	RequestBurst float64
}

// NewArkham создаёт клиент биржи для одного аккаунта
func NewArkham(cfg ArkhamConfig, logger *zap.Logger) (*Arkham, error) {
	httpCfg := DefaultHTTPClientConfig()
	httpCfg.Proxy = cfg.Proxy

	httpClient, err := NewHTTPClient(httpCfg)
	if err != nil {
		return nil, err
	}

	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://arkm.com/api"
	}

	return &Arkham{
		apiKey:     cfg.APIKey,
		apiSecret:  cfg.APISecret,
		baseURL:    baseURL,
		httpClient: httpClient,
		limiter:    ratelimit.NewRateLimiter(cfg.RequestRate, cfg.RequestBurst),
		logger:     logger,
		prices:     make(map[string]cachedPrice),
	}, nil
}

// sign создаёт подпись запроса.
// message = apiKey + expires + method + path + body,
// ключ HMAC-SHA256 - base64-декодированный секрет, подпись - base64.
func (a *Arkham) sign(method, path, body, expires string) (string, error) {
	secret, err := base64.StdEncoding.DecodeString(a.apiSecret)
	if err != nil {
		return "", fmt.Errorf("decode api secret: %w", err)
	}

	message := a.apiKey + expires + method + path + body
	h := hmac.New(sha256.New, secret)
	h.Write([]byte(message))

	return base64.StdEncoding.EncodeToString(h.Sum(nil)), nil
}

// doRequest выполняет подписанный HTTP запрос к API.
// path включает query string - он участвует в подписи целиком.
func (a *Arkham) doRequest(ctx context.Context, method, path, body string) ([]byte, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	expires := strconv.FormatInt(time.Now().UnixMicro()+signatureTTLMicros, 10)
	signature, err := a.sign(method, path, body, expires)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, strings.NewReader(body))
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Arkham-Api-Key", a.apiKey)
	req.Header.Set("Arkham-Expires", expires)
	req.Header.Set("Arkham-Signature", signature)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Path:       path,
			Body:       strings.TrimSpace(string(respBody)),
		}
	}

	return respBody, nil
}

// GetMarketPrice получает текущую цену символа.
// Свежий тикер из WebSocket кэша отдаётся без HTTP запроса.
func (a *Arkham) GetMarketPrice(ctx context.Context, symbol string) (float64, error) {
	if price, ok := a.cachedTicker(symbol); ok {
		return price, nil
	}

	path := "/public/ticker?symbol=" + symbol

	body, err := a.doRequest(ctx, http.MethodGet, path, "")
	if err != nil {
		return 0, err
	}

	var resp struct {
		Price string `json:"price"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, err
	}

	if resp.Price == "" {
		return 0, ErrPriceUnavailable
	}

	price, err := strconv.ParseFloat(resp.Price, 64)
	if err != nil || price <= 0 {
		return 0, ErrPriceUnavailable
	}

	return price, nil
}

// GetBalance получает свободный баланс актива
func (a *Arkham) GetBalance(ctx context.Context, asset string) (float64, error) {
	body, err := a.doRequest(ctx, http.MethodGet, "/account/balances", "")
	if err != nil {
		return 0, err
	}

	var balances []struct {
		Symbol string `json:"symbol"`
		Free   string `json:"free"`
	}
	if err := json.Unmarshal(body, &balances); err != nil {
		return 0, err
	}

	for _, b := range balances {
		if b.Symbol == asset {
			free, err := strconv.ParseFloat(b.Free, 64)
			if err != nil {
				return 0, fmt.Errorf("parse balance %q: %w", b.Free, err)
			}
			return free, nil
		}
	}

	return 0, fmt.Errorf("%w: asset %s not in balance list", ErrInsufficientBalance, asset)
}

// CreateOrder размещает ордер.
// Цена и размер сериализуются строками - так их принимает API.
func (a *Arkham) CreateOrder(ctx context.Context, req OrderRequest) (*OrderResponse, error) {
	orderType := req.Type
	if orderType == "" {
		orderType = OrderTypeMarket
	}

	payload := struct {
		ClientOrderID string `json:"clientOrderId"`
		PostOnly      bool   `json:"postOnly"`
		Price         string `json:"price"`
		Side          string `json:"side"`
		Size          string `json:"size"`
		SubaccountID  int    `json:"subaccountId"`
		Symbol        string `json:"symbol"`
		Type          string `json:"type"`
	}{
		ClientOrderID: uuid.NewString(),
		Price:         strconv.FormatFloat(req.Price, 'f', -1, 64),
		Side:          req.Side,
		Size:          strconv.FormatFloat(req.Size, 'f', -1, 64),
		Symbol:        req.Symbol,
		Type:          orderType,
	}

	bodyJSON, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	respBody, err := a.doRequest(ctx, http.MethodPost, "/orders/new", string(bodyJSON))
	if err != nil {
		return nil, err
	}

	var resp OrderResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, err
	}

	if resp.OrderID == "" {
		return nil, ErrEmptyOrderResponse
	}

	a.logger.Debug("order created",
		zap.String("order_id", resp.OrderID),
		zap.String("symbol", req.Symbol),
		zap.String("side", req.Side),
		zap.String("type", orderType),
		zap.Float64("size", req.Size),
		zap.Float64("price", req.Price))

	return &resp, nil
}

// CancelAllOrders снимает все открытые ордера аккаунта
func (a *Arkham) CancelAllOrders(ctx context.Context) error {
	_, err := a.doRequest(ctx, http.MethodPost, "/orders/cancel/all", "{}")
	return err
}

// ListOpenOrders возвращает открытые ордера аккаунта
func (a *Arkham) ListOpenOrders(ctx context.Context) ([]OpenOrder, error) {
	body, err := a.doRequest(ctx, http.MethodGet, "/orders", "")
	if err != nil {
		return nil, err
	}

	var raw []struct {
		OrderID   string `json:"orderId"`
		Symbol    string `json:"symbol"`
		Side      string `json:"side"`
		Size      string `json:"size"`
		Price     string `json:"price"`
		CreatedAt int64  `json:"createdAt"` // unix millis
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, err
	}

	orders := make([]OpenOrder, 0, len(raw))
	for _, o := range raw {
		size, _ := strconv.ParseFloat(o.Size, 64)
		price, _ := strconv.ParseFloat(o.Price, 64)
		orders = append(orders, OpenOrder{
			OrderID:   o.OrderID,
			Symbol:    o.Symbol,
			Side:      o.Side,
			Size:      size,
			Price:     price,
			CreatedAt: time.UnixMilli(o.CreatedAt),
		})
	}

	return orders, nil
}

// GetTradingVolume возвращает накопленный объём и комиссии аккаунта.
// Maker и taker части суммируются, пустые поля считаются нулями.
func (a *Arkham) GetTradingVolume(ctx context.Context) (*VolumeStats, error) {
	body, err := a.doRequest(ctx, http.MethodGet, "/affiliate-dashboard/trading-volume-stats", "")
	if err != nil {
		return nil, err
	}

	var resp struct {
		SpotMakerVolume string `json:"spotMakerVolume"`
		SpotTakerVolume string `json:"spotTakerVolume"`
		SpotMakerFees   string `json:"spotMakerFees"`
		SpotTakerFees   string `json:"spotTakerFees"`
		PerpMakerVolume string `json:"perpMakerVolume"`
		PerpTakerVolume string `json:"perpTakerVolume"`
		PerpMakerFees   string `json:"perpMakerFees"`
		PerpTakerFees   string `json:"perpTakerFees"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}

	return &VolumeStats{
		SpotVolume: parseVolume(resp.SpotMakerVolume) + parseVolume(resp.SpotTakerVolume),
		SpotFees:   parseVolume(resp.SpotMakerFees) + parseVolume(resp.SpotTakerFees),
		PerpVolume: parseVolume(resp.PerpMakerVolume) + parseVolume(resp.PerpTakerVolume),
		PerpFees:   parseVolume(resp.PerpMakerFees) + parseVolume(resp.PerpTakerFees),
	}, nil
}

// parseVolume разбирает числовое поле статистики; пустая строка = 0
func parseVolume(s string) float64 {
	if s == "" {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}

// cachedTicker возвращает цену из WebSocket кэша если она достаточно свежая
func (a *Arkham) cachedTicker(symbol string) (float64, bool) {
	a.pricesMu.RLock()
	defer a.pricesMu.RUnlock()

	cached, ok := a.prices[symbol]
	if !ok || time.Since(cached.at) > tickerCacheTTL {
		return 0, false
	}
	return cached.price, true
}

// updateTicker кладёт цену в кэш (вызывается потоком тикеров)
func (a *Arkham) updateTicker(symbol string, price float64) {
	if price <= 0 {
		return
	}

	a.pricesMu.Lock()
	a.prices[symbol] = cachedPrice{price: price, at: time.Now()}
	a.pricesMu.Unlock()
}

// StartTickerFeed подключает WebSocket поток тикеров для списка символов.
// Бот полностью работоспособен и без потока - кэш лишь экономит HTTP запросы.
func (a *Arkham) StartTickerFeed(wsURL string, symbols []string) error {
	if a.tickerFeed != nil {
		return fmt.Errorf("ticker feed already started")
	}

	feed, err := NewTickerFeed(wsURL, symbols, a.updateTicker, a.logger)
	if err != nil {
		return err
	}

	a.tickerFeed = feed
	return nil
}

// Close закрывает соединения клиента
func (a *Arkham) Close() error {
	if a.tickerFeed != nil {
		a.tickerFeed.Close()
		a.tickerFeed = nil
	}

	if transport, ok := a.httpClient.Transport.(*http.Transport); ok {
		transport.CloseIdleConnections()
	}
	return nil
}
