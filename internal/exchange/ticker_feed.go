package exchange

import (
	"strconv"

	"go.uber.org/zap"
)

// TickerFeed подписывается на поток тикеров по WebSocket и передаёт
// цены в callback. Поток вспомогательный: при разрыве соединения
// клиент прозрачно возвращается к HTTP запросам цены.
type TickerFeed struct {
	manager *WSReconnectManager
	onPrice func(symbol string, price float64)
	logger  *zap.Logger
}

type tickerMessage struct {
	Channel string `json:"channel"`
	Symbol  string `json:"symbol"`
	Price   string `json:"price"`
}

// NewTickerFeed подключает поток тикеров для списка символов
func NewTickerFeed(wsURL string, symbols []string, onPrice func(string, float64), logger *zap.Logger) (*TickerFeed, error) {
	feed := &TickerFeed{
		manager: NewWSReconnectManager(wsURL, DefaultWSReconnectConfig(), logger),
		onPrice: onPrice,
		logger:  logger,
	}

	feed.manager.SetOnMessage(feed.handleMessage)

	for _, symbol := range symbols {
		feed.manager.AddSubscription(map[string]interface{}{
			"method": "subscribe",
			"params": map[string]string{
				"channel": "ticker",
				"symbol":  symbol,
			},
		})
	}

	if err := feed.manager.Connect(); err != nil {
		return nil, err
	}

	return feed, nil
}

func (f *TickerFeed) handleMessage(raw []byte) {
	var msg tickerMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		f.logger.Debug("skip malformed ticker message", zap.Error(err))
		return
	}

	if msg.Channel != "ticker" || msg.Symbol == "" || msg.Price == "" {
		return
	}

	price, err := strconv.ParseFloat(msg.Price, 64)
	if err != nil || price <= 0 {
		return
	}

	f.onPrice(msg.Symbol, price)
}

// IsConnected сообщает, активен ли поток
func (f *TickerFeed) IsConnected() bool {
	return f.manager.IsConnected()
}

// Close останавливает поток тикеров
func (f *TickerFeed) Close() {
	if err := f.manager.Close(); err != nil {
		f.logger.Debug("ticker feed close", zap.Error(err))
	}
}
