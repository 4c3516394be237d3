package exchange

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"go.uber.org/zap"
)

const (
	testAPIKey    = "test-api-key"
	testAPISecret = "dGVzdC1zZWNyZXQ=" // base64("test-secret")
)

func newTestClient(t *testing.T, serverURL string) *Arkham {
	t.Helper()

	client, err := NewArkham(ArkhamConfig{
		APIKey:       testAPIKey,
		APISecret:    testAPISecret,
		BaseURL:      serverURL,
		RequestRate:  1000,
		RequestBurst: 1000,
	}, zap.NewNop())
	if err != nil {
		t.Fatalf("NewArkham: %v", err)
	}
	return client
}

func TestSignatureHeaders(t *testing.T) {
	var gotKey, gotExpires, gotSignature, gotPath string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("Arkham-Api-Key")
		gotExpires = r.Header.Get("Arkham-Expires")
		gotSignature = r.Header.Get("Arkham-Signature")
		gotPath = r.URL.RequestURI()
		w.Write([]byte(`{"price": "50000"}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	defer client.Close()

	if _, err := client.GetMarketPrice(context.Background(), "BTC_USDT"); err != nil {
		t.Fatalf("GetMarketPrice: %v", err)
	}

	if gotKey != testAPIKey {
		t.Errorf("api key header = %q, want %q", gotKey, testAPIKey)
	}
	if gotPath != "/public/ticker?symbol=BTC_USDT" {
		t.Errorf("path = %q", gotPath)
	}

	expires, err := strconv.ParseInt(gotExpires, 10, 64)
	if err != nil {
		t.Fatalf("expires header %q not numeric", gotExpires)
	}
	lead := time.UnixMicro(expires).Sub(time.Now())
	if lead < 4*time.Minute || lead > 6*time.Minute {
		t.Errorf("expires lead time = %v, want around 5m", lead)
	}

	// Сверяем подпись независимым вычислением
	secret, _ := base64.StdEncoding.DecodeString(testAPISecret)
	h := hmac.New(sha256.New, secret)
	h.Write([]byte(testAPIKey + gotExpires + "GET" + "/public/ticker?symbol=BTC_USDT"))
	want := base64.StdEncoding.EncodeToString(h.Sum(nil))
	if gotSignature != want {
		t.Errorf("signature = %q, want %q", gotSignature, want)
	}
}

func TestGetMarketPrice(t *testing.T) {
	tests := []struct {
		name      string
		response  string
		status    int
		wantPrice float64
		wantErr   error
	}{
		{
			name:      "valid price",
			response:  `{"price": "50000.5"}`,
			status:    http.StatusOK,
			wantPrice: 50000.5,
		},
		{
			name:     "empty price",
			response: `{"price": ""}`,
			status:   http.StatusOK,
			wantErr:  ErrPriceUnavailable,
		},
		{
			name:     "zero price",
			response: `{"price": "0"}`,
			status:   http.StatusOK,
			wantErr:  ErrPriceUnavailable,
		},
		{
			name:     "malformed price",
			response: `{"price": "not-a-number"}`,
			status:   http.StatusOK,
			wantErr:  ErrPriceUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.response))
			}))
			defer server.Close()

			client := newTestClient(t, server.URL)
			defer client.Close()

			price, err := client.GetMarketPrice(context.Background(), "BTC_USDT")

			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("err = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if price != tt.wantPrice {
				t.Errorf("price = %v, want %v", price, tt.wantPrice)
			}
		})
	}
}

func TestGetBalance(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/account/balances" {
			t.Errorf("path = %q", r.URL.Path)
		}
		w.Write([]byte(`[{"symbol": "BTC", "free": "0.5"}, {"symbol": "USDT", "free": "1234.56"}]`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	defer client.Close()

	balance, err := client.GetBalance(context.Background(), "USDT")
	if err != nil {
		t.Fatalf("GetBalance: %v", err)
	}
	if balance != 1234.56 {
		t.Errorf("balance = %v, want 1234.56", balance)
	}

	_, err = client.GetBalance(context.Background(), "ETH")
	if !errors.Is(err, ErrInsufficientBalance) {
		t.Errorf("missing asset err = %v, want ErrInsufficientBalance", err)
	}
}

func TestCreateOrder(t *testing.T) {
	var gotBody map[string]interface{}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/orders/new" || r.Method != http.MethodPost {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		raw, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(raw, &gotBody); err != nil {
			t.Fatalf("request body: %v", err)
		}
		w.Write([]byte(`{"orderId": "ord-123", "clientOrderId": "abc"}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	defer client.Close()

	resp, err := client.CreateOrder(context.Background(), OrderRequest{
		Symbol: "BTC_USDT",
		Side:   "buy",
		Size:   0.001,
		Price:  50000,
		Type:   OrderTypeLimitGtc,
	})
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	if resp.OrderID != "ord-123" {
		t.Errorf("order id = %q", resp.OrderID)
	}

	if gotBody["price"] != "50000" {
		t.Errorf("price = %v, want string \"50000\"", gotBody["price"])
	}
	if gotBody["size"] != "0.001" {
		t.Errorf("size = %v, want string \"0.001\"", gotBody["size"])
	}
	if gotBody["type"] != OrderTypeLimitGtc {
		t.Errorf("type = %v", gotBody["type"])
	}
	if gotBody["clientOrderId"] == "" {
		t.Error("clientOrderId is empty")
	}
}

func TestCreateOrderEmptyResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	defer client.Close()

	_, err := client.CreateOrder(context.Background(), OrderRequest{
		Symbol: "BTC_USDT",
		Side:   "buy",
		Size:   0.001,
	})
	if !errors.Is(err, ErrEmptyOrderResponse) {
		t.Errorf("err = %v, want ErrEmptyOrderResponse", err)
	}
}

func TestAPIErrorMapping(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error": "rate limit exceeded"}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	defer client.Close()

	_, err := client.GetTradingVolume(context.Background())

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want *APIError", err)
	}
	if apiErr.StatusCode != http.StatusTooManyRequests {
		t.Errorf("status = %d", apiErr.StatusCode)
	}
	if !apiErr.Temporary() {
		t.Error("429 should be temporary")
	}
}

func TestGetTradingVolume(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/affiliate-dashboard/trading-volume-stats" {
			t.Errorf("path = %q", r.URL.Path)
		}
		w.Write([]byte(`{
			"spotMakerVolume": "1000.5",
			"spotTakerVolume": "2000.5",
			"spotMakerFees": "0.1",
			"spotTakerFees": "0.9",
			"perpMakerVolume": "500",
			"perpTakerVolume": "",
			"perpMakerFees": "0.05",
			"perpTakerFees": "0.05"
		}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	defer client.Close()

	stats, err := client.GetTradingVolume(context.Background())
	if err != nil {
		t.Fatalf("GetTradingVolume: %v", err)
	}

	if stats.SpotVolume != 3001 {
		t.Errorf("spot volume = %v, want 3001", stats.SpotVolume)
	}
	if stats.SpotFees != 1 {
		t.Errorf("spot fees = %v, want 1", stats.SpotFees)
	}
	if stats.PerpVolume != 500 {
		t.Errorf("perp volume = %v, want 500", stats.PerpVolume)
	}
	if got := stats.Volume(true); got != 500 {
		t.Errorf("Volume(perp) = %v, want 500", got)
	}
	if got := stats.Volume(false); got != 3001 {
		t.Errorf("Volume(spot) = %v, want 3001", got)
	}
}

func TestListOpenOrders(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"orderId": "o1", "symbol": "BTC_USDT", "side": "buy", "size": "0.001", "price": "49000", "createdAt": 1720000000000}]`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	defer client.Close()

	orders, err := client.ListOpenOrders(context.Background())
	if err != nil {
		t.Fatalf("ListOpenOrders: %v", err)
	}
	if len(orders) != 1 {
		t.Fatalf("len = %d, want 1", len(orders))
	}
	if orders[0].OrderID != "o1" || orders[0].Price != 49000 || orders[0].Size != 0.001 {
		t.Errorf("unexpected order: %+v", orders[0])
	}
}

func TestCancelAllOrders(t *testing.T) {
	var called bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/orders/cancel/all" && r.Method == http.MethodPost {
			called = true
		}
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	defer client.Close()

	if err := client.CancelAllOrders(context.Background()); err != nil {
		t.Fatalf("CancelAllOrders: %v", err)
	}
	if !called {
		t.Error("cancel endpoint was not called")
	}
}

func TestTickerCache(t *testing.T) {
	var requests int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.Write([]byte(`{"price": "100"}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	defer client.Close()

	client.updateTicker("BTC_USDT", 51000)

	price, err := client.GetMarketPrice(context.Background(), "BTC_USDT")
	if err != nil {
		t.Fatalf("GetMarketPrice: %v", err)
	}
	if price != 51000 {
		t.Errorf("price = %v, want cached 51000", price)
	}
	if requests != 0 {
		t.Errorf("expected no HTTP requests, got %d", requests)
	}

	// Кэш другого символа пуст - уходим по HTTP
	price, err = client.GetMarketPrice(context.Background(), "ETH_USDT")
	if err != nil {
		t.Fatalf("GetMarketPrice fallback: %v", err)
	}
	if price != 100 || requests != 1 {
		t.Errorf("fallback price = %v, requests = %d", price, requests)
	}
}
