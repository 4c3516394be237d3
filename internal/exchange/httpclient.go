package exchange

import (
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// HTTPClientConfig содержит настройки HTTP клиента биржи
type HTTPClientConfig struct {
	// Таймауты
	ConnectTimeout time.Duration // установка TCP соединения
	ReadTimeout    time.Duration // чтение заголовков ответа
	TotalTimeout   time.Duration // общий таймаут операции

	// Connection pooling
	MaxIdleConns        int
	MaxIdleConnsPerHost int
	IdleConnTimeout     time.Duration

	// TLS
	TLSHandshakeTimeout time.Duration

	// Keep-Alive
	KeepAliveInterval time.Duration

	// Прокси аккаунта: host:port или полный URL, пусто = без прокси
	Proxy string
}

// DefaultHTTPClientConfig возвращает конфигурацию по умолчанию
func DefaultHTTPClientConfig() HTTPClientConfig {
	return HTTPClientConfig{
		ConnectTimeout: 5 * time.Second,
		ReadTimeout:    10 * time.Second,
		TotalTimeout:   30 * time.Second,

		MaxIdleConns:        10,
		MaxIdleConnsPerHost: 5,
		IdleConnTimeout:     90 * time.Second,

		TLSHandshakeTimeout: 5 * time.Second,
		KeepAliveInterval:   30 * time.Second,
	}
}

// NewHTTPClient создаёт HTTP клиент с connection pooling.
//
// В отличие от глобального клиента, каждый аккаунт получает собственный
// экземпляр: прокси задаётся на уровне транспорта, и соединения разных
// аккаунтов не должны делить пул.
func NewHTTPClient(config HTTPClientConfig) (*http.Client, error) {
	dialer := &net.Dialer{
		Timeout:   config.ConnectTimeout,
		KeepAlive: config.KeepAliveInterval,
	}

	transport := &http.Transport{
		DialContext: dialer.DialContext,

		MaxIdleConns:        config.MaxIdleConns,
		MaxIdleConnsPerHost: config.MaxIdleConnsPerHost,
		IdleConnTimeout:     config.IdleConnTimeout,

		TLSHandshakeTimeout: config.TLSHandshakeTimeout,
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},

		ForceAttemptHTTP2:     true,
		ExpectContinueTimeout: 1 * time.Second,
		ResponseHeaderTimeout: config.ReadTimeout,
	}

	if config.Proxy != "" {
		proxyURL, err := parseProxy(config.Proxy)
		if err != nil {
			return nil, err
		}
		transport.Proxy = http.ProxyURL(proxyURL)
	}

	return &http.Client{
		Transport: transport,
		Timeout:   config.TotalTimeout,
	}, nil
}

// parseProxy разбирает адрес прокси; "host:port" трактуется как http прокси
func parseProxy(proxy string) (*url.URL, error) {
	if !strings.Contains(proxy, "://") {
		proxy = "http://" + proxy
	}

	proxyURL, err := url.Parse(proxy)
	if err != nil {
		return nil, fmt.Errorf("parse proxy %q: %w", proxy, err)
	}
	if proxyURL.Host == "" {
		return nil, fmt.Errorf("proxy %q has no host", proxy)
	}

	return proxyURL, nil
}
