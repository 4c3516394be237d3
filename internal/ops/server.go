// Package ops поднимает служебный HTTP: health check, метрики Prometheus
// и сводка состояния аккаунтов. Торговых операций через этот API нет -
// бот исключительно исходящий клиент биржи.
package ops

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	jsoniter "github.com/json-iterator/go"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// StatusFunc отдаёт состояние цикла каждого аккаунта (имя -> состояние)
type StatusFunc func() map[string]string

// Server - служебный HTTP сервер
type Server struct {
	httpServer *http.Server
	logger     *zap.Logger
}

// NewServer собирает сервер с маршрутами /health, /metrics и /status
func NewServer(listen string, status StatusFunc, logger *zap.Logger) *Server {
	router := mux.NewRouter()

	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods("GET")

	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	router.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		var states map[string]string
		if status != nil {
			states = status()
		}

		if err := json.NewEncoder(w).Encode(map[string]interface{}{
			"accounts": states,
			"time":     time.Now().UTC().Format(time.RFC3339),
		}); err != nil {
			logger.Warn("status encode failed", zap.Error(err))
		}
	}).Methods("GET")

	return &Server{
		httpServer: &http.Server{
			Addr:         listen,
			Handler:      router,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
		logger: logger,
	}
}

// Start запускает сервер; блокируется до остановки
func (s *Server) Start() error {
	s.logger.Info("ops server listening", zap.String("addr", s.httpServer.Addr))

	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown останавливает сервер с дедлайном
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
