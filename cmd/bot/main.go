package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/chikanoff/arkham-volume-bot/internal/bot"
	"github.com/chikanoff/arkham-volume-bot/internal/config"
	"github.com/chikanoff/arkham-volume-bot/internal/exchange"
	"github.com/chikanoff/arkham-volume-bot/internal/ops"
	"github.com/chikanoff/arkham-volume-bot/internal/repository"
	"github.com/chikanoff/arkham-volume-bot/pkg/utils"

	_ "github.com/lib/pq"
)

func main() {
	// Загрузка конфигурации
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Инициализация логгера
	logger, err := utils.InitLogger(utils.LoggerConfig{
		Level:    cfg.Logging.Level,
		Format:   cfg.Logging.Format,
		File:     cfg.Logging.File,
		MaxSize:  cfg.Logging.MaxSize,
		MaxAge:   cfg.Logging.MaxAge,
		Backups:  cfg.Logging.Backups,
		Compress: cfg.Logging.Compress,
	})
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer logger.Sync()

	// Инициализация базы данных
	db, err := initDatabase(cfg)
	if err != nil {
		logger.Fatal("database connection failed",
			zap.String("dsn", cfg.Database.DSNWithoutPassword()),
			zap.Error(err))
	}
	defer db.Close()

	logger.Info("connected to database", zap.String("dsn", cfg.Database.DSNWithoutPassword()))

	orderRepo := repository.NewOrderRepository(db)
	if err := orderRepo.EnsureSchema(); err != nil {
		logger.Fatal("schema migration failed", zap.Error(err))
	}

	// Загрузка аккаунтов и правил округления
	accountsFile, err := config.LoadAccounts(cfg.AccountsFile, cfg.SecretsKey)
	if err != nil {
		logger.Fatal("accounts file invalid",
			zap.String("path", cfg.AccountsFile),
			zap.Error(err))
	}

	logger.Info("accounts loaded",
		zap.Int("accounts", len(accountsFile.Accounts)),
		zap.Int("symbols", len(accountsFile.Symbols)))

	symbols := make([]string, 0, len(accountsFile.Symbols))
	for _, rule := range accountsFile.Symbols {
		symbols = append(symbols, rule.Symbol)
	}

	// Сборка драйверов: каждому аккаунту свой клиент биржи
	orchestrator := bot.NewOrchestrator(logger)
	drivers := make(map[string]*bot.Driver, len(accountsFile.Accounts))
	clients := make([]*exchange.Arkham, 0, len(accountsFile.Accounts))

	for _, account := range accountsFile.Accounts {
		client, err := exchange.NewArkham(exchange.ArkhamConfig{
			APIKey:       account.APIKey,
			APISecret:    account.APISecret,
			BaseURL:      cfg.Exchange.BaseURL,
			Proxy:        account.Proxy,
			RequestRate:  cfg.Exchange.RequestRate,
			RequestBurst: cfg.Exchange.RequestBurst,
		}, logger.With(zap.String("account", account.Name)))
		if err != nil {
			logger.Fatal("exchange client init failed",
				zap.String("account", account.Name),
				zap.Error(err))
		}

		if cfg.Exchange.EnableTickerFeed {
			if err := client.StartTickerFeed(cfg.Exchange.WSURL, symbols); err != nil {
				// Кэш цен опционален, HTTP путь остаётся рабочим
				logger.Warn("ticker feed unavailable",
					zap.String("account", account.Name),
					zap.Error(err))
			}
		}

		clients = append(clients, client)

		driver := bot.NewDriver(account, cfg.Bot, orderRepo, client, accountsFile.Symbols, logger)
		drivers[account.Name] = driver
		orchestrator.Add(driver)
	}

	// Служебный HTTP: health, метрики, состояние аккаунтов
	var opsServer *ops.Server
	if cfg.Ops.Enabled {
		opsServer = ops.NewServer(cfg.Ops.Listen, func() map[string]string {
			states := make(map[string]string, len(drivers))
			for name, d := range drivers {
				states[name] = d.State()
			}
			return states
		}, logger)

		go func() {
			if err := opsServer.Start(); err != nil {
				logger.Error("ops server failed", zap.Error(err))
			}
		}()
	}

	// Запуск циклов аккаунтов
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		orchestrator.Run(ctx)
		close(done)
	}()

	// Завершение: все аккаунты дошли до цели либо пришёл сигнал
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-done:
		logger.Info("all accounts reached their targets")
	case sig := <-quit:
		logger.Info("shutdown signal received", zap.String("signal", sig.String()))
		cancel()

		select {
		case <-done:
		case <-time.After(30 * time.Second):
			logger.Warn("account loops did not stop in time")
		}
	}

	for _, client := range clients {
		if err := client.Close(); err != nil {
			logger.Warn("exchange client close failed", zap.Error(err))
		}
	}

	if opsServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := opsServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("ops server shutdown failed", zap.Error(err))
		}
	}

	logger.Info("bot exited")
}

// initDatabase создает подключение к базе данных
func initDatabase(cfg *config.Config) (*sql.DB, error) {
	db, err := sql.Open(cfg.Database.Driver, cfg.Database.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Настройка пула соединений
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	// Проверка подключения
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}
