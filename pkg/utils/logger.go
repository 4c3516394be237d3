package utils

// logger.go - настройка структурированного логирования (zap)
//
// Один процессный logger создаётся на старте и передаётся вниз по
// компонентам через logger.With(...). Повторная инициализация на каждый
// экземпляр бота запрещена.

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LoggerConfig - параметры логгера
type LoggerConfig struct {
	Level    string // debug, info, warn, error
	Format   string // json или console
	File     string // путь к файлу, пусто = только stdout
	MaxSize  int    // МБ до ротации
	MaxAge   int    // дней хранения
	Backups  int    // количество ротированных файлов
	Compress bool
}

// InitLogger создаёт и настраивает logger.
// При непустом File логи дублируются в файл с ротацией (lumberjack).
func InitLogger(cfg LoggerConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("parse log level %q: %w", cfg.Level, err)
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var encoder zapcore.Encoder
	switch cfg.Format {
	case "json":
		encoder = zapcore.NewJSONEncoder(encCfg)
	case "console", "":
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encCfg)
	default:
		return nil, fmt.Errorf("unknown log format %q", cfg.Format)
	}

	cores := []zapcore.Core{
		zapcore.NewCore(encoder, zapcore.AddSync(os.Stdout), level),
	}

	if cfg.File != "" {
		fileSink := zapcore.AddSync(&lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSize,
			MaxAge:     cfg.MaxAge,
			MaxBackups: cfg.Backups,
			Compress:   cfg.Compress,
		})
		// Файл всегда в JSON, независимо от консольного формата
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), fileSink, level))
	}

	return zap.New(zapcore.NewTee(cores...), zap.AddCaller()), nil
}
