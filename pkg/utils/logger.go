package utils

// logger.go - настройка логирования
//
// Структурированное логирование на базе zap (uber-go/zap):
// - Выбор формата (JSON для production, text для разработки)
// - Уровни: DEBUG, INFO, WARN, ERROR, FATAL
// - Опциональная запись в файл

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogConfig - конфигурация логирования
type LogConfig struct {
	Level       string // debug, info, warn, error, fatal
	Format      string // json или text
	File        string // путь к файлу (пусто = только stdout)
	Development bool   // режим разработки (stacktrace на warn, цветные уровни)
}

// Logger оборачивает zap.Logger вместе с sugared вариантом
//
// Структурированные вызовы (logger.Info("...", zap.String(...)))
// для горячего пути, sugar для всего остального.
type Logger struct {
	*zap.Logger
	sugar *zap.SugaredLogger
}

// InitLogger создаёт и настраивает logger
//
// При пустой конфигурации возвращает JSON logger уровня info.
func InitLogger(cfg LogConfig) *Logger {
	level := parseLevel(cfg.Level)

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "timestamp"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var encoder zapcore.Encoder
	if strings.EqualFold(cfg.Format, "text") {
		if cfg.Development {
			encoderCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		}
		encoder = zapcore.NewConsoleEncoder(encoderCfg)
	} else {
		encoder = zapcore.NewJSONEncoder(encoderCfg)
	}

	syncers := []zapcore.WriteSyncer{zapcore.AddSync(os.Stdout)}
	if cfg.File != "" {
		if f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644); err == nil {
			syncers = append(syncers, zapcore.AddSync(f))
		}
	}

	core := zapcore.NewCore(
		encoder,
		zapcore.NewMultiWriteSyncer(syncers...),
		level,
	)

	opts := []zap.Option{zap.AddCaller()}
	if cfg.Development {
		opts = append(opts, zap.Development())
	}

	logger := zap.New(core, opts...)

	return &Logger{
		Logger: logger,
		sugar:  logger.Sugar(),
	}
}

// Sugar возвращает sugared logger для printf-style вызовов
func (l *Logger) Sugar() *zap.SugaredLogger {
	return l.sugar
}

// Named возвращает logger с именем подсистемы
func (l *Logger) Named(name string) *Logger {
	named := l.Logger.Named(name)
	return &Logger{Logger: named, sugar: named.Sugar()}
}

// parseLevel преобразует строковый уровень в zapcore.Level
func parseLevel(s string) zapcore.Level {
	switch strings.ToLower(s) {
	case "debug":
		return zapcore.DebugLevel
	case "info", "":
		return zapcore.InfoLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	case "fatal":
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}
