// Package logger предоставляет логирование с префиксом сервиса поверх zap.
// API пакетного уровня сохранён (Info/Infof/Error/Errorf/LogDuration), чтобы вызовы не тянули логгер через конструкторы.
package logger

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu     sync.RWMutex
	prefix string
	level  = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	base   *zap.SugaredLogger
)

func init() {
	base = build(os.Getenv("APP_ENV") == "development")
	SetLevel(os.Getenv("LOG_LEVEL"))
}

func build(development bool) *zap.SugaredLogger {
	var cfg zap.Config
	if development {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.TimeKey = "ts"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		cfg.Sampling = nil
	}
	cfg.Level = level
	l, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return zap.NewNop().Sugar()
	}
	return l.Sugar()
}

// SetPrefix задаёт имя сервиса для всех последующих логов (например "inboxd").
func SetPrefix(p string) {
	mu.Lock()
	defer mu.Unlock()
	prefix = p
}

// SetLevel меняет уровень логирования на лету: debug, info, warn, error.
func SetLevel(l string) {
	switch strings.ToLower(strings.TrimSpace(l)) {
	case "debug", "trace":
		level.SetLevel(zapcore.DebugLevel)
	case "warn", "warning":
		level.SetLevel(zapcore.WarnLevel)
	case "error":
		level.SetLevel(zapcore.ErrorLevel)
	default:
		level.SetLevel(zapcore.InfoLevel)
	}
}

// Replace подменяет zap-логгер (в тестах — zaptest/observer).
func Replace(l *zap.Logger) {
	mu.Lock()
	defer mu.Unlock()
	base = l.WithOptions(zap.AddCallerSkip(1)).Sugar()
}

func sugar() *zap.SugaredLogger {
	mu.RLock()
	defer mu.RUnlock()
	if prefix == "" {
		return base
	}
	return base.With("service", prefix)
}

// Sync сбрасывает буферы zap; вызывать в defer в main.
func Sync() {
	_ = sugar().Sync()
}

func Debugf(format string, v ...any) {
	sugar().Debugf(format, v...)
}

func Info(v ...any) {
	sugar().Info(fmt.Sprint(v...))
}

func Infof(format string, v ...any) {
	sugar().Infof(format, v...)
}

func Warnf(format string, v ...any) {
	sugar().Warnf(format, v...)
}

func Error(v ...any) {
	sugar().Error(fmt.Sprint(v...))
}

func Errorf(format string, v ...any) {
	sugar().Errorf(format, v...)
}

// With возвращает логгер с дополнительными полями (ключ, значение, ...).
func With(kv ...any) *zap.SugaredLogger {
	return sugar().With(kv...)
}

// LogDuration логирует имя функции и время выполнения в миллисекундах.
// На уровне info логирует только вызовы дольше 100ms; на debug — все.
func LogDuration(fn string, start time.Time) {
	elapsed := time.Since(start)
	if level.Enabled(zapcore.DebugLevel) || elapsed >= 100*time.Millisecond {
		sugar().Infow("duration", "fn", fn, "duration_ms", elapsed.Milliseconds())
	}
}

// DeferLogDuration возвращает функцию для вызова в defer: defer logger.DeferLogDuration("Select", time.Now())().
func DeferLogDuration(fn string, start time.Time) func() {
	return func() { LogDuration(fn, start) }
}
