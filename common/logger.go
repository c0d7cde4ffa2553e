package common

import (
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogLevel 日志级别
type LogLevel string

// 日志级别
const (
	Debug LogLevel = "debug"
	Info  LogLevel = "info"
	Warn  LogLevel = "warn"
	Error LogLevel = "error"
)

// 运行环境
const (
	EnvProduction  = "production"
	EnvDevelopment = "development"
)

func (p LogLevel) zapLevel() (zapcore.Level, bool) {
	switch LogLevel(strings.ToLower(string(p))) {
	case Debug:
		return zap.DebugLevel, true
	case Info:
		return zap.InfoLevel, true
	case Warn:
		return zap.WarnLevel, true
	case Error:
		return zap.ErrorLevel, true
	}
	return zap.InfoLevel, false
}

// Logger 日志接口
type Logger interface {
	Debugf(format string, params ...interface{})
	Infof(format string, params ...interface{})
	Warnf(format string, params ...interface{})
	Errorf(format string, params ...interface{})
	DebugEnabled() bool
	InfoEnabled() bool
	WarnEnabled() bool
	ErrorEnabled() bool
	SetLevel(level LogLevel)
	Sync()
}

var (
	loggerMu sync.RWMutex
	logger   Logger = NewZapLogger(&LogConfig{Env: EnvDevelopment, NoCaller: true})
)

func currentLogger() Logger {
	loggerMu.RLock()
	defer loggerMu.RUnlock()
	return logger
}

// SetLogger 替换全局的Logger
func SetLogger(l Logger) {
	if l == nil {
		return
	}
	loggerMu.Lock()
	old := logger
	logger = l
	loggerMu.Unlock()
	if old != nil {
		old.Sync()
	}
}

func initLogger(config *LogConfig) error {
	if config == nil {
		return nil
	}
	if config.Level != "" {
		if _, ok := LogLevel(config.Level).zapLevel(); !ok {
			return fmt.Errorf("invalid log level %q", config.Level)
		}
	}
	SetLogger(NewZapLogger(config))
	return nil
}

// SetLogLevel 设置全局日志级别,无效的级别被忽略
func SetLogLevel(level LogLevel) {
	currentLogger().SetLevel(level)
}

// Debugf debug
func Debugf(format string, params ...interface{}) {
	currentLogger().Debugf(format, params...)
}

// Infof info
func Infof(format string, params ...interface{}) {
	currentLogger().Infof(format, params...)
}

// Warnf warn
func Warnf(format string, params ...interface{}) {
	currentLogger().Warnf(format, params...)
}

// Errorf error
func Errorf(format string, params ...interface{}) {
	currentLogger().Errorf(format, params...)
}

// Logf 按照level记录日志
func Logf(level LogLevel, format string, params ...interface{}) {
	l := currentLogger()
	switch level {
	case Debug:
		l.Debugf(format, params...)
	case Warn:
		l.Warnf(format, params...)
	case Error:
		l.Errorf(format, params...)
	default:
		l.Infof(format, params...)
	}
}

// DebugEnabled is debug enabled
func DebugEnabled() bool {
	return currentLogger().DebugEnabled()
}

// InfoEnabled is info enabled
func InfoEnabled() bool {
	return currentLogger().InfoEnabled()
}

// WarnEnabled is warn enabled
func WarnEnabled() bool {
	return currentLogger().WarnEnabled()
}

// ErrorEnabled is error enabled
func ErrorEnabled() bool {
	return currentLogger().ErrorEnabled()
}

// SyncLogger flush
func SyncLogger() {
	currentLogger().Sync()
}
