package common

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// ZapLogger 使用zap封装的logger
type ZapLogger struct {
	logEnable zap.AtomicLevel
	logger    *zap.SugaredLogger
}

// Debugf debug
func (l *ZapLogger) Debugf(format string, params ...interface{}) {
	l.logger.Debugf(format, params...)
}

// DebugEnabled impls Logger.DebugEnabled
func (l *ZapLogger) DebugEnabled() bool {
	return l.logEnable.Enabled(zap.DebugLevel)
}

// Infof info
func (l *ZapLogger) Infof(format string, params ...interface{}) {
	l.logger.Infof(format, params...)
}

// InfoEnabled impls Logger.InfoEnabled
func (l *ZapLogger) InfoEnabled() bool {
	return l.logEnable.Enabled(zap.InfoLevel)
}

// Warnf warn
func (l *ZapLogger) Warnf(format string, params ...interface{}) {
	l.logger.Warnf(format, params...)
}

// WarnEnabled impls Logger.WarnEnabled
func (l *ZapLogger) WarnEnabled() bool {
	return l.logEnable.Enabled(zap.WarnLevel)
}

// Errorf error
func (l *ZapLogger) Errorf(format string, params ...interface{}) {
	l.logger.Errorf(format, params...)
}

// ErrorEnabled impls Logger.ErrorEnabled
func (l *ZapLogger) ErrorEnabled() bool {
	return l.logEnable.Enabled(zap.ErrorLevel)
}

// Sync impls Logger.Sync
func (l *ZapLogger) Sync() {
	_ = l.logger.Sync()
}

// SetLevel impls Logger.SetLevel
func (l *ZapLogger) SetLevel(level LogLevel) {
	zapl, ok := level.zapLevel()
	if ok {
		l.logEnable.SetLevel(zapl)
	}
}

// NewZapLogger 根据日志配置创建zap logger,设置了FileName时使用lumberjack按大小切分文件
func NewZapLogger(logConfig *LogConfig) *ZapLogger {
	var encoderConfig zapcore.EncoderConfig
	var logEnable zap.AtomicLevel

	if logConfig.Env == EnvProduction {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		logEnable = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	} else {
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		logEnable = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}

	if logConfig.Level != "" {
		if zapl, ok := LogLevel(logConfig.Level).zapLevel(); ok {
			logEnable = zap.NewAtomicLevelAt(zapl)
		}
	}

	var encoder zapcore.Encoder
	if logConfig.Format == "json" {
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	} else {
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	}

	var writerSync zapcore.WriteSyncer
	if logConfig.FileName != "" {
		writerSync = zapcore.AddSync(&lumberjack.Logger{
			Filename:   logConfig.FileName,
			MaxSize:    logConfig.MaxSize,
			MaxBackups: logConfig.MaxBackups,
			MaxAge:     logConfig.MaxAge,
			LocalTime:  true,
		})
	} else {
		writerSync = zapcore.Lock(os.Stderr)
	}

	logger := zap.New(zapcore.NewCore(encoder, writerSync, logEnable))
	if !logConfig.NoCaller {
		logger = logger.WithOptions(zap.AddCaller(), zap.AddCallerSkip(2))
	}
	return &ZapLogger{logger: logger.Sugar(), logEnable: logEnable}
}
