// Package logger 基于 zap 封装结构化日志
// 全局共享一个 SugaredLogger，按配置选择 json / console 输出
package logger

import (
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger 结构化日志封装
type Logger struct {
	sugar *zap.SugaredLogger
}

// New 创建 Logger 实例
// 参数:
//   - level: 日志级别 debug/info/warn/error
//   - format: 输出格式 json/text
//
// 返回:
//   - *Logger: 日志实例
//   - error: 构建错误
func New(level, format string) (*Logger, error) {
	cfg := zap.NewProductionConfig()
	if strings.ToLower(format) == "text" {
		cfg = zap.NewDevelopmentConfig()
	}

	switch strings.ToLower(level) {
	case "debug":
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	case "warn":
		cfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	case "error":
		cfg.Level = zap.NewAtomicLevelAt(zapcore.ErrorLevel)
	default:
		cfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	}

	zapLogger, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return nil, err
	}
	return &Logger{sugar: zapLogger.Sugar()}, nil
}

// NewNop 创建丢弃所有输出的 Logger，供测试使用
func NewNop() *Logger {
	return &Logger{sugar: zap.NewNop().Sugar()}
}

// Sync 刷新缓冲的日志
func (l *Logger) Sync() {
	_ = l.sugar.Sync()
}

// Debug 输出 debug 级别日志，keysAndValues 为键值对
func (l *Logger) Debug(msg string, keysAndValues ...interface{}) {
	l.sugar.Debugw(msg, keysAndValues...)
}

// Info 输出 info 级别日志
func (l *Logger) Info(msg string, keysAndValues ...interface{}) {
	l.sugar.Infow(msg, keysAndValues...)
}

// Warn 输出 warn 级别日志
func (l *Logger) Warn(msg string, keysAndValues ...interface{}) {
	l.sugar.Warnw(msg, keysAndValues...)
}

// Error 输出 error 级别日志
func (l *Logger) Error(msg string, keysAndValues ...interface{}) {
	l.sugar.Errorw(msg, keysAndValues...)
}

// Fatal 输出 fatal 级别日志并退出进程
func (l *Logger) Fatal(msg string, keysAndValues ...interface{}) {
	l.sugar.Fatalw(msg, keysAndValues...)
}

// With 附加固定字段，返回新的 Logger
func (l *Logger) With(keysAndValues ...interface{}) *Logger {
	return &Logger{sugar: l.sugar.With(keysAndValues...)}
}
