package logger

import (
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// 全局日志实例
	logger *zap.Logger
	level  zap.AtomicLevel
	once   sync.Once
)

// 初始化日志
func init() {
	once.Do(func() {
		level = zap.NewAtomicLevelAt(zap.InfoLevel)
		logger = newLogger(level)
	})
}

// newLogger 创建一个新的日志实例
// stdout 留给 stdio 协议使用，日志统一写到 stderr
func newLogger(lvl zap.AtomicLevel) *zap.Logger {
	return build(lvl, "json")
}

func build(lvl zap.AtomicLevel, format string) *zap.Logger {
	// 创建基础的encoder配置
	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "time",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.SecondsDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	encoder := zapcore.NewJSONEncoder(encoderConfig)
	if format == "console" {
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	}

	core := zapcore.NewCore(
		encoder,
		zapcore.AddSync(os.Stderr),
		lvl,
	)

	return zap.New(core,
		zap.AddCaller(),
		zap.AddCallerSkip(1),
		zap.AddStacktrace(zapcore.ErrorLevel),
	)
}

// Info 记录INFO级别的日志
func Info(msg string, fields ...zap.Field) {
	logger.Info(msg, fields...)
}

// Debug 记录DEBUG级别的日志
func Debug(msg string, fields ...zap.Field) {
	logger.Debug(msg, fields...)
}

// Warn 记录WARN级别的日志
func Warn(msg string, fields ...zap.Field) {
	logger.Warn(msg, fields...)
}

// Error 记录ERROR级别的日志
func Error(msg string, fields ...zap.Field) {
	logger.Error(msg, fields...)
}

// Fatal 记录FATAL级别的日志，然后退出程序
func Fatal(msg string, fields ...zap.Field) {
	logger.Fatal(msg, fields...)
}

// With 返回带有指定字段的Logger，调用方直接使用，不再跳过包装层
func With(fields ...zap.Field) *zap.Logger {
	return logger.WithOptions(zap.AddCallerSkip(-1)).With(fields...)
}

// Sync 刷新缓冲的日志
func Sync() {
	_ = logger.Sync()
}

// SetLevel 设置日志级别
func SetLevel(lvl string) {
	var zapLevel zapcore.Level
	switch lvl {
	case "debug":
		zapLevel = zap.DebugLevel
	case "info":
		zapLevel = zap.InfoLevel
	case "warn":
		zapLevel = zap.WarnLevel
	case "error":
		zapLevel = zap.ErrorLevel
	default:
		zapLevel = zap.InfoLevel
	}
	level.SetLevel(zapLevel)
}

// SetFormat 切换输出格式：json（默认）或 console，只应在启动时调用
func SetFormat(format string) {
	logger = build(level, format)
}

// Enabled 当前级别是否输出 lvl
func Enabled(lvl zapcore.Level) bool {
	return level.Enabled(lvl)
}

// Replace 替换全局日志实例并返回恢复函数，测试中配合 zaptest/observer 捕获日志
func Replace(l *zap.Logger) func() {
	prev := logger
	logger = l.WithOptions(zap.AddCallerSkip(1))
	return func() { logger = prev }
}
