package logger

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/code-sigs/go-naming/pkg/trace"
	rotatelogs "github.com/lestrrat-go/file-rotatelogs"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var zlogger atomic.Pointer[zap.Logger]

type options struct {
	logLevel     string
	maxAgeDays   int
	enableStdout bool
}

type Option func(*options)

func WithLogLevel(level string) Option {
	return func(o *options) { o.logLevel = level }
}

func WithMaxAge(days int) Option {
	return func(o *options) { o.maxAgeDays = days }
}

// WithStdout 配置是否同时输出到终端
func WithStdout(enable bool) Option {
	return func(o *options) { o.enableStdout = enable }
}

func init() {
	// 默认只输出到终端，调用 Init 后才落盘
	zlogger.Store(zap.New(stdoutCore(zapcore.InfoLevel), zap.AddCaller(), zap.AddCallerSkip(1)))
}

var encoderConfig = zapcore.EncoderConfig{
	TimeKey:      "ts",
	LevelKey:     "level",
	MessageKey:   "msg",
	CallerKey:    "caller",
	EncodeLevel:  zapcore.CapitalLevelEncoder,
	EncodeTime:   zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05"),
	EncodeCaller: shortCallerEncoder,
}

func stdoutCore(level zapcore.Level) zapcore.Core {
	return zapcore.NewCore(zapcore.NewConsoleEncoder(encoderConfig), zapcore.AddSync(os.Stdout), level)
}

// Init 初始化按天切割的文件日志，logDir 为空时只输出到终端
func Init(logDir string, opts ...Option) error {
	conf := &options{
		logLevel:     "info",
		maxAgeDays:   7,
		enableStdout: true,
	}
	for _, opt := range opts {
		opt(conf)
	}
	level := parseLevel(conf.logLevel)

	var cores []zapcore.Core
	if logDir != "" {
		if err := os.MkdirAll(logDir, os.ModePerm); err != nil {
			return fmt.Errorf("failed to create log directory: %w", err)
		}
		writer, err := rotatelogs.New(
			filepath.Join(logDir, "naming-%Y-%m-%d.log"),
			rotatelogs.WithLinkName(filepath.Join(logDir, "latest.log")),
			rotatelogs.WithMaxAge(time.Duration(conf.maxAgeDays)*24*time.Hour),
			rotatelogs.WithRotationTime(24*time.Hour),
		)
		if err != nil {
			return fmt.Errorf("failed to create rotatelogs: %w", err)
		}
		cores = append(cores, zapcore.NewCore(zapcore.NewConsoleEncoder(encoderConfig), zapcore.AddSync(writer), level))
	}
	if conf.enableStdout || len(cores) == 0 {
		cores = append(cores, stdoutCore(level))
	}

	zlogger.Store(zap.New(zapcore.NewTee(cores...), zap.AddCaller(), zap.AddCallerSkip(1)))
	return nil
}

// shortCallerEncoder 显示 caller 的上一级目录 + 文件名 + 行号
func shortCallerEncoder(caller zapcore.EntryCaller, enc zapcore.PrimitiveArrayEncoder) {
	parts := strings.Split(caller.File, "/")
	n := len(parts)
	if n >= 2 {
		enc.AppendString(fmt.Sprintf("%s/%s:%d", parts[n-2], parts[n-1], caller.Line))
	} else {
		enc.AppendString(fmt.Sprintf("%s:%d", caller.File, caller.Line))
	}
}

func parseLevel(level string) zapcore.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// Sync 刷新缓冲，进程退出前调用
func Sync() {
	_ = zlogger.Load().Sync()
}

func Debugf(ctx context.Context, format string, args ...interface{}) {
	logWithTrace(ctx).Debugf(format, args...)
}

func Infof(ctx context.Context, format string, args ...interface{}) {
	logWithTrace(ctx).Infof(format, args...)
}

func Warnf(ctx context.Context, format string, args ...interface{}) {
	logWithTrace(ctx).Warnf(format, args...)
}

func Errorf(ctx context.Context, format string, args ...interface{}) {
	logWithTrace(ctx).Errorf(format, args...)
}

func Debugw(ctx context.Context, msg string, kvs ...interface{}) {
	logWithTrace(ctx).Debugw(msg, kvs...)
}

func Infow(ctx context.Context, msg string, kvs ...interface{}) {
	logWithTrace(ctx).Infow(msg, kvs...)
}

func Warnw(ctx context.Context, msg string, kvs ...interface{}) {
	logWithTrace(ctx).Warnw(msg, kvs...)
}

func Errorw(ctx context.Context, msg string, kvs ...interface{}) {
	logWithTrace(ctx).Errorw(msg, kvs...)
}

// 提取 traceID 并注入到日志中
func logWithTrace(ctx context.Context) *zap.SugaredLogger {
	l := zlogger.Load().Sugar()
	if traceID := trace.GetTraceID(ctx); traceID != "" {
		return l.With("traceID", traceID)
	}
	return l
}
