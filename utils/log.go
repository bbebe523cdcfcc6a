package utils

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	configs "go_mock_resolver/internal/infra/config"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// CustomFormatter 自定义日志格式
type CustomFormatter struct {
	logrus.JSONFormatter
}

// Format 实现自定义格式化
func (f *CustomFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	// 添加进程信息
	entry.Data["pid"] = os.Getpid()

	// 添加协程ID
	entry.Data["goroutine_id"] = getGoroutineID()

	return f.JSONFormatter.Format(entry)
}

// Log is the global logger instance
var (
	Log  *logrus.Logger
	once sync.Once
)

// InitLogger 按配置初始化全局 logger，只有第一次调用生效
func InitLogger(cfg configs.LogConfig) (*logrus.Logger, error) {
	var err error
	once.Do(func() {
		Log, err = NewLogger(cfg)
	})
	if err != nil {
		return nil, err
	}
	if Log == nil {
		return nil, fmt.Errorf("logger initialization failed earlier")
	}
	return Log, nil
}

// NewLogger 构造独立的 logger，file 为空时只写 stdout
func NewLogger(cfg configs.LogConfig) (*logrus.Logger, error) {
	logger := logrus.New()

	// 使用自定义格式化器
	logger.SetFormatter(&CustomFormatter{
		JSONFormatter: logrus.JSONFormatter{
			TimestampFormat: time.RFC3339,
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "@timestamp",
				logrus.FieldKeyLevel: "level",
				logrus.FieldKeyMsg:   "message",
			},
			CallerPrettyfier: func(frame *runtime.Frame) (string, string) {
				return filepath.Base(frame.Function), fmt.Sprintf("%s:%d", filepath.Base(frame.File), frame.Line)
			},
		},
	})

	var out io.Writer = os.Stdout
	if cfg.File != "" {
		// 创建日志目录
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		out = io.MultiWriter(os.Stdout, &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
		})
	}
	logger.SetOutput(out)

	level := logrus.InfoLevel
	if cfg.Level != "" {
		parsed, err := logrus.ParseLevel(cfg.Level)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
		}
		level = parsed
	}
	logger.SetLevel(level)

	// 添加堆栈跟踪
	logger.SetReportCaller(true)
	return logger, nil
}

// GetLogger returns the singleton logger instance
func GetLogger() *logrus.Logger {
	once.Do(func() {
		Log, _ = NewLogger(configs.LogConfig{Level: "info"})
	})
	return Log
}

// getGoroutineID 获取当前协程ID
func getGoroutineID() uint64 {
	b := make([]byte, 64)
	b = b[:runtime.Stack(b, false)]
	// 解析协程ID
	var id uint64
	fmt.Sscanf(string(b), "goroutine %d", &id)
	return id
}
