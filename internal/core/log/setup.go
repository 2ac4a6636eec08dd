package log

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Options 日志初始化参数
type Options struct {
	Level   string // debug / info / warn / error
	Format  string // text / json
	File    string // 为空时不写文件
	Console bool
}

var (
	defaultLogger     Logger
	defaultLoggerOnce sync.Once
	defaultLoggerMu   sync.RWMutex
	currentLogFile    *os.File
)

func initDefaultLogger() {
	l := logrus.New()
	l.SetOutput(io.Discard)
	defaultLogger = NewLogrusLogger(l)
}

// Default 获取默认 Logger（未初始化时丢弃所有输出）
func Default() Logger {
	defaultLoggerOnce.Do(initDefaultLogger)
	defaultLoggerMu.RLock()
	defer defaultLoggerMu.RUnlock()
	return defaultLogger
}

// SetDefault 设置默认 Logger
func SetDefault(l Logger) {
	defaultLoggerOnce.Do(initDefaultLogger)
	defaultLoggerMu.Lock()
	defer defaultLoggerMu.Unlock()
	defaultLogger = l
}

// New 按配置创建 logrus Logger
func New(opts Options) (*logrus.Logger, io.Closer, error) {
	l := logrus.New()

	level := logrus.InfoLevel
	if opts.Level != "" {
		parsed, err := logrus.ParseLevel(opts.Level)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid log level: %s", opts.Level)
		}
		level = parsed
	}
	l.SetLevel(level)

	switch opts.Format {
	case "json":
		l.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339,
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "timestamp",
				logrus.FieldKeyLevel: "level",
				logrus.FieldKeyMsg:   "message",
			},
		})
	case "", "text":
		l.SetFormatter(&logrus.TextFormatter{
			TimestampFormat: time.RFC3339,
			FullTimestamp:   true,
		})
	default:
		return nil, nil, fmt.Errorf("invalid log format: %s", opts.Format)
	}

	var writers []io.Writer
	var closer io.Closer = io.NopCloser(nil)
	if opts.File != "" {
		file, err := os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open log file: %w", err)
		}
		writers = append(writers, file)
		closer = file
	}
	if opts.Console || len(writers) == 0 {
		writers = append(writers, os.Stderr)
	}
	l.SetOutput(io.MultiWriter(writers...))

	return l, closer, nil
}

// Init 按配置初始化默认 Logger 并返回它
func Init(opts Options) (Logger, error) {
	l, closer, err := New(opts)
	if err != nil {
		return nil, err
	}

	defaultLoggerMu.Lock()
	if currentLogFile != nil {
		_ = currentLogFile.Close()
		currentLogFile = nil
	}
	if f, ok := closer.(*os.File); ok {
		currentLogFile = f
	}
	defaultLoggerMu.Unlock()

	logger := NewLogrusLogger(l)
	SetDefault(logger)
	return logger, nil
}

// Close 关闭当前日志文件
func Close() {
	defaultLoggerMu.Lock()
	defer defaultLoggerMu.Unlock()
	if currentLogFile != nil {
		_ = currentLogFile.Close()
		currentLogFile = nil
	}
}

func sprintf(format string, args ...interface{}) string {
	if len(args) == 0 {
		return format
	}
	return fmt.Sprintf(format, args...)
}
