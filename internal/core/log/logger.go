// Package log 提供统一的日志接口和实现
// 组件通过构造参数注入 Logger，测试时替换为 NopLogger 或 TestLogger
package log

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

// Logger 日志接口
type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})

	WithField(key string, value interface{}) Logger
	WithFields(fields Fields) Logger
	WithError(err error) Logger
	WithContext(ctx context.Context) Logger
}

// Fields 结构化字段
type Fields map[string]interface{}

// 常用字段名
const (
	FieldComponent = "component"
	FieldUserID    = "user_id"
	FieldOp        = "op"
	FieldBackend   = "backend"
	FieldPath      = "path"
	FieldJob       = "job"
	FieldDuration  = "duration"
)

// ============================================================================
// logrusLogger
// ============================================================================

type logrusLogger struct {
	entry *logrus.Entry
}

// NewLogrusLogger 创建基于 logrus 的 Logger
func NewLogrusLogger(l *logrus.Logger) Logger {
	return &logrusLogger{entry: logrus.NewEntry(l)}
}

func (l *logrusLogger) Debugf(format string, args ...interface{}) { l.entry.Debugf(format, args...) }
func (l *logrusLogger) Infof(format string, args ...interface{})  { l.entry.Infof(format, args...) }
func (l *logrusLogger) Warnf(format string, args ...interface{})  { l.entry.Warnf(format, args...) }
func (l *logrusLogger) Errorf(format string, args ...interface{}) { l.entry.Errorf(format, args...) }

func (l *logrusLogger) WithField(key string, value interface{}) Logger {
	return &logrusLogger{entry: l.entry.WithField(key, value)}
}

func (l *logrusLogger) WithFields(fields Fields) Logger {
	return &logrusLogger{entry: l.entry.WithFields(logrus.Fields(fields))}
}

func (l *logrusLogger) WithError(err error) Logger {
	return &logrusLogger{entry: l.entry.WithError(err)}
}

func (l *logrusLogger) WithContext(ctx context.Context) Logger {
	return &logrusLogger{entry: l.entry.WithContext(ctx)}
}

// ============================================================================
// NopLogger
// ============================================================================

// NopLogger 静默日志
type NopLogger struct{}

func (NopLogger) Debugf(string, ...interface{})          {}
func (NopLogger) Infof(string, ...interface{})           {}
func (NopLogger) Warnf(string, ...interface{})           {}
func (NopLogger) Errorf(string, ...interface{})          {}
func (n NopLogger) WithField(string, interface{}) Logger { return n }
func (n NopLogger) WithFields(Fields) Logger             { return n }
func (n NopLogger) WithError(error) Logger               { return n }
func (n NopLogger) WithContext(context.Context) Logger   { return n }

// ============================================================================
// TestLogger - 输出到 testing.T
// ============================================================================

// TestingT 兼容 *testing.T
type TestingT interface {
	Logf(format string, args ...interface{})
}

// TestLogger 测试日志，同时记录每行输出便于断言
type TestLogger struct {
	t      TestingT
	fields Fields
	sink   *testSink
}

type testSink struct {
	mu    sync.Mutex
	lines []string
	done  bool // 测试结束后后台 goroutine 的输出只记录不打印
}

// NewTestLogger 创建测试日志
func NewTestLogger(t TestingT) *TestLogger {
	sink := &testSink{}
	if c, ok := t.(interface{ Cleanup(func()) }); ok {
		c.Cleanup(func() {
			sink.mu.Lock()
			sink.done = true
			sink.mu.Unlock()
		})
	}
	return &TestLogger{t: t, fields: Fields{}, sink: sink}
}

func (l *TestLogger) logf(level, format string, args ...interface{}) {
	line := sprintf(format, args...) + l.suffix()
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()
	if !l.sink.done {
		l.t.Logf("[%s] %s", level, line)
	}
	l.sink.lines = append(l.sink.lines, level+" "+line)
}

func (l *TestLogger) suffix() string {
	if len(l.fields) == 0 {
		return ""
	}
	keys := make([]string, 0, len(l.fields))
	for k := range l.fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for _, k := range keys {
		b.WriteString(" ")
		b.WriteString(k)
		b.WriteString("=")
		b.WriteString(sprintf("%v", l.fields[k]))
	}
	return b.String()
}

func (l *TestLogger) Debugf(format string, args ...interface{}) { l.logf("DEBUG", format, args...) }
func (l *TestLogger) Infof(format string, args ...interface{})  { l.logf("INFO", format, args...) }
func (l *TestLogger) Warnf(format string, args ...interface{})  { l.logf("WARN", format, args...) }
func (l *TestLogger) Errorf(format string, args ...interface{}) { l.logf("ERROR", format, args...) }

func (l *TestLogger) WithField(key string, value interface{}) Logger {
	return l.WithFields(Fields{key: value})
}

func (l *TestLogger) WithFields(fields Fields) Logger {
	merged := make(Fields, len(l.fields)+len(fields))
	for k, v := range l.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return &TestLogger{t: l.t, fields: merged, sink: l.sink}
}

func (l *TestLogger) WithError(err error) Logger {
	return l.WithField("error", err)
}

func (l *TestLogger) WithContext(context.Context) Logger {
	return l
}

// Lines 返回已记录的日志行（格式：LEVEL message k=v ...）
func (l *TestLogger) Lines() []string {
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()
	out := make([]string, len(l.sink.lines))
	copy(out, l.sink.lines)
	return out
}

// Contains 检查是否存在包含 substr 的日志行
func (l *TestLogger) Contains(substr string) bool {
	for _, line := range l.Lines() {
		if strings.Contains(line, substr) {
			return true
		}
	}
	return false
}
