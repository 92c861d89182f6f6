package logger

import (
	"io"
	"os"

	"memory_orchestrator/backend/go/internal/models"

	"github.com/sirupsen/logrus"
)

// Logger 是对 logrus 的封装，提供结构化日志记录功能。
// 所有 With* 方法都返回新的 Logger，不会修改接收者，因此可以在多个 worker 之间共享。
type Logger struct {
	entry *logrus.Entry
}

// Init 初始化全局的 logrus 配置：JSON 格式输出到标准输出。
func Init(level logrus.Level) {
	logrus.SetFormatter(newFormatter())
	logrus.SetOutput(os.Stdout)
	logrus.SetLevel(level)
}

func newFormatter() logrus.Formatter {
	return &logrus.JSONFormatter{
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime:  "timestamp",
			logrus.FieldKeyLevel: "level",
			logrus.FieldKeyMsg:   "message",
		},
	}
}

// ParseLevel 解析日志级别字符串，无法识别时回退到 Info。
func ParseLevel(s string) logrus.Level {
	level, err := logrus.ParseLevel(s)
	if err != nil {
		return logrus.InfoLevel
	}
	return level
}

// New 创建一个新的 Logger 实例，并预设服务名、追踪 ID 和用户 ID。
func New(serviceName, traceID, userID string) *Logger {
	fields := logrus.Fields{"service_name": serviceName}
	if traceID != "" {
		fields["trace_id"] = traceID
	}
	if userID != "" {
		fields["user_id"] = userID
	}
	return &Logger{entry: logrus.WithFields(fields)}
}

// Discard 返回一个丢弃所有输出的 Logger，用于测试。
func Discard() *Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	l.SetFormatter(newFormatter())
	return &Logger{entry: logrus.NewEntry(l)}
}

// WithField 添加单个字段。
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return &Logger{entry: l.entry.WithField(key, value)}
}

// WithSession 添加会话和用户标识。
func (l *Logger) WithSession(sessionID, userID string) *Logger {
	return &Logger{entry: l.entry.WithFields(logrus.Fields{
		"session_id": sessionID,
		"user_id":    userID,
	})}
}

// WithError 将错误信息添加到日志条目中。
func (l *Logger) WithError(err models.ErrorInfo) *Logger {
	return &Logger{entry: l.entry.WithField("error", err)}
}

// WithPayload 将自定义的业务数据添加到日志条目中。
func (l *Logger) WithPayload(payload map[string]interface{}) *Logger {
	return &Logger{entry: l.entry.WithField("payload", payload)}
}

// Info 记录一条信息级别的日志。
func (l *Logger) Info(message string) {
	l.entry.Info(message)
}

// Warn 记录一条警告级别的日志。
func (l *Logger) Warn(message string) {
	l.entry.Warn(message)
}

// Error 记录一条错误级别的日志。
func (l *Logger) Error(message string) {
	l.entry.Error(message)
}

// Debug 记录一条调试级别的日志。
func (l *Logger) Debug(message string) {
	l.entry.Debug(message)
}

// Fatal 记录一条致命错误级别的日志，并终止程序。
func (l *Logger) Fatal(message string) {
	l.entry.Fatal(message)
}
