package logger

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"payment-simulator/internal/requestctx"
)

type Category string

const (
	CategoryPayment     Category = "payment_request"
	CategorySecurity    Category = "security_event"
	CategorySystem      Category = "system_event"
	CategoryAPI         Category = "api_access"
	CategoryRateLimit   Category = "rate_limit"
	CategoryError       Category = "application_error"
	CategoryPerformance Category = "performance_metrics"
)

// AuditEntry is the already-redacted copy of a log record handed to an
// AuditSink.
type AuditEntry struct {
	Timestamp time.Time              `json:"@timestamp"`
	Level     string                 `json:"level"`
	Category  Category               `json:"category"`
	Service   string                 `json:"service"`
	Message   string                 `json:"message"`
	Request   map[string]interface{} `json:"request,omitempty"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// AuditSink receives security and payment records for off-box retention.
type AuditSink interface {
	PublishAudit(entry *AuditEntry) error
}

type Options struct {
	Level   string
	Format  string
	Service string
}

// Logger emits categorized, redacted records. A Logger is safe for
// concurrent use and is shared by every request handler.
type Logger struct {
	zl      *zap.Logger
	service string

	mu   sync.RWMutex
	sink AuditSink
}

// NewLogger builds a JSON logger at info level with default options.
func NewLogger() *Logger {
	l, err := New(Options{Level: "info", Format: "json", Service: "payment-simulator"})
	if err != nil {
		panic(err)
	}
	return l
}

func New(opts Options) (*Logger, error) {
	level, err := zapcore.ParseLevel(strings.TrimSpace(opts.Level))
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", opts.Level, err)
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "@timestamp"
	encCfg.LevelKey = "level"
	encCfg.MessageKey = "message"
	encCfg.CallerKey = zapcore.OmitKey
	encCfg.StacktraceKey = zapcore.OmitKey
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var encoder zapcore.Encoder
	if strings.EqualFold(opts.Format, "console") {
		encCfg.EncodeLevel = colorLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encCfg)
	} else {
		encCfg.EncodeLevel = zapcore.LowercaseLevelEncoder
		encoder = zapcore.NewJSONEncoder(encCfg)
	}

	core := zapcore.NewCore(encoder, zapcore.Lock(os.Stdout), level)
	return NewWithCore(core, opts.Service), nil
}

// NewWithCore wraps an existing core. Tests use it with zaptest/observer.
func NewWithCore(core zapcore.Core, service string) *Logger {
	if service == "" {
		service = "payment-simulator"
	}
	return &Logger{
		zl:      zap.New(core).With(zap.String("service", service)),
		service: service,
	}
}

func NewNop() *Logger {
	return &Logger{zl: zap.NewNop(), service: "payment-simulator"}
}

func (l *Logger) SetAuditSink(sink AuditSink) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sink = sink
}

func (l *Logger) Close() {
	_ = l.zl.Sync()
}

func colorLevelEncoder(level zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
	var c *color.Color
	switch {
	case level >= zapcore.ErrorLevel:
		c = color.New(color.FgRed, color.Bold)
	case level == zapcore.WarnLevel:
		c = color.New(color.FgYellow)
	case level == zapcore.DebugLevel:
		c = color.New(color.FgCyan)
	default:
		c = color.New(color.FgGreen)
	}
	enc.AppendString(c.Sprint(level.CapitalString()))
}

// Info, Warn, Error, Debug and Fatal log process-level system events tagged
// with the emitting component.
func (l *Logger) Info(component, msg string, fields ...zap.Field) {
	l.emit(context.Background(), zapcore.InfoLevel, CategorySystem, msg, withComponent(component, fields))
}

func (l *Logger) Warn(component, msg string, fields ...zap.Field) {
	l.emit(context.Background(), zapcore.WarnLevel, CategorySystem, msg, withComponent(component, fields))
}

func (l *Logger) Error(component, msg string, fields ...zap.Field) {
	l.emit(context.Background(), zapcore.ErrorLevel, CategorySystem, msg, withComponent(component, fields))
}

func (l *Logger) Debug(component, msg string, fields ...zap.Field) {
	l.emit(context.Background(), zapcore.DebugLevel, CategorySystem, msg, withComponent(component, fields))
}

// Fatal logs and terminates the process with a non-zero exit code.
func (l *Logger) Fatal(component, msg string, fields ...zap.Field) {
	l.emit(context.Background(), zapcore.FatalLevel, CategorySystem, msg, withComponent(component, fields))
}

func (l *Logger) LogProcess(stage, msg string) {
	l.emit(context.Background(), zapcore.InfoLevel, CategorySystem, msg, []zap.Field{zap.String("stage", stage)})
}

func (l *Logger) LogKafka(action, topic, msg string) {
	l.emit(context.Background(), zapcore.DebugLevel, CategorySystem, msg, []zap.Field{
		zap.String("component", "kafka"),
		zap.String("action", action),
		zap.String("topic", topic),
	})
}

func (l *Logger) LogAPI(ctx context.Context, method, path string, status int, duration time.Duration) {
	level := zapcore.InfoLevel
	switch {
	case status >= 500:
		level = zapcore.ErrorLevel
	case status >= 400:
		level = zapcore.WarnLevel
	}
	l.emit(ctx, level, CategoryAPI, "http_request", []zap.Field{
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", status),
		zap.Int64("durationMs", duration.Milliseconds()),
	})
}

func (l *Logger) LogSecurity(ctx context.Context, event, msg string, fields ...zap.Field) {
	l.emit(ctx, zapcore.InfoLevel, CategorySecurity, msg, append([]zap.Field{zap.String("event", event)}, fields...))
}

func (l *Logger) LogSecurityWarning(ctx context.Context, event, msg string, fields ...zap.Field) {
	l.emit(ctx, zapcore.WarnLevel, CategorySecurity, msg, append([]zap.Field{zap.String("event", event)}, fields...))
}

func (l *Logger) LogPayment(ctx context.Context, stage, msg string, fields ...zap.Field) {
	l.emit(ctx, zapcore.InfoLevel, CategoryPayment, msg, append([]zap.Field{zap.String("stage", stage)}, fields...))
}

func (l *Logger) LogRateLimit(ctx context.Context, key string, count, limit int, retryAfter time.Duration) {
	l.emit(ctx, zapcore.WarnLevel, CategoryRateLimit, "rate limit exceeded", []zap.Field{
		zap.String("key", key),
		zap.Int("count", count),
		zap.Int("limit", limit),
		zap.Int64("retryAfterSeconds", int64(retryAfter.Round(time.Second)/time.Second)),
	})
}

// LogError records a failure with its stack. Stack traces appear only in
// this category.
func (l *Logger) LogError(ctx context.Context, msg string, err error, fields ...zap.Field) {
	all := make([]zap.Field, 0, len(fields)+2)
	if err != nil {
		all = append(all, zap.String("error", err.Error()))
	}
	all = append(all, fields...)
	all = append(all, zap.StackSkip("stacktrace", 1))
	l.emit(ctx, zapcore.ErrorLevel, CategoryError, msg, all)
}

func (l *Logger) LogPerformance(ctx context.Context, operation string, duration time.Duration, fields ...zap.Field) {
	l.emit(ctx, zapcore.InfoLevel, CategoryPerformance, operation, append([]zap.Field{
		zap.String("operation", operation),
		zap.Int64("durationMs", duration.Milliseconds()),
	}, fields...))
}

func withComponent(component string, fields []zap.Field) []zap.Field {
	return append([]zap.Field{zap.String("component", component)}, fields...)
}

func (l *Logger) emit(ctx context.Context, level zapcore.Level, category Category, msg string, fields []zap.Field) {
	if l == nil || l.zl == nil {
		return
	}

	msg = ScrubString(msg)
	fields = sanitizeFields(fields)

	all := make([]zap.Field, 0, len(fields)+2)
	all = append(all, zap.String("category", string(category)))
	state := requestctx.FromContext(ctx)
	if state != nil {
		all = append(all, zap.Object("request", requestObject{state}))
	}
	all = append(all, fields...)

	l.publish(level, category, msg, state, fields)

	if ce := l.zl.Check(level, msg); ce != nil {
		ce.Write(all...)
	}
}

func (l *Logger) publish(level zapcore.Level, category Category, msg string, state *requestctx.State, fields []zap.Field) {
	if category != CategorySecurity && category != CategoryPayment {
		return
	}

	l.mu.RLock()
	sink := l.sink
	l.mu.RUnlock()
	if sink == nil {
		return
	}

	enc := zapcore.NewMapObjectEncoder()
	for _, f := range fields {
		f.AddTo(enc)
	}

	entry := &AuditEntry{
		Timestamp: time.Now().UTC(),
		Level:     level.String(),
		Category:  category,
		Service:   l.service,
		Message:   msg,
		Fields:    enc.Fields,
	}
	if state != nil {
		reqEnc := zapcore.NewMapObjectEncoder()
		_ = requestObject{state}.MarshalLogObject(reqEnc)
		entry.Request = reqEnc.Fields
	}

	if err := sink.PublishAudit(entry); err != nil {
		l.zl.Warn("audit publish failed",
			zap.String("category", string(CategorySystem)),
			zap.String("component", "audit"),
			zap.String("error", err.Error()),
		)
	}
}

type requestObject struct {
	s *requestctx.State
}

func (r requestObject) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddString("requestId", r.s.RequestID)
	if r.s.Method != "" {
		enc.AddString("method", r.s.Method)
	}
	if r.s.Path != "" {
		enc.AddString("path", r.s.Path)
	}
	if r.s.ClientIP != "" {
		enc.AddString("clientIp", r.s.ClientIP)
	}
	if id, ok := r.s.Identity(); ok {
		enc.AddString("apiKeyId", id.ID)
	}
	if mode := r.s.Mode(); mode != "" {
		enc.AddString("mode", mode)
	}
	return nil
}
