package logger

import (
	"context"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// contextKey 日志上下文键
type contextKey string

const (
	traceIDKey contextKey = "trace_id"
	connIDKey  contextKey = "conn_id"
	roomKey    contextKey = "room"
	loggerKey  contextKey = "logger"
)

// WithTraceID 在 Context 中设置 TraceID
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

// WithConnID 在 Context 中设置连接 ID
func WithConnID(ctx context.Context, connID string) context.Context {
	return context.WithValue(ctx, connIDKey, connID)
}

// WithRoom 在 Context 中设置房间名
func WithRoom(ctx context.Context, room string) context.Context {
	return context.WithValue(ctx, roomKey, room)
}

// NewContext 将 Logger 存入 Context
func NewContext(ctx context.Context, l Logger) context.Context {
	return context.WithValue(ctx, loggerKey, l)
}

// FromContext 获取 Context 中的 Logger，不存在时返回 nil
func FromContext(ctx context.Context) Logger {
	if l, ok := ctx.Value(loggerKey).(Logger); ok {
		return l
	}
	return nil
}

// fieldsFromContext 提取上下文字段
// 未显式设置 TraceID 时使用 OpenTelemetry 的 TraceID
func fieldsFromContext(ctx context.Context) []zap.Field {
	if ctx == nil {
		return nil
	}
	fields := make([]zap.Field, 0, 4)

	if traceID, ok := ctx.Value(traceIDKey).(string); ok && traceID != "" {
		fields = append(fields, zap.String("trace_id", traceID))
	} else if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		fields = append(fields, zap.String("trace_id", sc.TraceID().String()))
	}

	if spanID := extractSpanID(ctx); spanID != "" {
		fields = append(fields, zap.String("span_id", spanID))
	}

	if connID, ok := ctx.Value(connIDKey).(string); ok && connID != "" {
		fields = append(fields, zap.String("conn_id", connID))
	}

	if room, ok := ctx.Value(roomKey).(string); ok && room != "" {
		fields = append(fields, zap.String("room", room))
	}

	return fields
}
