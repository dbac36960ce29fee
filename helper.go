package syncboard

// ContextTraceIDKey 链路追踪 trace_id 键
const ContextTraceIDKey = "trace_id"

// GetContextTraceID 获取上下文链路追踪 trace_id
func GetContextTraceID(ctx *Context) string {
	return ctx.GetString(ContextTraceIDKey)
}

// SetContextTraceID 设置上下文链路追踪 trace_id
func SetContextTraceID(ctx *Context, traceID string) {
	ctx.Set(ContextTraceIDKey, traceID)
}
