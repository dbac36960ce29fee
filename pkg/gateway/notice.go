package gateway

import (
	"context"

	"github.com/tokmz/syncboard/pkg/errors"
	"github.com/tokmz/syncboard/pkg/room"
)

type requestIDKey struct{}

// WithRequestID 在 Context 中携带请求 ID，错误通知会带回该 ID
func WithRequestID(ctx context.Context, requestID string) context.Context {
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

// RequestIDFrom 获取请求 ID
func RequestIDFrom(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// NewErrorNotice 根据错误构建通知
func NewErrorNotice(err error, requestID string) *ErrorNotice {
	notice := &ErrorNotice{
		Kind:      room.KindOf(err),
		Code:      errors.CodeOf(err),
		RequestID: requestID,
	}

	var e *errors.Error
	if errors.As(err, &e) {
		notice.Detail = e.Message
	} else if err != nil {
		// 非业务错误不向客户端暴露细节
		notice.Detail = "internal error"
	}
	return notice
}
