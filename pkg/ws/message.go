package ws

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/tokmz/syncboard/pkg/gateway"
)

// MessageType 消息类型
type MessageType string

const (
	// MessageTypeRequest 请求消息
	MessageTypeRequest MessageType = "request"
	// MessageTypeResponse 响应消息
	MessageTypeResponse MessageType = "response"
	// MessageTypeNotify 通知消息（无需响应）
	MessageTypeNotify MessageType = "notify"
	// MessageTypeError 错误消息
	MessageTypeError MessageType = "error"
)

// 客户端事件
const (
	EventJoin   = "join"
	EventLeave  = "leave"
	EventUpdate = "update"
)

// Message WebSocket 消息
type Message struct {
	// Type 消息类型
	Type MessageType `json:"type"`

	// Event 事件名称（如 "join", "update.delivered"）
	Event string `json:"event"`

	// RequestID 请求 ID（用于请求-响应匹配）
	RequestID string `json:"request_id,omitempty"`

	// Data 消息数据（JSON）
	Data json.RawMessage `json:"data,omitempty"`

	// Timestamp 时间戳
	Timestamp int64 `json:"timestamp"`
}

// Response WebSocket 响应消息
type Response struct {
	// Type 固定为 "response"
	Type MessageType `json:"type"`

	// Event 对应的请求事件
	Event string `json:"event,omitempty"`

	// RequestID 对应的请求 ID
	RequestID string `json:"request_id"`

	// Code 业务状态码
	Code int `json:"code"`

	// Message 消息
	Message string `json:"message"`

	// Data 响应数据
	Data any `json:"data,omitempty"`

	// Timestamp 时间戳
	Timestamp int64 `json:"timestamp"`
}

// ErrorResponse WebSocket 错误响应（errorNotice）
type ErrorResponse struct {
	// Type 固定为 "error"
	Type MessageType `json:"type"`

	// Event 固定为 "error"
	Event string `json:"event"`

	// RequestID 对应的请求 ID
	RequestID string `json:"request_id,omitempty"`

	// Kind 错误类别
	Kind string `json:"kind"`

	// Code 错误码
	Code int `json:"code"`

	// Message 错误详情
	Message string `json:"message"`

	// Timestamp 时间戳
	Timestamp int64 `json:"timestamp"`
}

// encodeNotify 编码通知消息
func encodeNotify(event string, data any) ([]byte, error) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	msg := acquireMessage()
	defer releaseMessage(msg)

	msg.Type = MessageTypeNotify
	msg.Event = event
	msg.Data = dataBytes
	msg.Timestamp = time.Now().Unix()

	return json.Marshal(msg)
}

// NewResponse 创建响应
func NewResponse(event, requestID string, code int, message string, data any) *Response {
	return &Response{
		Type:      MessageTypeResponse,
		Event:     event,
		RequestID: requestID,
		Code:      code,
		Message:   message,
		Data:      data,
		Timestamp: time.Now().Unix(),
	}
}

// NewErrorResponse 由错误通知创建错误响应
func NewErrorResponse(notice *gateway.ErrorNotice) *ErrorResponse {
	return &ErrorResponse{
		Type:      MessageTypeError,
		Event:     gateway.EventError,
		RequestID: notice.RequestID,
		Kind:      string(notice.Kind),
		Code:      notice.Code,
		Message:   notice.Detail,
		Timestamp: time.Now().Unix(),
	}
}

// Unmarshal 解析消息数据
func (m *Message) Unmarshal(v any) error {
	if len(m.Data) == 0 {
		return json.Unmarshal([]byte("{}"), v)
	}
	return json.Unmarshal(m.Data, v)
}

// messagePool 消息对象池
var messagePool = sync.Pool{
	New: func() any {
		return &Message{}
	},
}

// acquireMessage 从对象池获取消息
func acquireMessage() *Message {
	return messagePool.Get().(*Message)
}

// releaseMessage 释放消息到对象池
func releaseMessage(msg *Message) {
	msg.Type = ""
	msg.Event = ""
	msg.RequestID = ""
	msg.Data = nil
	msg.Timestamp = 0
	messagePool.Put(msg)
}
