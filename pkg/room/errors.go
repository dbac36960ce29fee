package room

import (
	"net/http"

	"github.com/tokmz/syncboard/pkg/errors"
)

// Kind 错误类别，作为 errorNotice 的 kind 字段下发给客户端
type Kind string

const (
	KindCapacityExceeded Kind = "CapacityExceeded"
	KindRoomNotFound     Kind = "RoomNotFound"
	KindAlreadyMember    Kind = "AlreadyMember"
	KindInvalidPayload   Kind = "InvalidPayload"
	KindRoomFull         Kind = "RoomFull"
	KindNotConnected     Kind = "NotConnected"
	KindShuttingDown     Kind = "ShuttingDown"
	KindInvalidMessage   Kind = "InvalidMessage"
	KindInternal         Kind = "Internal"
)

// 房间同步错误定义（2xxx）
var (
	// ErrCapacityExceeded 连接数达到上限
	ErrCapacityExceeded = errors.New(2001, http.StatusServiceUnavailable, "connection capacity exceeded", nil)
	// ErrRoomNotFound 房间不存在或连接不是该房间成员
	ErrRoomNotFound = errors.New(2002, http.StatusNotFound, "room not found", nil)
	// ErrAlreadyMember 严格模式下重复加入同一房间
	ErrAlreadyMember = errors.New(2003, http.StatusConflict, "already a member of this room", nil)
	// ErrInvalidPayload 负载或房间名校验失败
	ErrInvalidPayload = errors.New(2004, http.StatusBadRequest, "invalid payload", nil)
	// ErrRoomFull 房间人数达到上限
	ErrRoomFull = errors.New(2005, http.StatusConflict, "room is full", nil)
	// ErrNotConnected 连接不存在或已断开
	ErrNotConnected = errors.New(2006, http.StatusGone, "connection is not alive", nil)
	// ErrShuttingDown 服务正在关闭
	ErrShuttingDown = errors.New(2007, http.StatusServiceUnavailable, "server is shutting down", nil)
	// ErrInvalidMessage 消息信封无法解析或事件未注册
	ErrInvalidMessage = errors.New(2008, http.StatusBadRequest, "invalid message", nil)
)

var kindTable = []struct {
	err  *errors.Error
	kind Kind
}{
	{ErrCapacityExceeded, KindCapacityExceeded},
	{ErrRoomNotFound, KindRoomNotFound},
	{ErrAlreadyMember, KindAlreadyMember},
	{ErrInvalidPayload, KindInvalidPayload},
	{ErrRoomFull, KindRoomFull},
	{ErrNotConnected, KindNotConnected},
	{ErrShuttingDown, KindShuttingDown},
	{ErrInvalidMessage, KindInvalidMessage},
}

// KindOf 返回错误对应的类别，未知错误归为 KindInternal
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	for _, k := range kindTable {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindInternal
}
