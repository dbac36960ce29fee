package room

import (
	"encoding/json"
	"time"
)

// Update 已排序的更新，序号分配后不可变
type Update struct {
	Room      string          `json:"room"`
	Seq       uint64          `json:"seq"`
	Payload   json.RawMessage `json:"payload"`
	Origin    ConnID          `json:"origin"`
	Timestamp int64           `json:"ts"` // 准入时间（毫秒）
}

// FanoutFunc 扇出回调
// 在房间交付区间内按序号顺序调用，targets 为准入时的成员快照
type FanoutFunc func(u *Update, targets []ConnID)

// Sequencer 更新序列器
type Sequencer struct {
	rooms *Manager
}

// NewSequencer 创建更新序列器
func NewSequencer(rooms *Manager) *Sequencer {
	return &Sequencer{rooms: rooms}
}

// Submit 提交更新
// 连接必须是该房间的当前成员，否则返回 ErrRoomNotFound。
// 序号在房间锁内分配；fanout 在房间锁释放后、交付区间内执行，
// 同一房间的 fanout 调用不会并发，且按序号递增。
func (s *Sequencer) Submit(name string, id ConnID, payload json.RawMessage, fanout FanoutFunc) (*Update, error) {
	r, ok := s.rooms.load(name)
	if !ok {
		return nil, ErrRoomNotFound
	}

	r.mu.Lock()
	if _, member := r.members[id]; r.closed || !member {
		r.mu.Unlock()
		return nil, ErrRoomNotFound
	}
	r.seq++
	u := &Update{
		Room:      name,
		Seq:       r.seq,
		Payload:   append(json.RawMessage(nil), payload...),
		Origin:    id,
		Timestamp: time.Now().UnixMilli(),
	}
	targets := r.snapshotLocked()

	// 先进入交付区间再释放状态锁，保证交付顺序与序号一致
	r.deliverMu.Lock()
	r.mu.Unlock()
	defer r.deliverMu.Unlock()

	if fanout != nil {
		fanout(u, targets)
	}
	return u, nil
}
