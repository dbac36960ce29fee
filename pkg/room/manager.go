package room

import (
	"sync"
	"sync/atomic"
)

// room 房间，由 Manager 独占持有
type room struct {
	name string

	// mu 保护 members、seq、closed
	mu      sync.Mutex
	members map[ConnID]struct{}
	seq     uint64
	closed  bool // 已从 Manager 移除，持有旧引用的调用方需重试

	// deliverMu 交付区间锁，在释放 mu 之前获取
	deliverMu sync.Mutex
}

func newRoom(name string) *room {
	return &room{
		name:    name,
		members: make(map[ConnID]struct{}),
	}
}

// snapshotLocked 复制成员集合，调用方持有 r.mu
func (r *room) snapshotLocked() []ConnID {
	targets := make([]ConnID, 0, len(r.members))
	for id := range r.members {
		targets = append(targets, id)
	}
	return targets
}

// Observer 成员变更观察者
// 回调在所有锁释放之后同步执行
type Observer interface {
	MemberJoined(room string, id ConnID, members int)
	MemberLeft(room string, id ConnID, members int)
}

// ManagerOption 房间管理器选项
type ManagerOption func(*Manager)

// WithStrictJoin 重复加入同一房间时返回 ErrAlreadyMember（默认幂等）
func WithStrictJoin(strict bool) ManagerOption {
	return func(m *Manager) {
		m.strict = strict
	}
}

// WithMaxRoomSize 设置单个房间最大人数，<= 0 表示不限制
func WithMaxRoomSize(size int) ManagerOption {
	return func(m *Manager) {
		m.maxRoomSize = size
	}
}

// WithObserver 设置成员变更观察者
func WithObserver(o Observer) ManagerOption {
	return func(m *Manager) {
		m.observer = o
	}
}

// Manager 房间管理器
type Manager struct {
	rooms     sync.Map // name -> *room
	roomCount atomic.Int64
	registry  *Registry

	strict      bool
	maxRoomSize int
	observer    Observer
}

// NewManager 创建房间管理器，并绑定到注册表以便注销时级联离开
func NewManager(registry *Registry, opts ...ManagerOption) *Manager {
	m := &Manager{registry: registry}
	for _, opt := range opts {
		opt(m)
	}
	registry.rooms = m
	return m
}

// SetObserver 替换成员变更观察者，需在处理连接之前调用
func (m *Manager) SetObserver(o Observer) {
	m.observer = o
}

// Join 加入房间
// 房间不存在时创建；已在其他房间时先隐式离开
// 目标房间已满时返回 ErrRoomFull 并保留原房间，
// 仅当检查之后房间被并发占满时，连接才会离开原房间而不在任何房间
func (m *Manager) Join(id ConnID, name string) error {
	if name == "" {
		return ErrInvalidPayload.WithMessage("room name must not be empty")
	}
	c, ok := m.registry.lookup(id)
	if !ok {
		return ErrNotConnected
	}

	c.mu.Lock()
	if !c.alive() {
		c.mu.Unlock()
		return ErrNotConnected
	}
	if c.room == name {
		c.mu.Unlock()
		if m.strict {
			return ErrAlreadyMember
		}
		return nil
	}

	if m.full(name) {
		c.mu.Unlock()
		return ErrRoomFull
	}

	leftNotify := m.detach(c)
	members, err := m.attach(id, name)
	if err == nil {
		c.room = name
	}
	c.mu.Unlock()

	if leftNotify != nil {
		leftNotify()
	}
	if err != nil {
		return err
	}
	if m.observer != nil {
		m.observer.MemberJoined(name, id, members)
	}
	return nil
}

// Leave 离开当前房间，返回离开的房间名
// 不在任何房间时为空操作
func (m *Manager) Leave(id ConnID) (string, bool) {
	c, ok := m.registry.lookup(id)
	if !ok {
		return "", false
	}

	c.mu.Lock()
	name := c.room
	notify := m.detach(c)
	c.mu.Unlock()

	if notify != nil {
		notify()
	}
	return name, name != ""
}

// BroadcastTargets 返回房间成员快照，房间不存在时返回空
func (m *Manager) BroadcastTargets(name string) []ConnID {
	r, ok := m.load(name)
	if !ok {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	return r.snapshotLocked()
}

// Members 获取房间人数
func (m *Manager) Members(name string) int {
	r, ok := m.load(name)
	if !ok {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return 0
	}
	return len(r.members)
}

// Sequence 获取房间最近分配的序号
func (m *Manager) Sequence(name string) (uint64, bool) {
	r, ok := m.load(name)
	if !ok {
		return 0, false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return 0, false
	}
	return r.seq, true
}

// RoomCount 获取房间数量
func (m *Manager) RoomCount() int {
	return int(m.roomCount.Load())
}

// attach 将连接加入房间，返回加入后的人数
// 命中已关闭的房间时重新获取
func (m *Manager) attach(id ConnID, name string) (int, error) {
	for {
		r := m.loadOrCreate(name)
		r.mu.Lock()
		if r.closed {
			r.mu.Unlock()
			continue
		}
		if m.maxRoomSize > 0 && len(r.members) >= m.maxRoomSize {
			r.mu.Unlock()
			return 0, ErrRoomFull
		}
		r.members[id] = struct{}{}
		n := len(r.members)
		r.mu.Unlock()
		return n, nil
	}
}

// full 目标房间是否已满，不存在的房间视为未满
func (m *Manager) full(name string) bool {
	if m.maxRoomSize <= 0 {
		return false
	}
	r, ok := m.load(name)
	if !ok {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return !r.closed && len(r.members) >= m.maxRoomSize
}

// detach 将连接移出当前房间，成员清空时销毁房间
// 调用方持有 c.mu
func (m *Manager) detach(c *Connection) func() {
	name := c.room
	if name == "" {
		return nil
	}
	c.room = ""

	r, ok := m.load(name)
	if !ok {
		return nil
	}

	r.mu.Lock()
	if _, member := r.members[c.ID]; !member {
		r.mu.Unlock()
		return nil
	}
	delete(r.members, c.ID)
	remaining := len(r.members)
	if remaining == 0 {
		r.closed = true
		if m.rooms.CompareAndDelete(name, r) {
			m.roomCount.Add(-1)
		}
	}
	r.mu.Unlock()

	observer := m.observer
	if observer == nil {
		return nil
	}
	id := c.ID
	return func() {
		observer.MemberLeft(name, id, remaining)
	}
}

// load 获取房间
func (m *Manager) load(name string) (*room, bool) {
	value, ok := m.rooms.Load(name)
	if !ok {
		return nil, false
	}
	r, ok := value.(*room)
	return r, ok
}

// loadOrCreate 获取或创建房间
func (m *Manager) loadOrCreate(name string) *room {
	if r, ok := m.load(name); ok {
		return r
	}
	value, loaded := m.rooms.LoadOrStore(name, newRoom(name))
	if !loaded {
		m.roomCount.Add(1)
	}
	return value.(*room)
}
