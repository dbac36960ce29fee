package room

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/tokmz/syncboard/pkg/errors"
)

// ConnID 连接标识，连接建立时签发，不可猜测且不会复用
type ConnID string

// String 实现 fmt.Stringer
func (id ConnID) String() string {
	return string(id)
}

// State 连接存活状态
type State int32

const (
	// StateConnected 已连接
	StateConnected State = iota + 1
	// StateDisconnected 已断开
	StateDisconnected
)

// String 返回状态名称
func (s State) String() string {
	switch s {
	case StateConnected:
		return "CONNECTED"
	case StateDisconnected:
		return "DISCONNECTED"
	default:
		return "UNKNOWN"
	}
}

// Connection 连接记录，由 Registry 独占持有
type Connection struct {
	ID ConnID

	state atomic.Int32

	// mu 串行化同一连接的 join/leave/unregister
	mu   sync.Mutex
	room string // 当前房间（非拥有引用），空表示不在任何房间
}

// State 获取当前状态
func (c *Connection) State() State {
	return State(c.state.Load())
}

func (c *Connection) alive() bool {
	return c.State() == StateConnected
}

// detacher 由 Manager 实现，注销时将连接移出房间
// 调用方持有 c.mu；返回的函数在释放锁后调用（可为 nil）
type detacher interface {
	detach(c *Connection) func()
}

// Registry 连接注册表
type Registry struct {
	conns    sync.Map     // ConnID -> *Connection
	count    atomic.Int64 // 存活连接数
	maxConns int          // 最大连接数，<= 0 表示不限制
	rooms    detacher
}

// NewRegistry 创建连接注册表
func NewRegistry(maxConns int) *Registry {
	return &Registry{maxConns: maxConns}
}

// Register 签发新的连接标识
// 达到连接上限时返回 ErrCapacityExceeded，此时不会签发任何 ID
func (r *Registry) Register() (ConnID, error) {
	// 先占用名额，超限回滚
	n := r.count.Add(1)
	if r.maxConns > 0 && int(n) > r.maxConns {
		r.count.Add(-1)
		return "", ErrCapacityExceeded
	}

	uid, err := uuid.NewRandom()
	if err != nil {
		r.count.Add(-1)
		return "", errors.ErrServer.WithError(err)
	}

	c := &Connection{ID: ConnID(uid.String())}
	c.state.Store(int32(StateConnected))

	if _, loaded := r.conns.LoadOrStore(c.ID, c); loaded {
		r.count.Add(-1)
		return "", errors.ErrServer.WithMessage("connection id collision")
	}
	return c.ID, nil
}

// Unregister 标记连接断开并将其移出所在房间，重复调用无副作用
func (r *Registry) Unregister(id ConnID) {
	c, ok := r.lookup(id)
	if !ok {
		return
	}

	c.mu.Lock()
	if !c.alive() {
		c.mu.Unlock()
		return
	}
	c.state.Store(int32(StateDisconnected))
	var notify func()
	if r.rooms != nil {
		notify = r.rooms.detach(c)
	}
	c.mu.Unlock()

	if r.conns.CompareAndDelete(id, c) {
		r.count.Add(-1)
	}
	if notify != nil {
		notify()
	}
}

// IsAlive 查询连接是否存活
func (r *Registry) IsAlive(id ConnID) bool {
	c, ok := r.lookup(id)
	return ok && c.alive()
}

// RoomOf 查询连接当前所在房间
func (r *Registry) RoomOf(id ConnID) (string, bool) {
	c, ok := r.lookup(id)
	if !ok {
		return "", false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.room, c.room != ""
}

// Count 获取存活连接数
func (r *Registry) Count() int {
	return int(r.count.Load())
}

// lookup 获取连接记录
func (r *Registry) lookup(id ConnID) (*Connection, bool) {
	value, ok := r.conns.Load(id)
	if !ok {
		return nil, false
	}
	c, ok := value.(*Connection)
	return c, ok
}
