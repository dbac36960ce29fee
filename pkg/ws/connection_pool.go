package ws

import (
	"sync"
	"sync/atomic"

	"github.com/tokmz/syncboard/pkg/room"
)

// ConnectionPool 连接池，按连接 ID 索引客户端
// 连接数上限由 room.Registry 在握手前控制
type ConnectionPool struct {
	clients sync.Map     // room.ConnID -> *Client
	count   atomic.Int64 // 连接数
}

// NewConnectionPool 创建连接池
func NewConnectionPool() *ConnectionPool {
	return &ConnectionPool{}
}

// Add 添加客户端
func (p *ConnectionPool) Add(client *Client) error {
	if _, loaded := p.clients.LoadOrStore(client.ID, client); loaded {
		return ErrClientIDExists
	}
	p.count.Add(1)
	return nil
}

// Remove 移除客户端
func (p *ConnectionPool) Remove(client *Client) {
	if p.clients.CompareAndDelete(client.ID, client) {
		p.count.Add(-1)
	}
}

// Get 获取客户端
func (p *ConnectionPool) Get(id room.ConnID) (*Client, bool) {
	value, ok := p.clients.Load(id)
	if !ok {
		return nil, false
	}
	client, ok := value.(*Client)
	if !ok {
		return nil, false
	}
	return client, true
}

// Count 获取连接数
func (p *ConnectionPool) Count() int {
	return int(p.count.Load())
}

// Range 遍历所有客户端
func (p *ConnectionPool) Range(f func(*Client) bool) {
	p.clients.Range(func(key, value any) bool {
		client, ok := value.(*Client)
		if !ok {
			return true
		}
		return f(client)
	})
}
