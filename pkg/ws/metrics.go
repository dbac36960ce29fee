package ws

import (
	"sync/atomic"
)

// Metrics 监控接口
type Metrics interface {
	// 连接指标
	IncrementConnections()
	DecrementConnections()

	// 消息指标
	IncrementMessageCount(event string)
	RecordMessageLatency(event string, micros int64)
	IncrementMessageErrors(event string)

	// 错误指标
	IncrementDroppedMessages()
	IncrementSlowConsumers()
	IncrementReadErrors()
	IncrementWriteErrors()
	IncrementInvalidMessages()
}

// NoopMetrics 空实现
type NoopMetrics struct{}

func (m *NoopMetrics) IncrementConnections()                      {}
func (m *NoopMetrics) DecrementConnections()                      {}
func (m *NoopMetrics) IncrementMessageCount(event string)         {}
func (m *NoopMetrics) RecordMessageLatency(event string, n int64) {}
func (m *NoopMetrics) IncrementMessageErrors(event string)        {}
func (m *NoopMetrics) IncrementDroppedMessages()                  {}
func (m *NoopMetrics) IncrementSlowConsumers()                    {}
func (m *NoopMetrics) IncrementReadErrors()                       {}
func (m *NoopMetrics) IncrementWriteErrors()                      {}
func (m *NoopMetrics) IncrementInvalidMessages()                  {}

// CounterMetrics 基于原子计数的默认实现，供 /stats 读取
type CounterMetrics struct {
	connections      atomic.Int64
	totalConnections atomic.Uint64
	messages         atomic.Uint64
	messageErrors    atomic.Uint64
	latencyMicros    atomic.Int64
	dropped          atomic.Uint64
	slowConsumers    atomic.Uint64
	readErrors       atomic.Uint64
	writeErrors      atomic.Uint64
	invalidMessages  atomic.Uint64
}

// MetricsSnapshot 计数快照
type MetricsSnapshot struct {
	Connections      int64   `json:"connections"`
	TotalConnections uint64  `json:"total_connections"`
	Messages         uint64  `json:"messages"`
	MessageErrors    uint64  `json:"message_errors"`
	AvgLatencyMicros float64 `json:"avg_latency_us"`
	Dropped          uint64  `json:"dropped"`
	SlowConsumers    uint64  `json:"slow_consumers"`
	ReadErrors       uint64  `json:"read_errors"`
	WriteErrors      uint64  `json:"write_errors"`
	InvalidMessages  uint64  `json:"invalid_messages"`
}

func (m *CounterMetrics) IncrementConnections() {
	m.connections.Add(1)
	m.totalConnections.Add(1)
}
func (m *CounterMetrics) DecrementConnections()              { m.connections.Add(-1) }
func (m *CounterMetrics) IncrementMessageCount(event string) { m.messages.Add(1) }
func (m *CounterMetrics) RecordMessageLatency(event string, micros int64) {
	m.latencyMicros.Add(micros)
}
func (m *CounterMetrics) IncrementMessageErrors(event string) { m.messageErrors.Add(1) }
func (m *CounterMetrics) IncrementDroppedMessages()           { m.dropped.Add(1) }
func (m *CounterMetrics) IncrementSlowConsumers()             { m.slowConsumers.Add(1) }
func (m *CounterMetrics) IncrementReadErrors()                { m.readErrors.Add(1) }
func (m *CounterMetrics) IncrementWriteErrors()               { m.writeErrors.Add(1) }
func (m *CounterMetrics) IncrementInvalidMessages()           { m.invalidMessages.Add(1) }

// Snapshot 读取计数快照
func (m *CounterMetrics) Snapshot() MetricsSnapshot {
	s := MetricsSnapshot{
		Connections:      m.connections.Load(),
		TotalConnections: m.totalConnections.Load(),
		Messages:         m.messages.Load(),
		MessageErrors:    m.messageErrors.Load(),
		Dropped:          m.dropped.Load(),
		SlowConsumers:    m.slowConsumers.Load(),
		ReadErrors:       m.readErrors.Load(),
		WriteErrors:      m.writeErrors.Load(),
		InvalidMessages:  m.invalidMessages.Load(),
	}
	if s.Messages > 0 {
		s.AvgLatencyMicros = float64(m.latencyMicros.Load()) / float64(s.Messages)
	}
	return s
}
