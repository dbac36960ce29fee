package relay

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/tokmz/syncboard/pkg/room"
)

// memoryPublisher 记录发布顺序
type memoryPublisher struct {
	mu     sync.Mutex
	got    []*room.Update
	block  chan struct{}
	fail   error
	closed bool
}

func (p *memoryPublisher) Publish(ctx context.Context, u *room.Update) error {
	if p.block != nil {
		<-p.block
	}
	if p.fail != nil {
		return p.fail
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.got = append(p.got, u)
	return nil
}

func (p *memoryPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *memoryPublisher) seqs() []uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]uint64, 0, len(p.got))
	for _, u := range p.got {
		out = append(out, u.Seq)
	}
	return out
}

func update(seq uint64) *room.Update {
	return &room.Update{Room: "alpha", Seq: seq, Payload: []byte(`{}`), Origin: "c1"}
}

func TestAsyncPreservesOrder(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	pub := &memoryPublisher{}
	a := NewAsync(pub, WithQueueSize(64))

	for i := uint64(1); i <= 50; i++ {
		require.NoError(t, a.Publish(context.Background(), update(i)))
	}
	require.NoError(t, a.Shutdown(context.Background()))

	want := make([]uint64, 50)
	for i := range want {
		want[i] = uint64(i + 1)
	}
	assert.Equal(t, want, pub.seqs())
	assert.True(t, pub.closed)

	stats := a.Stats()
	assert.Equal(t, uint64(50), stats.Published)
	assert.Zero(t, stats.Dropped)
}

func TestAsyncDropsWhenFull(t *testing.T) {
	pub := &memoryPublisher{block: make(chan struct{})}
	a := NewAsync(pub, WithQueueSize(2))

	// worker 阻塞在第一条上，队列最多再容纳两条
	var dropped int
	for i := uint64(1); i <= 10; i++ {
		if err := a.Publish(context.Background(), update(i)); err != nil {
			assert.ErrorIs(t, err, ErrQueueFull)
			dropped++
		}
	}
	assert.GreaterOrEqual(t, dropped, 7)
	assert.Equal(t, uint64(dropped), a.Stats().Dropped)

	close(pub.block)
	require.NoError(t, a.Shutdown(context.Background()))
	assert.Len(t, pub.seqs(), 10-dropped)
}

func TestAsyncCountsFailures(t *testing.T) {
	pub := &memoryPublisher{fail: errors.New("broker down")}
	a := NewAsync(pub)

	require.NoError(t, a.Publish(context.Background(), update(1)))
	require.NoError(t, a.Shutdown(context.Background()))

	assert.Equal(t, uint64(1), a.Stats().Failed)
	assert.Zero(t, a.Stats().Published)
}

func TestAsyncRejectsAfterShutdown(t *testing.T) {
	a := NewAsync(NewNoop())
	require.NoError(t, a.Shutdown(context.Background()))
	require.NoError(t, a.Shutdown(context.Background()))

	err := a.Publish(context.Background(), update(1))
	assert.ErrorIs(t, err, ErrClosed)
}

func TestAsyncShutdownTimeout(t *testing.T) {
	pub := &memoryPublisher{block: make(chan struct{})}
	defer close(pub.block)
	a := NewAsync(pub)
	require.NoError(t, a.Publish(context.Background(), update(1)))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, a.Shutdown(ctx), context.DeadlineExceeded)
}
