package room

import (
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// inbox 按连接收集扇出结果
type inbox struct {
	mu   sync.Mutex
	recv map[ConnID][]*Update
}

func newInbox() *inbox {
	return &inbox{recv: make(map[ConnID][]*Update)}
}

func (b *inbox) fanout(u *Update, targets []ConnID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, id := range targets {
		b.recv[id] = append(b.recv[id], u)
	}
}

func (b *inbox) of(id ConnID) []*Update {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*Update(nil), b.recv[id]...)
}

func TestSubmitBasicScenario(t *testing.T) {
	reg, m, seq := newCore(t)
	a := mustRegister(t, reg)
	b := mustRegister(t, reg)
	require.NoError(t, m.Join(a, "alpha"))
	require.NoError(t, m.Join(b, "alpha"))

	box := newInbox()
	u1, err := seq.Submit("alpha", a, json.RawMessage(`"hello"`), box.fanout)
	require.NoError(t, err)
	u2, err := seq.Submit("alpha", b, json.RawMessage(`"world"`), box.fanout)
	require.NoError(t, err)

	assert.Equal(t, uint64(1), u1.Seq)
	assert.Equal(t, uint64(2), u2.Seq)
	assert.Equal(t, a, u1.Origin)
	assert.Equal(t, "alpha", u1.Room)

	// 发送方也会收到自己的更新
	for _, id := range []ConnID{a, b} {
		got := box.of(id)
		require.Len(t, got, 2)
		assert.Equal(t, uint64(1), got[0].Seq)
		assert.JSONEq(t, `"hello"`, string(got[0].Payload))
		assert.Equal(t, uint64(2), got[1].Seq)
		assert.JSONEq(t, `"world"`, string(got[1].Payload))
	}
}

func TestSubmitRequiresMembership(t *testing.T) {
	reg, m, seq := newCore(t)
	a := mustRegister(t, reg)
	b := mustRegister(t, reg)
	require.NoError(t, m.Join(a, "alpha"))

	called := false
	fanout := func(*Update, []ConnID) { called = true }

	_, err := seq.Submit("alpha", b, json.RawMessage(`1`), fanout)
	assert.ErrorIs(t, err, ErrRoomNotFound)

	_, err = seq.Submit("beta", a, json.RawMessage(`1`), fanout)
	assert.ErrorIs(t, err, ErrRoomNotFound)
	assert.Equal(t, KindRoomNotFound, KindOf(err))

	assert.False(t, called)
	last, _ := m.Sequence("alpha")
	assert.Equal(t, uint64(0), last, "rejected submits must not consume a sequence number")
}

func TestSubmitAfterUnregister(t *testing.T) {
	reg, m, seq := newCore(t)
	a := mustRegister(t, reg)
	b := mustRegister(t, reg)
	require.NoError(t, m.Join(a, "alpha"))
	require.NoError(t, m.Join(b, "alpha"))

	reg.Unregister(a)

	_, err := seq.Submit("alpha", a, json.RawMessage(`1`), nil)
	assert.ErrorIs(t, err, ErrRoomNotFound)

	box := newInbox()
	u, err := seq.Submit("alpha", b, json.RawMessage(`2`), box.fanout)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), u.Seq)
	assert.Empty(t, box.of(a))
	assert.Len(t, box.of(b), 1)
}

func TestSubmitCopiesPayload(t *testing.T) {
	reg, m, seq := newCore(t)
	a := mustRegister(t, reg)
	require.NoError(t, m.Join(a, "alpha"))

	payload := json.RawMessage(`"abc"`)
	u, err := seq.Submit("alpha", a, payload, nil)
	require.NoError(t, err)

	payload[1] = 'z'
	assert.Equal(t, `"abc"`, string(u.Payload))
}

func TestSubmitConcurrentGaplessAndOrdered(t *testing.T) {
	reg, m, seq := newCore(t)

	const (
		writers   = 8
		perWriter = 250
	)
	ids := make([]ConnID, writers)
	for i := range ids {
		ids[i] = mustRegister(t, reg)
		require.NoError(t, m.Join(ids[i], "alpha"))
	}

	box := newInbox()
	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id ConnID) {
			defer wg.Done()
			for j := 0; j < perWriter; j++ {
				_, err := seq.Submit("alpha", id, json.RawMessage(fmt.Sprintf(`%d`, j)), box.fanout)
				assert.NoError(t, err)
			}
		}(id)
	}
	wg.Wait()

	total := writers * perWriter
	for _, id := range ids {
		got := box.of(id)
		require.Len(t, got, total)
		for i, u := range got {
			require.Equal(t, uint64(i+1), u.Seq, "member %s observed out-of-order delivery", id)
		}
	}
	last, ok := m.Sequence("alpha")
	require.True(t, ok)
	assert.Equal(t, uint64(total), last)
}

func TestSubmitRoomsAreIndependent(t *testing.T) {
	reg, m, seq := newCore(t)

	const (
		rooms   = 100
		updates = 50
	)
	type member struct {
		id   ConnID
		room string
	}
	members := make([]member, rooms)
	for i := range members {
		members[i] = member{id: mustRegister(t, reg), room: fmt.Sprintf("room-%d", i)}
		require.NoError(t, m.Join(members[i].id, members[i].room))
	}

	box := newInbox()
	var wg sync.WaitGroup
	for _, mb := range members {
		wg.Add(1)
		go func(mb member) {
			defer wg.Done()
			for j := 0; j < updates; j++ {
				_, err := seq.Submit(mb.room, mb.id, json.RawMessage(`{}`), box.fanout)
				assert.NoError(t, err)
			}
		}(mb)
	}
	wg.Wait()

	for _, mb := range members {
		got := box.of(mb.id)
		require.Len(t, got, updates)
		for i, u := range got {
			assert.Equal(t, mb.room, u.Room)
			assert.Equal(t, uint64(i+1), u.Seq)
		}
	}
}

func TestSubmitWithConcurrentChurn(t *testing.T) {
	reg, m, seq := newCore(t)
	writer := mustRegister(t, reg)
	require.NoError(t, m.Join(writer, "alpha"))

	box := newInbox()
	done := make(chan struct{})

	// 旁观者不断进出房间，写入方始终在房间内
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
				}
				id, err := reg.Register()
				if err != nil {
					continue
				}
				_ = m.Join(id, "alpha")
				reg.Unregister(id)
			}
		}()
	}

	for j := 0; j < 500; j++ {
		_, err := seq.Submit("alpha", writer, json.RawMessage(`1`), box.fanout)
		require.NoError(t, err)
	}
	close(done)
	wg.Wait()

	got := box.of(writer)
	require.Len(t, got, 500)
	for i, u := range got {
		assert.Equal(t, uint64(i+1), u.Seq)
	}
	assert.Equal(t, []ConnID{writer}, m.BroadcastTargets("alpha"))
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, Kind(""), KindOf(nil))
	assert.Equal(t, KindRoomFull, KindOf(ErrRoomFull))
	assert.Equal(t, KindInvalidPayload, KindOf(ErrInvalidPayload.WithMessage("payload too large")))
	assert.Equal(t, KindShuttingDown, KindOf(fmt.Errorf("wrap: %w", ErrShuttingDown)))
	assert.Equal(t, KindInternal, KindOf(fmt.Errorf("boom")))
}
