package room

import (
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingObserver 记录成员变更事件
type recordingObserver struct {
	mu     sync.Mutex
	events []string
}

func (o *recordingObserver) MemberJoined(room string, id ConnID, members int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, "join:"+room)
}

func (o *recordingObserver) MemberLeft(room string, id ConnID, members int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, "leave:"+room)
}

func (o *recordingObserver) snapshot() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.events...)
}

func newCore(t *testing.T, opts ...ManagerOption) (*Registry, *Manager, *Sequencer) {
	t.Helper()
	reg := NewRegistry(0)
	m := NewManager(reg, opts...)
	return reg, m, NewSequencer(m)
}

func mustRegister(t *testing.T, reg *Registry) ConnID {
	t.Helper()
	id, err := reg.Register()
	require.NoError(t, err)
	return id
}

func TestJoinCreatesRoom(t *testing.T) {
	reg, m, _ := newCore(t)
	id := mustRegister(t, reg)

	require.NoError(t, m.Join(id, "alpha"))

	assert.Equal(t, 1, m.RoomCount())
	assert.Equal(t, []ConnID{id}, m.BroadcastTargets("alpha"))
	room, ok := reg.RoomOf(id)
	assert.True(t, ok)
	assert.Equal(t, "alpha", room)
}

func TestJoinSwitchesRoom(t *testing.T) {
	reg, m, _ := newCore(t)
	id := mustRegister(t, reg)

	require.NoError(t, m.Join(id, "A"))
	require.NoError(t, m.Join(id, "B"))

	assert.Empty(t, m.BroadcastTargets("A"))
	assert.Equal(t, []ConnID{id}, m.BroadcastTargets("B"))
	assert.Equal(t, 1, m.RoomCount(), "room A should be removed once empty")
	room, _ := reg.RoomOf(id)
	assert.Equal(t, "B", room)
}

func TestJoinIdempotentByDefault(t *testing.T) {
	reg, m, _ := newCore(t)
	id := mustRegister(t, reg)

	require.NoError(t, m.Join(id, "alpha"))
	require.NoError(t, m.Join(id, "alpha"))
	assert.Equal(t, 1, m.Members("alpha"))
}

func TestJoinStrictRejectsRedundant(t *testing.T) {
	reg, m, _ := newCore(t, WithStrictJoin(true))
	id := mustRegister(t, reg)

	require.NoError(t, m.Join(id, "alpha"))
	err := m.Join(id, "alpha")
	assert.ErrorIs(t, err, ErrAlreadyMember)
	assert.Equal(t, KindAlreadyMember, KindOf(err))
	assert.Equal(t, 1, m.Members("alpha"))
}

func TestJoinValidation(t *testing.T) {
	reg, m, _ := newCore(t)
	id := mustRegister(t, reg)

	err := m.Join(id, "")
	assert.Equal(t, KindInvalidPayload, KindOf(err))

	err = m.Join("ghost", "alpha")
	assert.ErrorIs(t, err, ErrNotConnected)

	reg.Unregister(id)
	err = m.Join(id, "alpha")
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.Equal(t, 0, m.RoomCount())
}

func TestJoinRoomFull(t *testing.T) {
	reg, m, _ := newCore(t, WithMaxRoomSize(1))
	a := mustRegister(t, reg)
	b := mustRegister(t, reg)

	require.NoError(t, m.Join(a, "alpha"))
	err := m.Join(b, "alpha")
	assert.ErrorIs(t, err, ErrRoomFull)
	_, ok := reg.RoomOf(b)
	assert.False(t, ok)
}

func TestSwitchToFullRoomKeepsCurrentRoom(t *testing.T) {
	obs := &recordingObserver{}
	reg, m, _ := newCore(t, WithMaxRoomSize(1), WithObserver(obs))
	a := mustRegister(t, reg)
	b := mustRegister(t, reg)

	require.NoError(t, m.Join(a, "alpha"))
	require.NoError(t, m.Join(b, "beta"))

	err := m.Join(b, "alpha")
	assert.ErrorIs(t, err, ErrRoomFull)

	name, ok := reg.RoomOf(b)
	require.True(t, ok)
	assert.Equal(t, "beta", name)
	assert.Equal(t, []ConnID{b}, m.BroadcastTargets("beta"))
	assert.Equal(t, 2, m.RoomCount())
	assert.Equal(t, []string{"join:alpha", "join:beta"}, obs.snapshot())
}

func TestLeave(t *testing.T) {
	reg, m, _ := newCore(t)
	a := mustRegister(t, reg)
	b := mustRegister(t, reg)

	require.NoError(t, m.Join(a, "alpha"))
	require.NoError(t, m.Join(b, "alpha"))

	name, left := m.Leave(a)
	assert.True(t, left)
	assert.Equal(t, "alpha", name)
	assert.Equal(t, []ConnID{b}, m.BroadcastTargets("alpha"))

	// 不在房间时为空操作
	name, left = m.Leave(a)
	assert.False(t, left)
	assert.Empty(t, name)

	_, left = m.Leave(b)
	assert.True(t, left)
	assert.Equal(t, 0, m.RoomCount())
	assert.Nil(t, m.BroadcastTargets("alpha"))
}

func TestRoomRecreatedRestartsSequence(t *testing.T) {
	reg, m, seq := newCore(t)
	id := mustRegister(t, reg)

	require.NoError(t, m.Join(id, "alpha"))
	for i := 0; i < 3; i++ {
		_, err := seq.Submit("alpha", id, []byte(`"x"`), nil)
		require.NoError(t, err)
	}
	last, ok := m.Sequence("alpha")
	require.True(t, ok)
	assert.Equal(t, uint64(3), last)

	m.Leave(id)
	_, ok = m.Sequence("alpha")
	assert.False(t, ok)

	require.NoError(t, m.Join(id, "alpha"))
	u, err := seq.Submit("alpha", id, []byte(`"y"`), nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), u.Seq)
}

func TestObserverEvents(t *testing.T) {
	obs := &recordingObserver{}
	reg, m, _ := newCore(t, WithObserver(obs))
	id := mustRegister(t, reg)

	require.NoError(t, m.Join(id, "A"))
	require.NoError(t, m.Join(id, "B"))
	m.Leave(id)
	require.NoError(t, m.Join(id, "C"))
	reg.Unregister(id)

	assert.Equal(t, []string{
		"join:A",
		"leave:A", "join:B",
		"leave:B",
		"join:C",
		"leave:C",
	}, obs.snapshot())
}

func TestConcurrentJoinLeaveSingleRoomInvariant(t *testing.T) {
	reg, m, _ := newCore(t)
	rooms := []string{"r0", "r1", "r2", "r3"}

	ids := make([]ConnID, 32)
	for i := range ids {
		ids[i] = mustRegister(t, reg)
	}

	var wg sync.WaitGroup
	for i, id := range ids {
		wg.Add(1)
		go func(i int, id ConnID) {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				if j%7 == 0 {
					m.Leave(id)
					continue
				}
				_ = m.Join(id, rooms[(i+j)%len(rooms)])
			}
		}(i, id)
	}
	wg.Wait()

	// 每个连接最多出现在一个房间中，且与连接记录一致
	seen := make(map[ConnID]string)
	for _, name := range rooms {
		for _, id := range m.BroadcastTargets(name) {
			prev, dup := seen[id]
			require.False(t, dup, "connection %s in both %s and %s", id, prev, name)
			seen[id] = name
		}
	}
	for _, id := range ids {
		room, ok := reg.RoomOf(id)
		if !ok {
			assert.NotContains(t, seen, id)
			continue
		}
		assert.Equal(t, room, seen[id])
	}

	// 清空后所有房间被移除
	for _, id := range ids {
		reg.Unregister(id)
	}
	assert.Equal(t, 0, m.RoomCount())
	for _, name := range rooms {
		assert.Empty(t, m.BroadcastTargets(name))
	}
}

func TestBroadcastTargetsSnapshot(t *testing.T) {
	reg, m, _ := newCore(t)
	ids := []ConnID{mustRegister(t, reg), mustRegister(t, reg), mustRegister(t, reg)}
	for _, id := range ids {
		require.NoError(t, m.Join(id, "alpha"))
	}

	targets := m.BroadcastTargets("alpha")
	sort.Slice(targets, func(i, j int) bool { return targets[i] < targets[j] })
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	assert.Equal(t, ids, targets)

	// 修改快照不影响房间
	targets[0] = "mutated"
	assert.NotContains(t, m.BroadcastTargets("alpha"), ConnID("mutated"))
}
