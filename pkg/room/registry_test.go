package room

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterIssuesUniqueIDs(t *testing.T) {
	reg := NewRegistry(0)

	seen := make(map[ConnID]bool)
	for i := 0; i < 100; i++ {
		id, err := reg.Register()
		require.NoError(t, err)
		require.NotEmpty(t, id)
		assert.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
	assert.Equal(t, 100, reg.Count())
}

func TestRegisterCapacityExceeded(t *testing.T) {
	reg := NewRegistry(2)

	a, err := reg.Register()
	require.NoError(t, err)
	_, err = reg.Register()
	require.NoError(t, err)

	id, err := reg.Register()
	assert.ErrorIs(t, err, ErrCapacityExceeded)
	assert.Empty(t, id)
	assert.Equal(t, KindCapacityExceeded, KindOf(err))
	assert.Equal(t, 2, reg.Count())

	// 释放名额后可以再次注册
	reg.Unregister(a)
	_, err = reg.Register()
	assert.NoError(t, err)
}

func TestRegisterCapacityConcurrent(t *testing.T) {
	const limit = 50
	reg := NewRegistry(limit)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
		rejected int
	)
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := reg.Register()
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				rejected++
				return
			}
			accepted++
		}()
	}
	wg.Wait()

	assert.Equal(t, limit, accepted)
	assert.Equal(t, 150, rejected)
	assert.Equal(t, limit, reg.Count())
}

func TestUnregisterIdempotent(t *testing.T) {
	reg := NewRegistry(0)
	m := NewManager(reg)

	id, err := reg.Register()
	require.NoError(t, err)
	require.NoError(t, m.Join(id, "alpha"))
	assert.True(t, reg.IsAlive(id))

	reg.Unregister(id)
	reg.Unregister(id)

	assert.False(t, reg.IsAlive(id))
	assert.Equal(t, 0, reg.Count())
	assert.Equal(t, 0, m.RoomCount())
	_, ok := reg.RoomOf(id)
	assert.False(t, ok)
}

func TestIsAliveUnknown(t *testing.T) {
	reg := NewRegistry(0)
	assert.False(t, reg.IsAlive("nope"))
	reg.Unregister("nope")
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "CONNECTED", StateConnected.String())
	assert.Equal(t, "DISCONNECTED", StateDisconnected.String())
	assert.Equal(t, "UNKNOWN", State(0).String())
}
