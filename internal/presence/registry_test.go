package presence

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaot623/gogo/messenger/internal/protocol"
)

type stubHandle struct{ id string }

func (s stubHandle) ID() string                { return s.id }
func (s stubHandle) Send(protocol.Frame) error { return nil }
func (s stubHandle) Close() error              { return nil }

func TestRegisterLookupUnregister(t *testing.T) {
	r := NewRegistry()

	_, ok := r.Lookup("u1")
	assert.False(t, ok)

	assert.Nil(t, r.Register("u1", stubHandle{"c1"}))
	h, ok := r.Lookup("u1")
	require.True(t, ok)
	assert.Equal(t, "c1", h.ID())
	assert.True(t, r.IsOnline("u1"))

	assert.True(t, r.Unregister("u1"))
	assert.False(t, r.Unregister("u1"))
	assert.False(t, r.IsOnline("u1"))
}

func TestRegisterLastConnectionWins(t *testing.T) {
	r := NewRegistry()
	r.Register("u1", stubHandle{"c1"})

	prev := r.Register("u1", stubHandle{"c2"})
	require.NotNil(t, prev)
	assert.Equal(t, "c1", prev.ID())

	h, _ := r.Lookup("u1")
	assert.Equal(t, "c2", h.ID())
	assert.Equal(t, 1, r.Count())
}

func TestUnregisterHandleIgnoresStaleSession(t *testing.T) {
	r := NewRegistry()
	r.Register("u1", stubHandle{"c1"})
	r.Register("u1", stubHandle{"c2"})

	assert.False(t, r.UnregisterHandle("u1", "c1"))
	assert.True(t, r.IsOnline("u1"))

	assert.True(t, r.UnregisterHandle("u1", "c2"))
	assert.False(t, r.IsOnline("u1"))
}

func TestOnlineUserIDsSnapshot(t *testing.T) {
	r := NewRegistry()
	r.Register("u3", stubHandle{"c3"})
	r.Register("u1", stubHandle{"c1"})
	r.Register("u2", stubHandle{"c2"})

	ids := r.OnlineUserIDs()
	assert.Equal(t, []string{"u1", "u2", "u3"}, ids)

	r.Unregister("u2")
	assert.Equal(t, []string{"u1", "u2", "u3"}, ids)
	assert.Len(t, r.Handles(), 2)
}

func TestRegistryConcurrentAccess(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			userID := fmt.Sprintf("u%d", i)
			handleID := fmt.Sprintf("c%d", i)
			r.Register(userID, stubHandle{handleID})
			r.Lookup(userID)
			r.OnlineUserIDs()
			if i%2 == 0 {
				r.UnregisterHandle(userID, handleID)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 25, r.Count())
}
