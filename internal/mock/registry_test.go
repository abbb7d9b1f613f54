package mock

import (
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/marionette/internal/protocol"
)

func TestSetGetRoundTrip(t *testing.T) {
	r := NewRegistry()

	cfg := protocol.MockConfig{
		Command:     "foo",
		ReturnValue: json.RawMessage(`42`),
	}
	r.Set("foo", cfg)

	got, ok := r.Get("foo")
	require.True(t, ok)
	assert.Equal(t, cfg, got)

	_, ok = r.Get("bar")
	assert.False(t, ok)
}

func TestSetOverwrites(t *testing.T) {
	r := NewRegistry()

	r.Set("foo", protocol.MockConfig{Command: "foo", ReturnValue: json.RawMessage(`1`)})
	r.Set("foo", protocol.MockConfig{Command: "foo", ReturnValue: json.RawMessage(`2`)})

	got, ok := r.Get("foo")
	require.True(t, ok)
	assert.Equal(t, json.RawMessage(`2`), got.ReturnValue)
	assert.Equal(t, 1, r.Len())
}

func TestGetReturnsCopy(t *testing.T) {
	r := NewRegistry()
	r.Set("foo", protocol.MockConfig{Command: "foo", ReturnValue: json.RawMessage(`"abc"`)})

	got, ok := r.Get("foo")
	require.True(t, ok)

	// Mutating the returned value must not leak into the registry.
	got.ReturnValue[1] = 'x'
	got.Command = "mutated"

	again, ok := r.Get("foo")
	require.True(t, ok)
	assert.Equal(t, json.RawMessage(`"abc"`), again.ReturnValue)
	assert.Equal(t, "foo", again.Command)
}

func TestClearRemovesAllMocks(t *testing.T) {
	r := NewRegistry()
	for i := 0; i < 5; i++ {
		name := fmt.Sprintf("cmd-%d", i)
		r.Set(name, protocol.MockConfig{Command: name})
	}
	require.Equal(t, 5, r.Len())

	r.Clear()

	assert.Equal(t, 0, r.Len())
	for i := 0; i < 5; i++ {
		_, ok := r.Get(fmt.Sprintf("cmd-%d", i))
		assert.False(t, ok)
	}
}

func TestResetSupersetOfClear(t *testing.T) {
	r := NewRegistry()
	r.Set("foo", protocol.MockConfig{Command: "foo"})
	r.originalHandlers["foo"] = struct{}{}

	r.Reset()

	assert.Equal(t, 0, r.Len())
	assert.Empty(t, r.originalHandlers)
}

func TestRestoreBehavesLikeReset(t *testing.T) {
	r := NewRegistry()
	r.Set("foo", protocol.MockConfig{Command: "foo"})
	r.originalHandlers["foo"] = struct{}{}

	r.Restore()

	assert.Equal(t, 0, r.Len())
	assert.Empty(t, r.originalHandlers)
}

func TestRemove(t *testing.T) {
	r := NewRegistry()
	r.Set("foo", protocol.MockConfig{Command: "foo"})

	cfg, ok := r.Remove("foo")
	require.True(t, ok)
	assert.Equal(t, "foo", cfg.Command)

	_, ok = r.Remove("foo")
	assert.False(t, ok)
}

func TestAllReturnsCopies(t *testing.T) {
	r := NewRegistry()
	r.Set("a", protocol.MockConfig{Command: "a", ReturnValue: json.RawMessage(`1`)})
	r.Set("b", protocol.MockConfig{Command: "b", Implementation: "() => 2"})

	all := r.All()
	require.Len(t, all, 2)

	all["a"] = protocol.MockConfig{Command: "poisoned"}
	got, ok := r.Get("a")
	require.True(t, ok)
	assert.Equal(t, "a", got.Command)
}

func TestConcurrentMutation(t *testing.T) {
	r := NewRegistry()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			name := fmt.Sprintf("cmd-%d", n%4)
			for j := 0; j < 100; j++ {
				r.Set(name, protocol.MockConfig{Command: name, ReturnValue: json.RawMessage(`true`)})
				if cfg, ok := r.Get(name); ok {
					// Reads must observe fully-applied mutations.
					assert.Equal(t, name, cfg.Command)
				}
				if j%10 == 0 {
					r.Clear()
				}
			}
		}(i)
	}
	wg.Wait()
}
