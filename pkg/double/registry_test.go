package double

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustDouble(t *testing.T, pattern string) *Double {
	t.Helper()
	d, err := NewDouble(pattern, 200, nil, []byte("ok"))
	require.NoError(t, err)
	return d
}

func TestRegistry_FindForEndpoint(t *testing.T) {
	r := NewRegistry()
	d := mustDouble(t, "/test")
	r.Register(d, 1234)

	t.Run("matching endpoint is found", func(t *testing.T) {
		got, ok := r.FindForEndpoint("/test", 1234)
		require.True(t, ok)
		assert.Equal(t, d.ID(), got.ID())
	})

	t.Run("non-matching endpoint is not found", func(t *testing.T) {
		got, ok := r.FindForEndpoint("/foo", 1234)
		assert.False(t, ok)
		assert.Nil(t, got)
	})

	t.Run("unknown port is not found", func(t *testing.T) {
		_, ok := r.FindForEndpoint("/test", 4567)
		assert.False(t, ok)
	})
}

func TestRegistry_LastRegistrationWins(t *testing.T) {
	r := NewRegistry()
	first := mustDouble(t, "/test")
	second := mustDouble(t, "/test")
	r.Register(first, 1234)
	r.Register(second, 1234)

	got, ok := r.FindForEndpoint("/test", 1234)
	require.True(t, ok)
	assert.Equal(t, second.ID(), got.ID())
}

func TestRegistry_FindAllForEndpoint(t *testing.T) {
	r := NewRegistry()
	a := mustDouble(t, "/test")
	b := mustDouble(t, "/.*")
	r.Register(a, 1234)
	r.Register(b, 1234)

	t.Run("returns matches in registration order", func(t *testing.T) {
		got := r.FindAllForEndpoint("/test", 1234)
		require.Len(t, got, 2)
		assert.Equal(t, a.ID(), got[0].ID())
		assert.Equal(t, b.ID(), got[1].ID())
	})

	t.Run("skips non-matching entries", func(t *testing.T) {
		got := r.FindAllForEndpoint("/other", 1234)
		require.Len(t, got, 1)
		assert.Equal(t, b.ID(), got[0].ID())
	})

	t.Run("no matches yields empty, not nil", func(t *testing.T) {
		got := r.FindAllForEndpoint("/test", 9999)
		assert.NotNil(t, got)
		assert.Empty(t, got)
	})
}

func TestRegistry_Unregister(t *testing.T) {
	t.Run("removes every entry with the id", func(t *testing.T) {
		r := NewRegistry()
		d := mustDouble(t, "/test")
		other := mustDouble(t, "/other")
		r.Register(d, 1234)
		r.Register(other, 1234)
		r.Register(d, 1234) // same entry registered twice

		r.Unregister(d.ID(), 1234)

		assert.Equal(t, 1, r.Len(1234))
		_, ok := r.FindForEndpoint("/test", 1234)
		assert.False(t, ok)
		_, ok = r.FindForEndpoint("/other", 1234)
		assert.True(t, ok)
	})

	t.Run("unknown id is a no-op", func(t *testing.T) {
		r := NewRegistry()
		r.Register(mustDouble(t, "/test"), 1234)

		r.Unregister("nope", 1234)

		assert.Equal(t, 1, r.Len(1234))
	})

	t.Run("unknown port is a no-op", func(t *testing.T) {
		r := NewRegistry()
		r.Unregister("anything", 4567)
		assert.Equal(t, 0, r.Len(4567))
	})

	t.Run("only touches the given port", func(t *testing.T) {
		r := NewRegistry()
		d := mustDouble(t, "/test")
		r.Register(d, 1234)
		r.Register(d, 4567)

		r.Unregister(d.ID(), 1234)

		assert.Equal(t, 0, r.Len(1234))
		assert.Equal(t, 1, r.Len(4567))
	})

	t.Run("preserves order of remaining entries", func(t *testing.T) {
		r := NewRegistry()
		a := mustDouble(t, "/.*")
		b := mustDouble(t, "/.*")
		c := mustDouble(t, "/.*")
		r.Register(a, 1234)
		r.Register(b, 1234)
		r.Register(c, 1234)

		r.Unregister(b.ID(), 1234)

		got := r.FindAllForEndpoint("/x", 1234)
		require.Len(t, got, 2)
		assert.Equal(t, a.ID(), got[0].ID())
		assert.Equal(t, c.ID(), got[1].ID())
	})
}

func TestRegistry_Reset(t *testing.T) {
	r := NewRegistry()
	r.Register(mustDouble(t, "/test"), 1234)
	r.Register(mustDouble(t, "/test"), 4567)

	r.Reset(1234)

	_, ok := r.FindForEndpoint("/test", 1234)
	assert.False(t, ok)
	_, ok = r.FindForEndpoint("/test", 4567)
	assert.True(t, ok, "reset of one port must not touch another")
}

func TestRegistry_All(t *testing.T) {
	r := NewRegistry()
	a := mustDouble(t, "/a")
	b := mustDouble(t, "/b")
	r.Register(a, 1234)
	r.Register(b, 1234)

	got := r.All(1234)
	require.Len(t, got, 2)
	assert.Equal(t, a.ID(), got[0].ID())
	assert.Equal(t, b.ID(), got[1].ID())

	t.Run("result is a snapshot", func(t *testing.T) {
		got[0] = got[1]
		fresh := r.All(1234)
		assert.Equal(t, a.ID(), fresh[0].ID())
	})

	t.Run("empty port yields empty slice", func(t *testing.T) {
		assert.Empty(t, r.All(9876))
	})
}

func TestRegistry_MixedKinds(t *testing.T) {
	r := NewRegistry()
	d := mustDouble(t, "/users")
	p, err := NewProxy("/.*", "https://api.example.com")
	require.NoError(t, err)
	r.Register(d, 1234)
	r.Register(p, 1234)

	got, ok := r.FindForEndpoint("/users", 1234)
	require.True(t, ok)
	_, isProxy := got.(*Proxy)
	assert.True(t, isProxy, "proxy registered later must win")

	all := r.FindAllForEndpoint("/users", 1234)
	require.Len(t, all, 2)
	_, isDouble := all[0].(*Double)
	assert.True(t, isDouble)
}
