package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// newTestStore returns a store with a controllable clock and no janitor.
func newTestStore() (*Store, *time.Time) {
	now := time.Unix(1_700_000_000, 0)
	s := &Store{
		entries:     make(map[string]entry),
		janitorStop: make(chan struct{}),
		now:         func() time.Time { return now },
	}
	return s, &now
}

func TestStore_SetGet(t *testing.T) {
	s, _ := newTestStore()

	_, ok := s.Get("missing")
	assert.False(t, ok)

	s.Set("k", "v", 0)
	v, ok := s.Get("k")
	assert.True(t, ok)
	assert.Equal(t, "v", v)

	s.Delete("k")
	_, ok = s.Get("k")
	assert.False(t, ok)
}

func TestStore_Expiry(t *testing.T) {
	s, now := newTestStore()

	s.Set("k", 1, 10*time.Second)

	*now = now.Add(9 * time.Second)
	_, ok := s.Get("k")
	assert.True(t, ok)

	*now = now.Add(2 * time.Second)
	_, ok = s.Get("k")
	assert.False(t, ok, "key must expire after its ttl")
}

func TestStore_IncrDecr(t *testing.T) {
	s, _ := newTestStore()

	assert.Equal(t, 1, s.Incr("c", 1, time.Hour))
	assert.Equal(t, 2, s.Incr("c", 1, time.Hour))
	assert.Equal(t, 2, s.GetInt("c"))

	assert.Equal(t, 1, s.DecrFloor("c", time.Hour))
	assert.Equal(t, 0, s.DecrFloor("c", time.Hour))

	// Never goes negative.
	assert.Equal(t, 0, s.DecrFloor("c", time.Hour))
	assert.Equal(t, 0, s.DecrFloor("other", time.Hour))
}

func TestStore_IncrAfterExpiryStartsFresh(t *testing.T) {
	s, now := newTestStore()

	s.Incr("c", 5, time.Second)
	*now = now.Add(2 * time.Second)

	assert.Equal(t, 1, s.Incr("c", 1, time.Second))
}

func TestStore_AddFloat(t *testing.T) {
	s, _ := newTestStore()

	assert.InDelta(t, 1.5, s.AddFloat("u", 1.5, time.Hour), 1e-9)
	assert.InDelta(t, 4.0, s.AddFloat("u", 2.5, time.Hour), 1e-9)
	assert.InDelta(t, 4.0, s.GetFloat("u"), 1e-9)
	assert.InDelta(t, 0.0, s.GetFloat("none"), 1e-9)
}

func TestStore_SetNX(t *testing.T) {
	s, now := newTestStore()

	assert.True(t, s.SetNX("m", true, time.Minute))
	assert.False(t, s.SetNX("m", true, time.Minute), "second insert must fail while live")

	*now = now.Add(2 * time.Minute)
	assert.True(t, s.SetNX("m", true, time.Minute), "insert must succeed after expiry")
}

func TestStore_Sweep(t *testing.T) {
	s, now := newTestStore()

	s.Set("a", 1, time.Second)
	s.Set("b", 2, time.Hour)
	s.Set("c", 3, 0)

	*now = now.Add(time.Minute)
	s.sweep()

	assert.Equal(t, 2, s.Len())
	_, ok := s.Get("a")
	assert.False(t, ok)
}
