package pending

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
}

func TestTakeIfPresentRemovesOnRead(t *testing.T) {
	t.Parallel()

	b := New[string](Config{})
	key := Key{TabID: 1, ID: "req-1"}
	b.Stash(key, "headers")

	require.True(t, b.HasPending(key))
	v, ok := b.TakeIfPresent(key)
	require.True(t, ok)
	assert.Equal(t, "headers", v)

	_, ok = b.TakeIfPresent(key)
	assert.False(t, ok, "second take must find nothing")
	assert.False(t, b.HasPending(key))
	assert.Equal(t, 0, b.Len())
}

func TestStashDuplicateReplaces(t *testing.T) {
	t.Parallel()

	b := New[string](Config{})
	key := Key{TabID: 1, ID: "req-1"}
	b.Stash(key, "first")
	b.Stash(key, "second")

	assert.Equal(t, 1, b.Len())
	v, _ := b.TakeIfPresent(key)
	assert.Equal(t, "second", v)
}

func TestTakeWaiting(t *testing.T) {
	t.Parallel()

	clock := newClock()
	b := New[int](Config{Now: clock.Now})
	b.StashWaiting(Key{TabID: 1, ID: "a"}, 1, "frame-5")
	clock.Advance(time.Millisecond)
	b.StashWaiting(Key{TabID: 1, ID: "b"}, 2, "frame-5")
	b.StashWaiting(Key{TabID: 1, ID: "c"}, 3, "frame-6")
	b.StashWaiting(Key{TabID: 2, ID: "d"}, 4, "frame-5")

	assert.Equal(t, []string{"frame-5", "frame-6"}, b.WaitLabels(1))

	got := b.TakeWaiting(1, "frame-5")
	require.Len(t, got, 2)
	assert.Equal(t, 1, got[0].Value)
	assert.Equal(t, 2, got[1].Value)

	assert.Empty(t, b.TakeWaiting(1, "frame-5"))
	assert.Equal(t, 2, b.Len())
	assert.Equal(t, []string{"frame-6"}, b.WaitLabels(1))

	// Taking by key also clears the wait index.
	_, ok := b.TakeIfPresent(Key{TabID: 1, ID: "c"})
	require.True(t, ok)
	assert.Empty(t, b.WaitLabels(1))
}

func TestExpire(t *testing.T) {
	t.Parallel()

	clock := newClock()
	b := New[string](Config{TTL: 10 * time.Second, Now: clock.Now})
	b.Stash(Key{TabID: 1, ID: "old"}, "old")
	clock.Advance(6 * time.Second)
	b.Stash(Key{TabID: 1, ID: "new"}, "new")

	assert.Empty(t, b.Expire())

	clock.Advance(4 * time.Second)
	expired := b.Expire()
	require.Len(t, expired, 1)
	assert.Equal(t, "old", expired[0].Value)
	assert.False(t, b.HasPending(Key{TabID: 1, ID: "old"}))
	assert.True(t, b.HasPending(Key{TabID: 1, ID: "new"}))

	assert.Empty(t, b.Expire(), "expired entries leave exactly once")
}

func TestDropTab(t *testing.T) {
	t.Parallel()

	b := New[string](Config{})
	b.Stash(Key{TabID: 1, ID: "a"}, "a")
	b.StashWaiting(Key{TabID: 1, ID: "b"}, "b", "frame")
	b.Stash(Key{TabID: 2, ID: "a"}, "a")

	assert.Equal(t, 2, b.DropTab(1))
	assert.Equal(t, 0, b.TabLen(1))
	assert.Empty(t, b.TakeWaiting(1, "frame"))
	assert.Equal(t, 1, b.Len())
	assert.Equal(t, 0, b.DropTab(42))
}

func TestMaxPerTabEvictsOldest(t *testing.T) {
	t.Parallel()

	clock := newClock()
	b := New[string](Config{MaxPerTab: 2, Now: clock.Now})
	assert.Nil(t, b.Stash(Key{TabID: 1, ID: "a"}, "a"))
	clock.Advance(time.Second)
	assert.Nil(t, b.Stash(Key{TabID: 1, ID: "b"}, "b"))
	clock.Advance(time.Second)
	assert.Nil(t, b.Stash(Key{TabID: 2, ID: "x"}, "x"), "other tabs have their own budget")

	evicted := b.Stash(Key{TabID: 1, ID: "c"}, "c")
	require.NotNil(t, evicted)
	assert.Equal(t, "a", evicted.Value)
	assert.Equal(t, 2, b.TabLen(1))
	assert.False(t, b.HasPending(Key{TabID: 1, ID: "a"}))

	// Replacing an existing key never evicts.
	assert.Nil(t, b.Stash(Key{TabID: 1, ID: "b"}, "b2"))
}

func TestClear(t *testing.T) {
	t.Parallel()

	b := New[string](Config{})
	b.StashWaiting(Key{TabID: 1, ID: "a"}, "a", "f")
	b.Clear()
	assert.Equal(t, 0, b.Len())
	assert.Empty(t, b.WaitLabels(1))
}
