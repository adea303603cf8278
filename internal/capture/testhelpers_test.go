package capture

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/brennhill/psat-core/internal/cookies"
	"github.com/brennhill/psat-core/internal/settings"
	"github.com/brennhill/psat-core/internal/types"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.t
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.t = f.t.Add(d)
	f.mu.Unlock()
}

var (
	richUnlimited = settings.Settings{TabCapacityMode: settings.ModeUnlimited, UseRichInstrumentation: true}
	lightSingle   = settings.Settings{TabCapacityMode: settings.ModeSingle}
)

func newTestCapture(t *testing.T, s settings.Settings) (*Capture, *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	c, err := New(Config{Settings: s, Now: clock.Now})
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c, clock
}

func cookieKey(t *testing.T, name, domain, path string) string {
	t.Helper()
	k, err := cookies.Key(name, domain, path)
	require.NoError(t, err)
	return k
}

func tabCookies(t *testing.T, c *Capture, tabID int) map[string]types.Cookie {
	t.Helper()
	snap, err := c.Snapshot(tabID, types.CategoryCookies)
	require.NoError(t, err)
	return snap.Cookies
}

type fakeInstrumenter struct {
	mu    sync.Mutex
	calls []int
	fail  int // number of leading calls that fail
}

func (f *fakeInstrumenter) Attach(_ context.Context, tabID int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, tabID)
	if len(f.calls) <= f.fail {
		return context.DeadlineExceeded
	}
	return nil
}

func (f *fakeInstrumenter) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}
