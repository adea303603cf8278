// snapshot.go — Read-only views of tab state for push-sync and HTTP.
package capture

import (
	"fmt"
	"sort"

	"github.com/brennhill/psat-core/internal/types"
)

// Snapshot returns a deep copy of tabID's state. With no categories every
// section is filled; otherwise only the named ones (frame origins always).
func (c *Capture) Snapshot(tabID int, cats ...types.Category) (types.TabSnapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return types.TabSnapshot{}, ErrContextInvalidated
	}
	ts, ok := c.tabs[tabID]
	if !ok {
		return types.TabSnapshot{}, fmt.Errorf("%w: %d", ErrUnknownTab, tabID)
	}
	return c.snapshotLocked(ts, cats), nil
}

func (c *Capture) snapshotLocked(ts *tabState, cats []types.Category) types.TabSnapshot {
	if len(cats) == 0 {
		cats = types.AllCategories
	}
	snap := types.TabSnapshot{
		TabID:        ts.id,
		URL:          ts.url,
		CapturedAt:   c.now(),
		FrameOrigins: map[string][]string{},
	}
	if g, ok := c.frames.Lookup(ts.id); ok {
		snap.FrameOrigins = g.FrameOrigins()
	}
	for _, cat := range cats {
		switch cat {
		case types.CategoryCookies:
			snap.Cookies = ts.cookies.Snapshot()
		case types.CategoryAuctions:
			a := ts.auctions.Snapshot()
			snap.Auctions = &a
		case types.CategoryAttribution:
			a := ts.attribution.Snapshot()
			snap.Attribution = &a
		case types.CategoryPrebid:
			p := ts.prebid.Snapshot()
			snap.Prebid = &p
		}
	}
	return snap
}

// TakeDirty returns tabID's dirty counters and resets them to zero.
func (c *Capture) TakeDirty(tabID int) (types.DirtyCounters, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ts, ok := c.tabs[tabID]
	if !ok || c.closed {
		return types.DirtyCounters{}, false
	}
	d := ts.dirty
	ts.dirty = types.DirtyCounters{}
	return d, true
}

// TakeDirtySnapshot atomically resets tabID's counters and snapshots the
// categories that were dirty. ok is false when nothing was dirty.
func (c *Capture) TakeDirtySnapshot(tabID int) (types.DirtyCounters, types.TabSnapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ts, found := c.tabs[tabID]
	if !found || c.closed || !ts.dirty.Any() {
		return types.DirtyCounters{}, types.TabSnapshot{}, false
	}
	d := ts.dirty
	ts.dirty = types.DirtyCounters{}
	return d, c.snapshotLocked(ts, d.Dirty()), true
}

// SyncSnapshot resets tabID's counters and returns a full snapshot. Used for
// the initial sync of a newly opened surface.
func (c *Capture) SyncSnapshot(tabID int) (types.TabSnapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return types.TabSnapshot{}, ErrContextInvalidated
	}
	ts, ok := c.tabs[tabID]
	if !ok {
		return types.TabSnapshot{}, fmt.Errorf("%w: %d", ErrUnknownTab, tabID)
	}
	ts.dirty = types.DirtyCounters{}
	return c.snapshotLocked(ts, nil), nil
}

// DirtyTabs returns the sorted ids of tabs with any non-zero counter.
func (c *Capture) DirtyTabs() []int {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []int
	for id, ts := range c.tabs {
		if ts.dirty.Any() {
			out = append(out, id)
		}
	}
	sort.Ints(out)
	return out
}

// HasTab reports whether tabID has state.
func (c *Capture) HasTab(tabID int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.tabs[tabID]
	return ok
}

// Tabs lists every tab with state, sorted by id.
func (c *Capture) Tabs() []types.TabSummary {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]types.TabSummary, 0, len(c.tabs))
	for _, ts := range c.tabs {
		out = append(out, types.TabSummary{
			TabID:        ts.id,
			URL:          ts.url,
			State:        ts.phase,
			DevToolsOpen: ts.devToolsOpen,
			PopupOpen:    ts.popupOpen,
			CookieCount:  ts.cookies.Len(),
			Dirty:        ts.dirty,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TabID < out[j].TabID })
	return out
}

// PendingLen returns the number of parked halves and frame-deferred batches.
func (c *Capture) PendingLen() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pairs.Len() + c.waits.Len()
}
