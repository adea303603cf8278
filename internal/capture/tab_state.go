// tab_state.go — Per-tab aggregation state and admission.
package capture

import (
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/brennhill/psat-core/internal/attribution"
	"github.com/brennhill/psat-core/internal/auctions"
	"github.com/brennhill/psat-core/internal/cookies"
	"github.com/brennhill/psat-core/internal/metrics"
	"github.com/brennhill/psat-core/internal/prebid"
	"github.com/brennhill/psat-core/internal/types"
)

// tabState is one observed tab. Protected by Capture.mu.
type tabState struct {
	id        int
	url       string
	phase     string
	createdAt time.Time

	devToolsOpen bool
	popupOpen    bool
	dirty        types.DirtyCounters

	cookies     *cookies.Store
	auctions    *auctions.Store
	attribution *attribution.Store
	prebid      *prebid.Store

	limiter      *rate.Limiter
	instrumented bool // rich event source attached
}

func (c *Capture) newTabState(tabID int, url string) *tabState {
	ts := &tabState{
		id:          tabID,
		phase:       PhaseInitializing,
		createdAt:   c.now(),
		cookies:     cookies.NewStore(c.cfg.Classifier),
		auctions:    auctions.NewStore(),
		attribution: attribution.NewStore(),
		prebid:      prebid.NewStore(),
		limiter:     rate.NewLimiter(c.cfg.IngestRate, c.cfg.IngestBurst),
	}
	ts.setURL(url)
	return ts
}

func (ts *tabState) setURL(url string) {
	if url == "" {
		return
	}
	ts.url = url
	ts.cookies.SetPageURL(url)
}

// activate moves the tab to active on its first URL or frame observation.
func (ts *tabState) activate() {
	ts.phase = PhaseActive
}

// resetPage clears per-page-load aggregation. Open flags survive.
func (ts *tabState) resetPage() {
	ts.cookies.Clear()
	ts.auctions.Clear()
	ts.attribution.Clear()
	ts.prebid.Clear()
	for _, cat := range types.AllCategories {
		ts.dirty.Add(cat, 1)
	}
}

// ============================================================================
// Admission. Caller holds mu.
// ============================================================================

// allowed reports whether tabID may hold state under the capacity policy.
func (c *Capture) allowed(tabID int) bool {
	if !c.settings.Single() {
		return true
	}
	return c.designated == 0 || c.designated == tabID
}

// admit returns the tab's state for an ingestion event, creating it on first
// observation. A nil state with nil error means the event is silently
// dropped (tombstoned tab or rate limit).
func (c *Capture) admit(tabID int, kind string) (*tabState, error) {
	if c.closed {
		return nil, ErrContextInvalidated
	}
	if _, dead := c.tombstones[tabID]; dead {
		c.metrics.Drop(metrics.DropTabGone, 1)
		return nil, nil
	}
	ts, ok := c.tabs[tabID]
	if !ok {
		if !c.allowed(tabID) {
			c.metrics.Drop(metrics.DropTabRejected, 1)
			return nil, ErrTabRejected
		}
		ts = c.allocate(tabID, "")
	}
	if !ts.limiter.AllowN(c.now(), 1) {
		c.metrics.Drop(metrics.DropRateLimited, 1)
		c.log.Debug("ingest rate limited", zap.Int("tab_id", tabID), zap.String("kind", kind))
		return nil, nil
	}
	c.metrics.Ingested(kind)
	return ts, nil
}

// allocate creates state for tabID, designating it in single mode when no
// tab is designated yet.
func (c *Capture) allocate(tabID int, url string) *tabState {
	if c.settings.Single() && c.designated == 0 {
		c.designated = tabID
	}
	ts := c.newTabState(tabID, url)
	c.tabs[tabID] = ts
	c.updateGauges()
	c.log.Debug("tab allocated", zap.Int("tab_id", tabID))
	return ts
}

// teardown deletes every map keyed by tabID. Pending entries are dropped
// silently.
func (c *Capture) teardown(tabID int) {
	delete(c.tabs, tabID)
	c.frames.DropTab(tabID)
	dropped := c.pairs.DropTab(tabID) + c.waits.DropTab(tabID)
	if dropped > 0 {
		c.log.Debug("pending entries abandoned", zap.Int("tab_id", tabID), zap.Int("count", dropped))
	}
	c.updateGauges()
}

func (c *Capture) tombstone(tabID int) {
	if _, ok := c.tombstones[tabID]; ok {
		return
	}
	c.tombstones[tabID] = struct{}{}
	c.tombOrder = append(c.tombOrder, tabID)
	for len(c.tombOrder) > c.cfg.TombstoneLimit {
		delete(c.tombstones, c.tombOrder[0])
		c.tombOrder = c.tombOrder[1:]
	}
}
