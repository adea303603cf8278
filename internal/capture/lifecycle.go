// lifecycle.go — Tab create/remove/navigate/switch and rich-source attach.
package capture

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/brennhill/psat-core/internal/util"
)

// lifecycleTab returns the tab for a lifecycle event, creating it when the
// capacity policy allows. Lifecycle events bypass rate limiting.
// Caller holds mu.
func (c *Capture) lifecycleTab(tabID int) (*tabState, error) {
	if c.closed {
		return nil, ErrContextInvalidated
	}
	if _, dead := c.tombstones[tabID]; dead {
		return nil, nil
	}
	if ts, ok := c.tabs[tabID]; ok {
		return ts, nil
	}
	if !c.allowed(tabID) {
		return nil, ErrTabRejected
	}
	c.metrics.Ingested(kindLifecycle)
	return c.allocate(tabID, ""), nil
}

// OnTabCreated allocates state for a new tab. In single mode a tab other
// than the designated one is refused with ErrTabRejected and gets no state.
func (c *Capture) OnTabCreated(tabID int, url string) error {
	c.mu.Lock()
	ts, err := c.lifecycleTab(tabID)
	if ts != nil && ts.url == "" {
		ts.setURL(url)
	}
	c.mu.Unlock()
	if err != nil || ts == nil {
		return err
	}
	c.attach(tabID)
	return nil
}

// OnTabRemoved tears the tab down and tombstones its id.
func (c *Capture) OnTabRemoved(tabID int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrContextInvalidated
	}
	c.teardown(tabID)
	c.tombstone(tabID)
	if c.designated == tabID {
		c.designated = 0
	}
	c.log.Debug("tab removed", zap.Int("tab_id", tabID))
	return nil
}

// OnNavigationStarted handles a top-level navigation. Per-page aggregation
// (cookies, frames, pending halves, auctions, registrations, Prebid) is
// cleared; the tab id and surface open flags are kept. chrome:// pages are
// ignored.
func (c *Capture) OnNavigationStarted(tabID int, url string) error {
	if util.IsChromeURL(url) {
		return nil
	}
	c.mu.Lock()
	ts, err := c.lifecycleTab(tabID)
	if ts != nil {
		c.frames.Reset(tabID)
		c.pairs.DropTab(tabID)
		c.waits.DropTab(tabID)
		ts.resetPage()
		ts.setURL(url)
		ts.activate()
		c.updateGauges()
	}
	c.mu.Unlock()
	if err != nil || ts == nil {
		return err
	}
	// Navigation is the natural retry point for a failed attach.
	c.attach(tabID)
	return nil
}

// SwitchTab designates tabID as the tab to read. In single mode the
// previously designated tab's state is torn down first. The old tab is not
// tombstoned: it is still open and can be switched back to.
func (c *Capture) SwitchTab(tabID int, url string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrContextInvalidated
	}
	if _, dead := c.tombstones[tabID]; dead {
		c.mu.Unlock()
		return fmt.Errorf("%w: tab %d was removed", ErrTabRejected, tabID)
	}
	if c.settings.Single() && c.designated != tabID {
		if c.designated != 0 {
			c.teardown(c.designated)
		}
		c.designated = tabID
	}
	ts, ok := c.tabs[tabID]
	if !ok {
		ts = c.allocate(tabID, url)
	} else {
		ts.setURL(url)
	}
	c.mu.Unlock()

	c.log.Debug("switched tab", zap.Int("tab_id", tabID))
	c.attach(tabID)
	return nil
}

// SetSurfaceOpen records whether a popup or DevTools surface is open on the
// tab. Returns false when the tab has no state.
func (c *Capture) SetSurfaceOpen(tabID int, kind string, open bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	ts, ok := c.tabs[tabID]
	if !ok {
		return false
	}
	switch kind {
	case SurfacePopup:
		ts.popupOpen = open
	case SurfaceDevTools:
		ts.devToolsOpen = open
	default:
		return false
	}
	return true
}

// DesignatedTab returns the single-mode tab to read (0 = none).
func (c *Capture) DesignatedTab() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.designated
}

// attach connects the rich event source when enabled and not yet attached.
// Called without mu: Attach is a host-API call and may feed events back.
func (c *Capture) attach(tabID int) {
	c.mu.Lock()
	ts := c.tabs[tabID]
	need := ts != nil && !ts.instrumented && !c.closed &&
		c.settings.UseRichInstrumentation && c.cfg.Instrumenter != nil
	parent := c.ctx
	c.mu.Unlock()
	if !need {
		return
	}

	ctx, cancel := context.WithTimeout(parent, c.cfg.AttachTimeout)
	defer cancel()
	var err error
	if !util.Recover(c.log, "instrumenter.attach", func() {
		err = c.cfg.Instrumenter.Attach(ctx, tabID)
	}) {
		err = errors.New("attach panicked")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.log.Warn("rich instrumentation attach failed; will retry on next navigation",
			zap.Int("tab_id", tabID), zap.Error(err))
		return
	}
	// Re-validate: the tab may have been torn down while attaching.
	if ts, ok := c.tabs[tabID]; ok {
		ts.instrumented = true
	}
}
