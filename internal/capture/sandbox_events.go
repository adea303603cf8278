// sandbox_events.go — Protected Audience, Attribution Reporting and Prebid
// ingestion.
package capture

import (
	"go.uber.org/zap"

	"github.com/brennhill/psat-core/internal/metrics"
	"github.com/brennhill/psat-core/internal/types"
	"github.com/brennhill/psat-core/internal/util"
)

// OnAuctionEvent records an interest-group or auction event.
func (c *Capture) OnAuctionEvent(tabID int, ev types.AuctionEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	ts, err := c.admit(tabID, kindAuction)
	if ts == nil {
		return err
	}
	ts.activate()
	var added bool
	c.guard(tabID, "auctions.record", func() error {
		var err error
		added, err = ts.auctions.Record(ev)
		return err
	})
	if added {
		ts.dirty.Add(types.CategoryAuctions, 1)
		c.metrics.Merged("auctions", 1)
	}
	return nil
}

// OnAttributionSource records a source registration. The tab origin defaults
// to the origin of the tab's current URL.
func (c *Capture) OnAttributionSource(tabID int, src types.SourceRegistration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	ts, err := c.admit(tabID, kindAttribution)
	if ts == nil {
		return err
	}
	ts.activate()
	if src.TabOrigin == "" {
		src.TabOrigin = util.ExtractOrigin(ts.url)
	}
	var added bool
	c.guard(tabID, "attribution.source", func() error {
		var err error
		added, _, err = ts.attribution.RegisterSource(src)
		return err
	})
	if added {
		ts.dirty.Add(types.CategoryAttribution, 1)
		c.metrics.Merged("attribution", 1)
	}
	return nil
}

// OnAttributionTrigger records a trigger registration and matches it.
func (c *Capture) OnAttributionTrigger(tabID int, trg types.TriggerRegistration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	ts, err := c.admit(tabID, kindAttribution)
	if ts == nil {
		return err
	}
	ts.activate()
	if trg.TabOrigin == "" {
		trg.TabOrigin = util.ExtractOrigin(ts.url)
	}
	var added bool
	c.guard(tabID, "attribution.trigger", func() error {
		var err error
		added, err = ts.attribution.RegisterTrigger(trg)
		return err
	})
	if added {
		ts.dirty.Add(types.CategoryAttribution, 1)
		c.metrics.Merged("attribution", 1)
	}
	return nil
}

// OnPrebidEvent records a Prebid.js report: detected version, auction
// events and page-level errors. Each event is merged independently.
func (c *Capture) OnPrebidEvent(tabID int, rep PrebidReport) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	ts, err := c.admit(tabID, kindPrebid)
	if ts == nil {
		return err
	}
	ts.activate()
	n := 0
	if ts.prebid.SetVersion(rep.Version) {
		n++
	}
	for _, msg := range rep.Errors {
		if ts.prebid.RecordError(msg) {
			n++
		}
	}
	for _, ev := range rep.Events {
		ev := ev
		var added bool
		c.guard(tabID, "prebid.record", func() error {
			var err error
			added, err = ts.prebid.Record(ev)
			return err
		})
		if added {
			n++
		}
	}
	ts.dirty.Add(types.CategoryPrebid, n)
	c.metrics.Merged("prebid", n)
	return nil
}

// guard runs one store mutation inside a recover boundary. Errors and panics
// are logged and counted, never returned. Caller holds mu.
func (c *Capture) guard(tabID int, op string, fn func() error) {
	var err error
	if !util.Recover(c.log, op, func() { err = fn() }) {
		c.metrics.Drop(metrics.DropPanic, 1)
		return
	}
	if err != nil {
		c.metrics.Drop(metrics.DropMalformed, 1)
		c.log.Debug("item dropped", zap.Int("tab_id", tabID), zap.String("op", op), zap.Error(err))
	}
}
