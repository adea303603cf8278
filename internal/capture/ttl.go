// ttl.go — Pending-entry expiry and the janitor loop that drives it.
package capture

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/brennhill/psat-core/internal/metrics"
)

// ExpirePending processes pending entries older than the TTL once, at tab
// level: a header half whose context never came is merged without a frame,
// and observations still waiting for frame context are merged without one.
// Returns the number of entries expired.
func (c *Capture) ExpirePending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return 0
	}

	n := 0
	for _, e := range c.pairs.Expire() {
		n++
		ts, ok := c.tabs[e.Key.TabID]
		if !ok {
			c.metrics.Drop(metrics.DropPendingTTL, 1)
			continue
		}
		id := strings.TrimSuffix(strings.TrimSuffix(e.Key.ID, dirRequest), dirResponse)
		c.processHalf(ts, id, e.Value)
	}
	for _, e := range c.waits.Expire() {
		n++
		ts, ok := c.tabs[e.Key.TabID]
		if !ok {
			c.metrics.Drop(metrics.DropPendingTTL, len(e.Value.obs))
			continue
		}
		c.mergeCookies(ts, "", e.Value.obs)
	}
	if n > 0 {
		c.log.Debug("pending entries expired", zap.Int("count", n))
	}
	c.updateGauges()
	return n
}

// RunJanitor calls ExpirePending every interval until ctx is done.
func (c *Capture) RunJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.ExpirePending()
			if c.Closed() {
				return
			}
		}
	}
}
