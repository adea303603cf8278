// network.go — Request/response half pairing and frame-deferred delivery.
//
// The CDP source reports each request in two halves that race: a context half
// (frame id, URL) and an extra-info half (cookies with blocked reasons). The
// first half to arrive is stashed; the second takes it and processes the pair
// exactly once. Observations whose frame ancestry is incomplete are parked
// again, keyed by the missing frame, until a frame event fills the gap.
package capture

import (
	"errors"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/brennhill/psat-core/internal/cookies"
	"github.com/brennhill/psat-core/internal/metrics"
	"github.com/brennhill/psat-core/internal/pending"
	"github.com/brennhill/psat-core/internal/types"
	"github.com/brennhill/psat-core/internal/util"
)

const (
	dirRequest  = "/request"
	dirResponse = "/response"
)

// half is whatever has arrived so far for one request direction.
type half struct {
	reqCtx  *RequestContext
	reqHdr  *RequestHeaders
	respCtx *ResponseContext
	respHdr *ResponseHeaders
}

// absorb overlays in; a repeated half replaces the earlier copy.
func (h *half) absorb(in half) {
	if in.reqCtx != nil {
		h.reqCtx = in.reqCtx
	}
	if in.reqHdr != nil {
		h.reqHdr = in.reqHdr
	}
	if in.respCtx != nil {
		h.respCtx = in.respCtx
	}
	if in.respHdr != nil {
		h.respHdr = in.respHdr
	}
}

func (h half) complete(dir string) bool {
	if dir == dirRequest {
		return h.reqCtx != nil && h.reqHdr != nil
	}
	return h.respCtx != nil && h.respHdr != nil
}

// deferred holds observations waiting for frame context.
type deferred struct {
	id      string // originating request id or source label
	frameID string // frame as reported by the source
	obs     []cookies.Observation
}

// ============================================================================
// Entry points
// ============================================================================

// OnRequestContext ingests the frame/URL half of a request.
func (c *Capture) OnRequestContext(tabID int, ev RequestContext) error {
	return c.ingestHalf(tabID, ev.RequestID, dirRequest, half{reqCtx: &ev})
}

// OnRequestHeaders ingests the cookie half of a request.
func (c *Capture) OnRequestHeaders(tabID int, ev RequestHeaders) error {
	return c.ingestHalf(tabID, ev.RequestID, dirRequest, half{reqHdr: &ev})
}

// OnResponseContext ingests the frame/URL half of a response.
func (c *Capture) OnResponseContext(tabID int, ev ResponseContext) error {
	return c.ingestHalf(tabID, ev.RequestID, dirResponse, half{respCtx: &ev})
}

// OnResponseHeaders ingests the Set-Cookie half of a response.
func (c *Capture) OnResponseHeaders(tabID int, ev ResponseHeaders) error {
	return c.ingestHalf(tabID, ev.RequestID, dirResponse, half{respHdr: &ev})
}

func (c *Capture) ingestHalf(tabID int, requestID, dir string, in half) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	ts, err := c.admit(tabID, kindNetwork)
	if ts == nil {
		return err
	}
	if !c.settings.UseRichInstrumentation {
		c.metrics.Drop(metrics.DropInstrumentGate, 1)
		return nil
	}
	if requestID == "" {
		c.metrics.Drop(metrics.DropMalformed, 1)
		c.log.Debug("network half without request id", zap.Int("tab_id", tabID))
		return nil
	}
	ts.activate()

	key := pending.Key{TabID: tabID, ID: requestID + dir}
	cur, _ := c.pairs.TakeIfPresent(key)
	cur.absorb(in)
	if !cur.complete(dir) {
		if evicted := c.pairs.Stash(key, cur); evicted != nil {
			c.metrics.Drop(metrics.DropPendingEvict, 1)
			c.log.Debug("pending half evicted", zap.Int("tab_id", tabID), zap.String("key", evicted.Key.ID))
		}
		c.updateGauges()
		return nil
	}
	c.processHalf(ts, requestID, cur)
	c.updateGauges()
	return nil
}

// OnWebRequestHeaders ingests one lightweight-source header event. Ignored
// while rich instrumentation is on.
func (c *Capture) OnWebRequestHeaders(tabID int, ev WebRequestHeaders) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	ts, err := c.admit(tabID, kindWebRequest)
	if ts == nil {
		return err
	}
	if c.settings.UseRichInstrumentation {
		c.metrics.Drop(metrics.DropInstrumentGate, 1)
		return nil
	}
	ts.activate()

	// webRequest names every frame directly; each one is its own target.
	if ev.FrameID != "" {
		g := c.frames.Graph(tabID)
		g.RecordRelationship(ev.FrameID, ev.ParentFrameID)
		g.AddTarget(ev.FrameID)
	}

	pc := cookies.ParseContext{RequestURL: ev.URL, TopLevelURL: ts.url, Now: c.now()}
	var obs []cookies.Observation
	for _, h := range ev.Headers {
		switch {
		case ev.Direction == types.HeaderRequest && strings.EqualFold(h.Name, "cookie"):
			parsed, err := cookies.ParseCookieHeader(h.Value, pc)
			if err != nil {
				c.dropMalformed(tabID, "cookie header", err)
				continue
			}
			for _, p := range parsed {
				obs = append(obs, cookies.Observation{
					Cookie:       p,
					HeaderType:   types.HeaderRequest,
					Source:       cookies.SourceHeader,
					URL:          ev.URL,
					RequestEvent: &types.NetworkEvent{RequestID: ev.RequestID, URL: ev.URL, Timestamp: ev.Timestamp},
				})
			}
		case ev.Direction == types.HeaderResponse && strings.EqualFold(h.Name, "set-cookie"):
			parsed, errs := cookies.ParseSetCookieHeader(h.Value, pc)
			for _, err := range errs {
				c.dropMalformed(tabID, "set-cookie header", err)
			}
			for _, p := range parsed {
				obs = append(obs, cookies.Observation{
					Cookie:          p,
					HeaderType:      types.HeaderResponse,
					Source:          cookies.SourceHeader,
					URL:             ev.URL,
					AttributesKnown: true,
					ResponseEvent:   &types.NetworkEvent{RequestID: ev.RequestID, URL: ev.URL, Timestamp: ev.Timestamp},
				})
			}
		}
	}
	c.deliver(ts, ev.FrameID, ev.RequestID, obs)
	c.release(ts, ev.FrameID)
	c.updateGauges()
	return nil
}

// ============================================================================
// Processing. Caller holds mu.
// ============================================================================

// processHalf turns a paired (or expired) half into cookie observations.
// A missing context half means the observations are tab-level.
func (c *Capture) processHalf(ts *tabState, requestID string, h half) {
	if h.reqHdr != nil {
		var frame, url string
		at := h.reqHdr.Timestamp
		if h.reqCtx != nil {
			frame, url = h.reqCtx.FrameID, h.reqCtx.URL
			if h.reqCtx.Timestamp > 0 {
				at = h.reqCtx.Timestamp
			}
		}
		c.deliver(ts, frame, requestID, c.requestObservations(ts, requestID, url, at, h.reqHdr.Cookies))
	}
	if h.respHdr != nil {
		var frame, url string
		at := h.respHdr.Timestamp
		if h.respCtx != nil {
			frame, url = h.respCtx.FrameID, h.respCtx.URL
			if h.respCtx.Timestamp > 0 {
				at = h.respCtx.Timestamp
			}
		}
		c.deliver(ts, frame, requestID, c.responseObservations(ts, requestID, url, at, h.respHdr.SetCookie))
	}
}

func (c *Capture) requestObservations(ts *tabState, requestID, url string, at float64, in []RequestCookie) []cookies.Observation {
	out := make([]cookies.Observation, 0, len(in))
	for _, rc := range in {
		p := rc.Cookie
		if p.Domain == "" {
			p.Domain = util.ExtractHost(url)
		}
		out = append(out, cookies.Observation{
			Cookie:          p,
			HeaderType:      types.HeaderRequest,
			Source:          cookies.SourceCDP,
			URL:             url,
			AttributesKnown: true,
			BlockedReasons:  rc.BlockedReasons,
			WarningReasons:  rc.WarningReasons,
			RequestEvent:    networkEvent(requestID, url, at, rc.BlockedReasons),
		})
	}
	return out
}

func (c *Capture) responseObservations(ts *tabState, requestID, url string, at float64, in []SetCookieLine) []cookies.Observation {
	pc := cookies.ParseContext{RequestURL: url, TopLevelURL: ts.url, Now: c.now()}
	out := make([]cookies.Observation, 0, len(in))
	for _, line := range in {
		var p types.ParsedCookie
		if line.Cookie != nil {
			p = *line.Cookie
		} else {
			parsed, err := cookies.ParseSetCookie(line.Line, pc)
			if err != nil {
				c.dropMalformed(ts.id, "set-cookie line", err)
				continue
			}
			p = parsed
		}
		out = append(out, cookies.Observation{
			Cookie:          p,
			HeaderType:      types.HeaderResponse,
			Source:          cookies.SourceCDP,
			URL:             url,
			AttributesKnown: true,
			BlockedReasons:  line.BlockedReasons,
			WarningReasons:  line.WarningReasons,
			ResponseEvent:   networkEvent(requestID, url, at, line.BlockedReasons),
		})
	}
	return out
}

func networkEvent(requestID, url string, at float64, blocked []string) *types.NetworkEvent {
	return &types.NetworkEvent{
		RequestID:      requestID,
		URL:            url,
		Timestamp:      at,
		Blocked:        len(blocked) > 0,
		BlockedReasons: blocked,
	}
}

// deliver merges obs at the frame rawFrame resolves to, or parks them until
// the missing part of rawFrame's ancestry arrives.
func (c *Capture) deliver(ts *tabState, rawFrame, id string, obs []cookies.Observation) {
	if len(obs) == 0 {
		return
	}
	frame, waitOn := c.resolveFrame(ts.id, rawFrame)
	if waitOn != "" {
		c.seq++
		key := pending.Key{TabID: ts.id, ID: id + "#" + strconv.FormatUint(c.seq, 10)}
		if evicted := c.waits.StashWaiting(key, deferred{id: id, frameID: rawFrame, obs: obs}, waitOn); evicted != nil {
			c.metrics.Drop(metrics.DropPendingEvict, len(evicted.Value.obs))
		}
		return
	}
	c.mergeCookies(ts, frame, obs)
}

// resolveFrame returns the target frame rawFrame belongs to. When the walk
// ends at a frame nothing is known about yet, it returns that frame as
// waitOn. Frames that cannot resolve for any other reason are tab-level ("").
func (c *Capture) resolveFrame(tabID int, rawFrame string) (frame, waitOn string) {
	if rawFrame == "" {
		return "", ""
	}
	g := c.frames.Graph(tabID)
	if f, ok := g.ResolveTarget(rawFrame); ok {
		return f, ""
	}
	if frontier, ok := g.Frontier(rawFrame); ok && !g.Anchored(frontier) {
		return "", frontier
	}
	return "", ""
}

// release re-delivers everything parked on frameID.
func (c *Capture) release(ts *tabState, frameID string) {
	if frameID == "" {
		return
	}
	for _, e := range c.waits.TakeWaiting(ts.id, frameID) {
		c.deliver(ts, e.Value.frameID, e.Value.id, e.Value.obs)
	}
}

// mergeCookies merges a batch at frame and bumps the cookie dirty counter
// once per merged observation.
func (c *Capture) mergeCookies(ts *tabState, frame string, obs []cookies.Observation) {
	for i := range obs {
		obs[i].FrameID = frame
	}
	merged, errs := ts.cookies.MergeAll(obs)
	ts.dirty.Add(types.CategoryCookies, merged)
	c.metrics.Merged("cookies", merged)
	for _, err := range errs {
		reason := metrics.DropMalformed
		if !errors.Is(err, cookies.ErrNoIdentity) {
			reason = metrics.DropPanic
		}
		c.metrics.Drop(reason, 1)
		c.log.Debug("cookie observation dropped", zap.Int("tab_id", ts.id), zap.Error(err))
	}
}

func (c *Capture) dropMalformed(tabID int, what string, err error) {
	c.metrics.Drop(metrics.DropMalformed, 1)
	c.log.Debug("malformed input dropped", zap.Int("tab_id", tabID), zap.String("what", what), zap.Error(err))
}
