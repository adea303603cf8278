// cookie_events.go — Cookie observations that do not come from header pairs.
package capture

import (
	"strings"

	"github.com/brennhill/psat-core/internal/cookies"
	"github.com/brennhill/psat-core/internal/metrics"
	"github.com/brennhill/psat-core/internal/types"
	"github.com/brennhill/psat-core/internal/util"
)

// OnJavaScriptCookies ingests document.cookie writes. JavaScript-set cookies
// are accepted from either event source.
func (c *Capture) OnJavaScriptCookies(tabID int, ev JavaScriptCookies) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	ts, err := c.admit(tabID, kindJavaScript)
	if ts == nil {
		return err
	}
	ts.activate()

	// The content script reports its own frame, so that frame is a target.
	if ev.FrameID != "" {
		c.frames.Graph(tabID).AddTarget(ev.FrameID)
	}

	url := ev.URL
	if url == "" {
		url = ts.url
	}
	pc := cookies.ParseContext{RequestURL: url, TopLevelURL: ts.url, Now: c.now()}
	obs := make([]cookies.Observation, 0, len(ev.Writes))
	for _, w := range ev.Writes {
		if strings.TrimSpace(w) == "" {
			continue
		}
		p, err := cookies.ParseDocumentCookie(w, pc)
		if err != nil {
			c.dropMalformed(tabID, "document.cookie write", err)
			continue
		}
		obs = append(obs, cookies.Observation{
			Cookie:          p,
			HeaderType:      types.HeaderJavaScript,
			Source:          cookies.SourceJavaScript,
			URL:             url,
			AttributesKnown: true,
		})
	}
	c.deliver(ts, ev.FrameID, "js", obs)
	c.release(ts, ev.FrameID)
	c.updateGauges()
	return nil
}

// OnCookieDump ingests a cookie-jar listing from the rich source
// (Network.getCookies). Ignored while rich instrumentation is off.
func (c *Capture) OnCookieDump(tabID int, frameID, url string, dump []types.ParsedCookie) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	ts, err := c.admit(tabID, kindCookieDump)
	if ts == nil {
		return err
	}
	if !c.settings.UseRichInstrumentation {
		c.metrics.Drop(metrics.DropInstrumentGate, 1)
		return nil
	}
	ts.activate()
	obs := make([]cookies.Observation, 0, len(dump))
	for _, p := range dump {
		obs = append(obs, cookies.Observation{
			Cookie:          p,
			HeaderType:      types.HeaderResponse,
			Source:          cookies.SourceCDP,
			URL:             url,
			AttributesKnown: true,
		})
	}
	c.deliver(ts, frameID, "dump", obs)
	c.updateGauges()
	return nil
}

// OnCookieIssue ingests an auditor cookie issue. Its exclusion reasons become
// blocked reasons on the cookie record. Ignored while rich instrumentation
// is off.
func (c *Capture) OnCookieIssue(tabID int, is CookieIssue) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	ts, err := c.admit(tabID, kindIssue)
	if ts == nil {
		return err
	}
	if !c.settings.UseRichInstrumentation {
		c.metrics.Drop(metrics.DropInstrumentGate, 1)
		return nil
	}
	ts.activate()

	domain := is.Domain
	if domain == "" {
		domain = util.ExtractHost(is.URL)
	}
	headerType := types.HeaderResponse
	if is.Operation == "ReadCookie" {
		headerType = types.HeaderRequest
	}
	obs := []cookies.Observation{{
		Cookie:         types.ParsedCookie{Name: is.Name, Domain: domain, Path: is.Path},
		HeaderType:     headerType,
		Source:         cookies.SourceIssue,
		URL:            is.URL,
		BlockedReasons: is.ExclusionReasons,
		WarningReasons: is.WarningReasons,
	}}
	id := is.RequestID
	if id == "" {
		id = "issue"
	}
	c.deliver(ts, is.FrameID, id, obs)
	c.updateGauges()
	return nil
}
