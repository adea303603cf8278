// decoder.go — Chrome DevTools Protocol events to capture ingestion calls.
//
// Params are read with gjson rather than unmarshalled into full protocol
// structs: only a handful of fields matter per method and the protocol adds
// fields between Chrome releases.
package cdp

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/brennhill/psat-core/internal/capture"
	"github.com/brennhill/psat-core/internal/cookies"
	"github.com/brennhill/psat-core/internal/logging"
	"github.com/brennhill/psat-core/internal/types"
)

// ErrUnknownMethod is returned for methods the decoder does not handle.
// Callers ignore it.
var ErrUnknownMethod = errors.New("cdp: unknown method")

// Protocol methods the decoder understands.
const (
	MethodRequestWillBeSent          = "Network.requestWillBeSent"
	MethodRequestWillBeSentExtraInfo = "Network.requestWillBeSentExtraInfo"
	MethodResponseReceived           = "Network.responseReceived"
	MethodResponseReceivedExtraInfo  = "Network.responseReceivedExtraInfo"
	MethodFrameAttached              = "Page.frameAttached"
	MethodFrameNavigated             = "Page.frameNavigated"
	MethodAttachedToTarget           = "Target.attachedToTarget"
	MethodDetachedFromTarget         = "Target.detachedFromTarget"
	MethodIssueAdded                 = "Audits.issueAdded"
	MethodInterestGroupAccessed      = "Storage.interestGroupAccessed"
	MethodAuctionEventOccurred       = "Storage.interestGroupAuctionEventOccurred"
	MethodSourceRegistered           = "Storage.attributionReportingSourceRegistered"
	MethodTriggerRegistered          = "Storage.attributionReportingTriggerRegistered"
)

// Sink receives decoded events. *capture.Capture implements it.
type Sink interface {
	OnRequestContext(tabID int, ev capture.RequestContext) error
	OnRequestHeaders(tabID int, ev capture.RequestHeaders) error
	OnResponseContext(tabID int, ev capture.ResponseContext) error
	OnResponseHeaders(tabID int, ev capture.ResponseHeaders) error
	OnFrameAttached(tabID int, frameID, parentID string) error
	OnFrameNavigated(tabID int, frameID, parentID, url string) error
	OnTargetAttached(tabID int, targetID string) error
	OnTargetDetached(tabID int, targetID string) error
	OnCookieIssue(tabID int, is capture.CookieIssue) error
	OnCookieDump(tabID int, frameID, url string, dump []types.ParsedCookie) error
	OnAuctionEvent(tabID int, ev types.AuctionEvent) error
	OnAttributionSource(tabID int, src types.SourceRegistration) error
	OnAttributionTrigger(tabID int, trg types.TriggerRegistration) error
}

// Decoder routes raw protocol events to a Sink.
type Decoder struct {
	sink Sink
	log  *zap.Logger
}

// NewDecoder creates a Decoder.
func NewDecoder(sink Sink, logger *zap.Logger) *Decoder {
	return &Decoder{sink: sink, log: logging.OrNop(logger).Named("cdp")}
}

// Dispatch decodes one event for tabID. Errors from the sink (rejected tab,
// invalidated core) are returned unchanged.
func (d *Decoder) Dispatch(tabID int, method string, params []byte) error {
	if !gjson.ValidBytes(params) {
		return fmt.Errorf("cdp: %s: invalid params JSON", method)
	}
	p := gjson.ParseBytes(params)

	switch method {
	case MethodRequestWillBeSent:
		return d.sink.OnRequestContext(tabID, capture.RequestContext{
			RequestID: p.Get("requestId").String(),
			FrameID:   p.Get("frameId").String(),
			URL:       p.Get("request.url").String(),
			Timestamp: p.Get("timestamp").Float(),
		})

	case MethodRequestWillBeSentExtraInfo:
		return d.sink.OnRequestHeaders(tabID, requestHeaders(p))

	case MethodResponseReceived:
		return d.sink.OnResponseContext(tabID, capture.ResponseContext{
			RequestID: p.Get("requestId").String(),
			FrameID:   p.Get("frameId").String(),
			URL:       p.Get("response.url").String(),
			Timestamp: p.Get("timestamp").Float(),
		})

	case MethodResponseReceivedExtraInfo:
		return d.sink.OnResponseHeaders(tabID, responseHeaders(p))

	case MethodFrameAttached:
		return d.sink.OnFrameAttached(tabID, p.Get("frameId").String(), p.Get("parentFrameId").String())

	case MethodFrameNavigated:
		f := p.Get("frame")
		return d.sink.OnFrameNavigated(tabID, f.Get("id").String(), f.Get("parentId").String(), f.Get("url").String())

	case MethodAttachedToTarget:
		info := p.Get("targetInfo")
		switch info.Get("type").String() {
		case "iframe", "page":
			return d.sink.OnTargetAttached(tabID, info.Get("targetId").String())
		}
		return nil

	case MethodDetachedFromTarget:
		return d.sink.OnTargetDetached(tabID, p.Get("targetId").String())

	case MethodIssueAdded:
		issue := p.Get("issue")
		if issue.Get("code").String() != "CookieIssue" {
			return nil
		}
		return d.sink.OnCookieIssue(tabID, cookieIssue(issue.Get("details.cookieIssueDetails")))

	case MethodInterestGroupAccessed:
		return d.sink.OnAuctionEvent(tabID, interestGroupAccess(p))

	case MethodAuctionEventOccurred:
		return d.sink.OnAuctionEvent(tabID, types.AuctionEvent{
			UniqueAuctionID: p.Get("uniqueAuctionId").String(),
			ParentAuctionID: p.Get("parentAuctionId").String(),
			Type:            p.Get("type").String(),
			Config:          p.Get("auctionConfig").Raw,
			Time:            p.Get("eventTime").Float(),
		})

	case MethodSourceRegistered:
		return d.sink.OnAttributionSource(tabID, sourceRegistration(p))

	case MethodTriggerRegistered:
		return d.sink.OnAttributionTrigger(tabID, triggerRegistration(p))
	}
	d.log.Debug("unhandled method", zap.String("method", method))
	return fmt.Errorf("%w: %s", ErrUnknownMethod, method)
}

// DispatchCookies feeds a Network.getCookies result as a cookie dump.
func (d *Decoder) DispatchCookies(tabID int, frameID, url string, result []byte) error {
	var dump []types.ParsedCookie
	for _, c := range gjson.GetBytes(result, "cookies").Array() {
		dump = append(dump, parseCookie(c))
	}
	if len(dump) == 0 {
		return nil
	}
	return d.sink.OnCookieDump(tabID, frameID, url, dump)
}

// ============================================================================
// Network
// ============================================================================

func requestHeaders(p gjson.Result) capture.RequestHeaders {
	ev := capture.RequestHeaders{RequestID: p.Get("requestId").String()}
	p.Get("associatedCookies").ForEach(func(_, ac gjson.Result) bool {
		ev.Cookies = append(ev.Cookies, capture.RequestCookie{
			Cookie:         parseCookie(ac.Get("cookie")),
			BlockedReasons: stringList(ac.Get("blockedReasons")),
		})
		return true
	})
	return ev
}

// responseHeaders collects Set-Cookie lines from the raw headers and
// attaches the blocked reasons the browser reported per line. Blocked lines
// missing from the headers are added on their own.
func responseHeaders(p gjson.Result) capture.ResponseHeaders {
	ev := capture.ResponseHeaders{RequestID: p.Get("requestId").String()}

	blocked := map[string][]string{}
	var blockedOrder []string
	parsed := map[string]types.ParsedCookie{}
	p.Get("blockedCookies").ForEach(func(_, bc gjson.Result) bool {
		line := bc.Get("cookieLine").String()
		if line == "" {
			return true
		}
		if _, seen := blocked[line]; !seen {
			blockedOrder = append(blockedOrder, line)
		}
		blocked[line] = append(blocked[line], stringList(bc.Get("blockedReasons"))...)
		if c := bc.Get("cookie"); c.Exists() {
			parsed[line] = parseCookie(c)
		}
		return true
	})

	seen := map[string]bool{}
	p.Get("headers").ForEach(func(k, v gjson.Result) bool {
		if !strings.EqualFold(k.String(), "set-cookie") {
			return true
		}
		for _, line := range strings.Split(v.String(), "\n") {
			line = strings.TrimSpace(line)
			if line == "" || seen[line] {
				continue
			}
			seen[line] = true
			ev.SetCookie = append(ev.SetCookie, setCookieLine(line, blocked, parsed))
		}
		return true
	})
	for _, line := range blockedOrder {
		if !seen[line] {
			seen[line] = true
			ev.SetCookie = append(ev.SetCookie, setCookieLine(line, blocked, parsed))
		}
	}
	return ev
}

func setCookieLine(line string, blocked map[string][]string, parsed map[string]types.ParsedCookie) capture.SetCookieLine {
	sc := capture.SetCookieLine{Line: line, BlockedReasons: blocked[line]}
	if c, ok := parsed[line]; ok {
		sc.Cookie = &c
	}
	return sc
}

// parseCookie converts a Network.Cookie object.
func parseCookie(c gjson.Result) types.ParsedCookie {
	name, value := c.Get("name").String(), c.Get("value").String()
	size := int(c.Get("size").Int())
	if size == 0 {
		size = len(name) + len(value)
	}
	return types.ParsedCookie{
		Name:         name,
		Value:        value,
		Domain:       c.Get("domain").String(),
		Path:         c.Get("path").String(),
		Expires:      cookies.ExpiresFromEpoch(c.Get("expires").Float(), c.Get("session").Bool()),
		HTTPOnly:     c.Get("httpOnly").Bool(),
		Secure:       c.Get("secure").Bool(),
		SameSite:     c.Get("sameSite").String(),
		Priority:     c.Get("priority").String(),
		PartitionKey: partitionKey(c.Get("partitionKey")),
		Size:         size,
	}
}

// partitionKey accepts both the legacy string form and the newer
// {topLevelSite, hasCrossSiteAncestor} object.
func partitionKey(r gjson.Result) string {
	if r.IsObject() {
		return r.Get("topLevelSite").String()
	}
	return r.String()
}

// ============================================================================
// Audits
// ============================================================================

func cookieIssue(det gjson.Result) capture.CookieIssue {
	is := capture.CookieIssue{
		RequestID:        det.Get("request.requestId").String(),
		URL:              det.Get("cookieUrl").String(),
		Name:             det.Get("cookie.name").String(),
		Domain:           det.Get("cookie.domain").String(),
		Path:             det.Get("cookie.path").String(),
		ExclusionReasons: stringList(det.Get("cookieExclusionReasons")),
		WarningReasons:   stringList(det.Get("cookieWarningReasons")),
		Operation:        det.Get("operation").String(),
	}
	if is.Name == "" {
		// Raw-line issues carry no cookie object.
		if line := det.Get("rawCookieLine").String(); line != "" {
			if eq := strings.IndexByte(line, '='); eq > 0 {
				is.Name = strings.TrimSpace(line[:eq])
			}
		}
	}
	return is
}

// ============================================================================
// Storage: Protected Audience and Attribution Reporting
// ============================================================================

func interestGroupAccess(p gjson.Result) types.AuctionEvent {
	return types.AuctionEvent{
		UniqueAuctionID:       p.Get("uniqueAuctionId").String(),
		Type:                  p.Get("type").String(),
		OwnerOrigin:           p.Get("ownerOrigin").String(),
		Name:                  p.Get("name").String(),
		ComponentSellerOrigin: p.Get("componentSellerOrigin").String(),
		Bid:                   p.Get("bid").Float(),
		BidCurrency:           p.Get("bidCurrency").String(),
		Time:                  p.Get("accessTime").Float(),
	}
}

func sourceRegistration(p gjson.Result) types.SourceRegistration {
	reg := p.Get("registration")
	src := types.SourceRegistration{
		ReportingOrigin:  reg.Get("reportingOrigin").String(),
		SourceEventID:    reg.Get("eventId").String(),
		SourceType:       reg.Get("type").String(),
		DestinationSites: stringList(reg.Get("destinationSites")),
		TriggerData:      stringList(reg.Get("triggerData")),
		Result:           p.Get("result").String(),
		Time:             reg.Get("time").Float(),
	}
	src.ID = src.SourceEventID
	keys := reg.Get("aggregationKeys")
	if keys.Exists() {
		src.AggregationKeys = map[string]string{}
		keys.ForEach(func(_, kv gjson.Result) bool {
			src.AggregationKeys[kv.Get("key").String()] = kv.Get("value").String()
			return true
		})
	}
	return src
}

func triggerRegistration(p gjson.Result) types.TriggerRegistration {
	reg := p.Get("registration")
	trg := types.TriggerRegistration{
		ReportingOrigin: reg.Get("reportingOrigin").String(),
		Result:          p.Get("eventLevel").String(),
		Time:            reg.Get("time").Float(),
	}
	if agg := p.Get("aggregatable").String(); agg != "" && trg.Result != "" {
		trg.Result += "/" + agg
	} else if agg != "" {
		trg.Result = agg
	}
	reg.Get("aggregatableTriggerData").ForEach(func(_, atd gjson.Result) bool {
		trg.AggregatableTriggerData = append(trg.AggregatableTriggerData, types.AggregatableTriggerData{
			KeyPiece:   atd.Get("keyPiece").String(),
			SourceKeys: stringList(atd.Get("sourceKeys")),
		})
		return true
	})
	// Newer Chrome reports [{values:[{key,value}], filters}], older a flat list.
	reg.Get("aggregatableValues").ForEach(func(_, av gjson.Result) bool {
		vals := av.Get("values")
		if !vals.Exists() {
			vals = gjson.Parse("[" + av.Raw + "]")
		}
		vals.ForEach(func(_, kv gjson.Result) bool {
			if trg.AggregatableValues == nil {
				trg.AggregatableValues = map[string]int{}
			}
			trg.AggregatableValues[kv.Get("key").String()] = int(kv.Get("value").Int())
			return true
		})
		return true
	})
	reg.Get("eventTriggerData").ForEach(func(_, etd gjson.Result) bool {
		trg.EventTriggerData = append(trg.EventTriggerData, types.EventTriggerData{
			TriggerData: etd.Get("data").String(),
			Priority:    etd.Get("priority").String(),
		})
		return true
	})
	return trg
}

// stringList flattens a JSON string array.
func stringList(r gjson.Result) []string {
	arr := r.Array()
	if len(arr) == 0 {
		return nil
	}
	out := make([]string, 0, len(arr))
	for _, v := range arr {
		out = append(out, v.String())
	}
	return out
}
