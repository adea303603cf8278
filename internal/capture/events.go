// events.go — Input event shapes accepted by the ingestion entry points.
// Decoders (internal/cdp, internal/webrequest) build these from raw payloads.
package capture

import "github.com/brennhill/psat-core/internal/types"

// RequestContext is the request half carrying frame and URL
// (Network.requestWillBeSent).
type RequestContext struct {
	RequestID string
	FrameID   string
	URL       string
	Timestamp float64
}

// RequestCookie is one cookie attached to an outgoing request with the
// reasons the browser excluded it, if any.
type RequestCookie struct {
	Cookie         types.ParsedCookie
	BlockedReasons []string
	WarningReasons []string
}

// RequestHeaders is the request half carrying cookies
// (Network.requestWillBeSentExtraInfo).
type RequestHeaders struct {
	RequestID string
	Cookies   []RequestCookie
	Timestamp float64
}

// ResponseContext is the response half carrying frame and URL
// (Network.responseReceived).
type ResponseContext struct {
	RequestID string
	FrameID   string
	URL       string
	Timestamp float64
}

// SetCookieLine is one Set-Cookie line of a response. Cookie is filled when
// the source already parsed it; otherwise Line is parsed against the
// response URL once both halves are known.
type SetCookieLine struct {
	Line           string
	Cookie         *types.ParsedCookie
	BlockedReasons []string
	WarningReasons []string
}

// ResponseHeaders is the response half carrying Set-Cookie lines
// (Network.responseReceivedExtraInfo).
type ResponseHeaders struct {
	RequestID string
	SetCookie []SetCookieLine
	Timestamp float64
}

// WebRequestHeaders is one lightweight-source header event. It is complete
// on arrival: frame, parent frame, URL and headers travel together.
type WebRequestHeaders struct {
	RequestID     string
	FrameID       string
	ParentFrameID string // empty for the main frame
	URL           string
	Direction     types.HeaderType // request or response
	Headers       []Header
	Timestamp     float64
}

// Header is one HTTP header.
type Header struct {
	Name  string
	Value string
}

// JavaScriptCookies is a batch of document.cookie writes from one frame.
type JavaScriptCookies struct {
	FrameID string
	URL     string
	Writes  []string
}

// CookieIssue is a cookie problem reported by the browser's issue auditor.
type CookieIssue struct {
	RequestID        string
	FrameID          string
	URL              string
	Name             string
	Domain           string
	Path             string
	ExclusionReasons []string
	WarningReasons   []string
	Operation        string // SetCookie | ReadCookie
}

// PrebidReport is one batch from the Prebid.js content script.
type PrebidReport struct {
	Version string
	Events  []types.PrebidEvent
	Errors  []string
}
