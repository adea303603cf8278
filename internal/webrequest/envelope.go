// envelope.go — Wire envelopes posted by the extension's webRequest,
// webNavigation, tabs and content-script listeners.
package webrequest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// Envelope types.
const (
	TypeTabCreated        = "tab-created"
	TypeTabRemoved        = "tab-removed"
	TypeNavigationStarted = "navigation-started"
	TypeFrameNavigated    = "frame-navigated"
	TypeBeforeSendHeaders = "before-send-headers"
	TypeHeadersReceived   = "headers-received"
	TypeJSCookies         = "js-cookies"
	TypePrebid            = "prebid"
	TypeSwitchTab         = "switch-tab"
)

// ErrUnknownType is returned for envelopes with an unrecognized type.
var ErrUnknownType = errors.New("webrequest: unknown envelope type")

// ErrNoTab is returned for envelopes without a usable tab id. Requests not
// tied to a tab (service workers, the extension itself) report tabId -1.
var ErrNoTab = errors.New("webrequest: envelope has no tab")

// Envelope is one extension event. Fields not used by a type are empty.
type Envelope struct {
	Type            string       `json:"type"`
	TabID           int          `json:"tabId"`
	FrameID         *int         `json:"frameId,omitempty"`
	ParentFrameID   *int         `json:"parentFrameId,omitempty"`
	RequestID       string       `json:"requestId,omitempty"`
	URL             string       `json:"url,omitempty"`
	TimeStamp       float64      `json:"timeStamp,omitempty"` // ms since epoch
	RequestHeaders  []HTTPHeader `json:"requestHeaders,omitempty"`
	ResponseHeaders []HTTPHeader `json:"responseHeaders,omitempty"`

	Cookies []string `json:"cookies,omitempty"` // js-cookies: document.cookie writes

	// prebid
	Version string        `json:"version,omitempty"`
	Events  []PrebidEvent `json:"events,omitempty"`
	Errors  []string      `json:"errors,omitempty"`
}

// HTTPHeader mirrors webRequest.HttpHeaders entries.
type HTTPHeader struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// PrebidEvent is one pbjs.onEvent record as the content script forwards it.
type PrebidEvent struct {
	EventType  string  `json:"eventType"`
	AuctionID  string  `json:"auctionId"`
	Bidder     string  `json:"bidderCode,omitempty"`
	AdUnitCode string  `json:"adUnitCode,omitempty"`
	CPM        float64 `json:"cpm,omitempty"`
	Currency   string  `json:"currency,omitempty"`
	Reason     string  `json:"reason,omitempty"`
	Timestamp  float64 `json:"timestamp"` // ms since epoch
}

// Decode parses a single envelope or a JSON array of envelopes.
func Decode(data []byte) ([]Envelope, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, nil
	}
	if data[0] == '[' {
		var batch []Envelope
		if err := json.Unmarshal(data, &batch); err != nil {
			return nil, fmt.Errorf("webrequest: decode batch: %w", err)
		}
		return batch, nil
	}
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("webrequest: decode envelope: %w", err)
	}
	return []Envelope{env}, nil
}

// frameID renders the numeric webRequest frame id. 0 is the main frame.
func (e Envelope) frameID() string {
	if e.FrameID == nil {
		return ""
	}
	return strconv.Itoa(*e.FrameID)
}

// parentFrameID renders the parent id; -1 (no parent) becomes "".
func (e Envelope) parentFrameID() string {
	if e.ParentFrameID == nil || *e.ParentFrameID < 0 {
		return ""
	}
	return strconv.Itoa(*e.ParentFrameID)
}

// isTopLevel reports whether the envelope concerns the main frame.
func (e Envelope) isTopLevel() bool {
	return e.FrameID == nil || *e.FrameID == 0
}

// seconds converts the envelope's millisecond timestamp.
func (e Envelope) seconds() float64 {
	return e.TimeStamp / 1000
}
