// cookie.go — Cookie record types accumulated per tab.
// A Cookie is the merged view of every observation of one name+domain+path
// identity within a tab's page-load lifetime.
package types

// SessionExpiry is the expiry sentinel for cookies without Expires/Max-Age.
const SessionExpiry = "Session"

// Uncategorized is the classification used when the cookie dictionary has no
// entry for a name or is unavailable.
const Uncategorized = "Uncategorized"

// HeaderType records where a cookie was last seen. HeaderJavaScript is sticky.
type HeaderType string

const (
	HeaderRequest    HeaderType = "request"
	HeaderResponse   HeaderType = "response"
	HeaderJavaScript HeaderType = "javascript"
)

// BlockStatus summarizes blocking across one direction of network events.
type BlockStatus string

const (
	NotBlocked          BlockStatus = "NOT_BLOCKED"
	BlockedInAllEvents  BlockStatus = "BLOCKED_IN_ALL_EVENTS"
	BlockedInSomeEvents BlockStatus = "BLOCKED_IN_SOME_EVENTS"
	BlockUnknown        BlockStatus = "UNKNOWN"
)

// BlockingStatus is derived from a cookie's network events on every merge.
// Inbound covers response (Set-Cookie) events, outbound covers request events.
type BlockingStatus struct {
	Inbound  BlockStatus `json:"inbound_block"`
	Outbound BlockStatus `json:"outbound_block"`
}

// ParsedCookie holds the RFC 6265 attributes of a cookie.
type ParsedCookie struct {
	Name         string `json:"name"`
	Value        string `json:"value"`
	Domain       string `json:"domain"`
	Path         string `json:"path"`
	Expires      string `json:"expires"` // RFC3339 or SessionExpiry
	HTTPOnly     bool   `json:"http_only"`
	Secure       bool   `json:"secure"`
	SameSite     string `json:"same_site,omitempty"`
	Priority     string `json:"priority,omitempty"`
	PartitionKey string `json:"partition_key,omitempty"`
	Size         int    `json:"size"`
}

// NetworkEvent is one request or response that carried the cookie.
type NetworkEvent struct {
	RequestID      string   `json:"request_id"`
	URL            string   `json:"url,omitempty"`
	Timestamp      float64  `json:"timestamp"` // seconds, host clock
	Blocked        bool     `json:"blocked"`
	BlockedReasons []string `json:"blocked_reasons,omitempty"`
}

// NetworkEvents keeps request and response events in arrival order.
// Both lists are append-only for the lifetime of the record.
type NetworkEvents struct {
	RequestEvents  []NetworkEvent `json:"request_events"`
	ResponseEvents []NetworkEvent `json:"response_events"`
}

// Analytics is the classification attached from the cookie dictionary.
type Analytics struct {
	Platform       string `json:"platform"`
	Category       string `json:"category"`
	Description    string `json:"description,omitempty"`
	DataController string `json:"data_controller,omitempty"`
	Retention      string `json:"retention,omitempty"`
	GDPRURL        string `json:"gdpr_url,omitempty"`
}

// Cookie is the merged per-tab cookie record.
type Cookie struct {
	Key            string         `json:"key"`
	Parsed         ParsedCookie   `json:"parsed"`
	Analytics      Analytics      `json:"analytics"`
	URL            string         `json:"url,omitempty"`
	HeaderType     HeaderType     `json:"header_type,omitempty"`
	IsFirstParty   bool           `json:"is_first_party"`
	IsBlocked      bool           `json:"is_blocked"`
	BlockedReasons []string       `json:"blocked_reasons"`
	WarningReasons []string       `json:"warning_reasons"`
	NetworkEvents  NetworkEvents  `json:"network_events"`
	BlockingStatus BlockingStatus `json:"blocking_status"`
	FrameIDs       []string       `json:"frame_ids"`
}

// Clone returns a deep copy safe to hand to readers outside the store lock.
func (c Cookie) Clone() Cookie {
	out := c
	out.BlockedReasons = cloneStrings(c.BlockedReasons)
	out.WarningReasons = cloneStrings(c.WarningReasons)
	out.FrameIDs = cloneStrings(c.FrameIDs)
	out.NetworkEvents.RequestEvents = cloneNetworkEvents(c.NetworkEvents.RequestEvents)
	out.NetworkEvents.ResponseEvents = cloneNetworkEvents(c.NetworkEvents.ResponseEvents)
	return out
}

func cloneNetworkEvents(in []NetworkEvent) []NetworkEvent {
	if in == nil {
		return nil
	}
	out := make([]NetworkEvent, len(in))
	for i, ev := range in {
		ev.BlockedReasons = append([]string(nil), ev.BlockedReasons...)
		out[i] = ev
	}
	return out
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}
