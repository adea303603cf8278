// prebid.go — Prebid.js auction types reported by the content script.
package types

// Prebid.js event names forwarded by the content script.
const (
	PrebidAuctionInit   = "auctionInit"
	PrebidBidRequested  = "bidRequested"
	PrebidBidResponse   = "bidResponse"
	PrebidNoBid         = "noBid"
	PrebidBidWon        = "bidWon"
	PrebidAuctionEnd    = "auctionEnd"
	PrebidAdRenderError = "adRenderFailed"
)

// PrebidEvent is one Prebid.js event within an auction.
type PrebidEvent struct {
	AuctionID     string  `json:"auction_id"`
	Type          string  `json:"type"`
	Bidder        string  `json:"bidder,omitempty"`
	AdUnitCode    string  `json:"ad_unit_code,omitempty"`
	CPM           float64 `json:"cpm,omitempty"`
	Currency      string  `json:"currency,omitempty"`
	Error         string  `json:"error,omitempty"`
	Time          float64 `json:"time"` // ms since epoch, as reported by Prebid.js
	ElapsedMs     float64 `json:"elapsed_ms"`
	FormattedTime string  `json:"formatted_time"`
}

// PrebidAuction aggregates events sharing an auction id.
type PrebidAuction struct {
	AuctionID   string        `json:"auction_id"`
	AdUnitCodes []string      `json:"ad_unit_codes"`
	Bidders     []string      `json:"bidders"`
	Winners     []PrebidEvent `json:"winners,omitempty"`
	StartedAt   float64       `json:"started_at"`
	Events      []PrebidEvent `json:"events"`
}

// PrebidSnapshot is the per-tab Prebid view handed to UI surfaces.
type PrebidSnapshot struct {
	Version  string                   `json:"version,omitempty"`
	Auctions map[string]PrebidAuction `json:"auctions"`
	Errors   []string                 `json:"errors,omitempty"`
}
