// auction.go — Protected Audience (FLEDGE) auction event types.
package types

// Auction event types reported by the browser.
const (
	AuctionEventStarted        = "started"
	AuctionEventConfigResolved = "configResolved"
	AuctionEventBid            = "bid"
	AuctionEventWin            = "win"
	AuctionEventJoin           = "join"
	AuctionEventLeave          = "leave"
	AuctionEventUpdate         = "update"
	AuctionEventLoaded         = "loaded"
)

// AuctionEvent is one interest-group or auction lifecycle event.
// Time is absolute (seconds since epoch); ElapsedMs and FormattedTime are
// relative to the earliest event of the same auction.
type AuctionEvent struct {
	UniqueAuctionID       string  `json:"unique_auction_id,omitempty"`
	ParentAuctionID       string  `json:"parent_auction_id,omitempty"`
	Type                  string  `json:"type"`
	OwnerOrigin           string  `json:"owner_origin,omitempty"`
	Name                  string  `json:"name,omitempty"`
	ComponentSellerOrigin string  `json:"component_seller_origin,omitempty"`
	Bid                   float64 `json:"bid,omitempty"`
	BidCurrency           string  `json:"bid_currency,omitempty"`
	Config                string  `json:"config,omitempty"` // raw auction config JSON
	Time                  float64 `json:"time"`
	ElapsedMs             float64 `json:"elapsed_ms"`
	FormattedTime         string  `json:"formatted_time"`
}

// Auction groups all events with the same unique auction id.
type Auction struct {
	UniqueAuctionID   string         `json:"unique_auction_id"`
	ParentAuctionID   string         `json:"parent_auction_id,omitempty"`
	ComponentAuctions []string       `json:"component_auctions,omitempty"`
	StartedAt         float64        `json:"started_at"`
	Events            []AuctionEvent `json:"events"`
}

// AuctionSnapshot is the per-tab auction view handed to UI surfaces.
type AuctionSnapshot struct {
	Auctions            map[string]Auction `json:"auctions"`
	InterestGroupEvents []AuctionEvent     `json:"interest_group_events"`
}
