// snapshot.go — Per-tab snapshot and dirty-counter categories.
package types

import "time"

// Category names a dirty counter and the snapshot section it guards.
type Category string

const (
	CategoryCookies     Category = "cookies"
	CategoryAuctions    Category = "auctions"
	CategoryAttribution Category = "attribution"
	CategoryPrebid      Category = "prebid"
)

// AllCategories lists every category in push order.
var AllCategories = []Category{CategoryCookies, CategoryAuctions, CategoryAttribution, CategoryPrebid}

// DirtyCounters counts merges per category since the last successful push.
type DirtyCounters struct {
	Cookies     int `json:"cookies"`
	Auctions    int `json:"auctions"`
	Attribution int `json:"attribution"`
	Prebid      int `json:"prebid"`
}

// Add increments the counter for cat by n.
func (d *DirtyCounters) Add(cat Category, n int) {
	switch cat {
	case CategoryCookies:
		d.Cookies += n
	case CategoryAuctions:
		d.Auctions += n
	case CategoryAttribution:
		d.Attribution += n
	case CategoryPrebid:
		d.Prebid += n
	}
}

// Get returns the counter for cat.
func (d DirtyCounters) Get(cat Category) int {
	switch cat {
	case CategoryCookies:
		return d.Cookies
	case CategoryAuctions:
		return d.Auctions
	case CategoryAttribution:
		return d.Attribution
	case CategoryPrebid:
		return d.Prebid
	}
	return 0
}

// Any reports whether any category is non-zero.
func (d DirtyCounters) Any() bool {
	return d.Cookies > 0 || d.Auctions > 0 || d.Attribution > 0 || d.Prebid > 0
}

// Dirty returns the non-zero categories in push order.
func (d DirtyCounters) Dirty() []Category {
	var out []Category
	for _, cat := range AllCategories {
		if d.Get(cat) > 0 {
			out = append(out, cat)
		}
	}
	return out
}

// TabSnapshot is a read-only copy of one tab's aggregated state.
// Sections not requested by the caller are left nil.
type TabSnapshot struct {
	TabID        int                  `json:"tab_id"`
	URL          string               `json:"url"`
	CapturedAt   time.Time            `json:"captured_at"`
	Cookies      map[string]Cookie    `json:"cookies,omitempty"`
	FrameOrigins map[string][]string  `json:"frame_origins,omitempty"`
	Auctions     *AuctionSnapshot     `json:"auctions,omitempty"`
	Attribution  *AttributionSnapshot `json:"attribution,omitempty"`
	Prebid       *PrebidSnapshot      `json:"prebid,omitempty"`
}

// TabSummary is the lightweight listing entry for GET /tabs.
type TabSummary struct {
	TabID        int           `json:"tab_id"`
	URL          string        `json:"url"`
	State        string        `json:"state"`
	DevToolsOpen bool          `json:"devtools_open"`
	PopupOpen    bool          `json:"popup_open"`
	CookieCount  int           `json:"cookie_count"`
	Dirty        DirtyCounters `json:"dirty"`
}
