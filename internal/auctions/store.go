// store.go — Per-tab Protected Audience auction aggregation.
// Events are grouped by unique auction id and kept in time order. Every event
// carries its elapsed time from the earliest event of its auction; a late
// event that predates the current earliest rebaselines the whole auction.
// Interest-group events outside any auction form their own timeline.
package auctions

import (
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/brennhill/psat-core/internal/types"
	"github.com/brennhill/psat-core/internal/util"
)

// ErrInvalidEvent is returned for events without a type or time.
var ErrInvalidEvent = errors.New("auctions: event has no type or time")

// Store holds one tab's auctions. Not safe for concurrent use.
type Store struct {
	auctions map[string]*auction
	order    []string // auction ids in first-seen order

	groups timeline // interest-group events without an auction id
}

type auction struct {
	rec        types.Auction
	components map[string]struct{}
	tl         timeline
}

type timeline struct {
	events []types.AuctionEvent
	seen   map[string]struct{}
	base   float64
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{auctions: make(map[string]*auction)}
}

// Record merges ev. added is false for duplicate deliveries.
func (s *Store) Record(ev types.AuctionEvent) (added bool, err error) {
	if ev.Type == "" || ev.Time <= 0 {
		return false, fmt.Errorf("%w: %q", ErrInvalidEvent, ev.Type)
	}
	if ev.UniqueAuctionID == "" {
		return s.groups.add(ev), nil
	}

	a := s.auction(ev.UniqueAuctionID)
	if ev.ParentAuctionID != "" && ev.ParentAuctionID != ev.UniqueAuctionID {
		a.rec.ParentAuctionID = ev.ParentAuctionID
		parent := s.auction(ev.ParentAuctionID)
		parent.components[ev.UniqueAuctionID] = struct{}{}
	}
	if !a.tl.add(ev) {
		return false, nil
	}
	a.rec.StartedAt = a.tl.base
	return true, nil
}

// Len returns the number of auctions plus standalone interest-group events.
func (s *Store) Len() int {
	return len(s.auctions) + len(s.groups.events)
}

// Auction returns a copy of one auction.
func (s *Store) Auction(id string) (types.Auction, bool) {
	a, ok := s.auctions[id]
	if !ok {
		return types.Auction{}, false
	}
	return a.snapshot(), true
}

// Snapshot returns deep copies of every auction and interest-group event.
func (s *Store) Snapshot() types.AuctionSnapshot {
	out := types.AuctionSnapshot{
		Auctions:            make(map[string]types.Auction, len(s.auctions)),
		InterestGroupEvents: append([]types.AuctionEvent{}, s.groups.events...),
	}
	for _, id := range s.order {
		out.Auctions[id] = s.auctions[id].snapshot()
	}
	return out
}

// Clear drops everything.
func (s *Store) Clear() {
	s.auctions = make(map[string]*auction)
	s.order = nil
	s.groups = timeline{}
}

func (s *Store) auction(id string) *auction {
	a, ok := s.auctions[id]
	if !ok {
		a = &auction{
			rec:        types.Auction{UniqueAuctionID: id},
			components: make(map[string]struct{}),
		}
		s.auctions[id] = a
		s.order = append(s.order, id)
	}
	return a
}

func (a *auction) snapshot() types.Auction {
	rec := a.rec
	rec.Events = append([]types.AuctionEvent{}, a.tl.events...)
	rec.ComponentAuctions = make([]string, 0, len(a.components))
	for id := range a.components {
		rec.ComponentAuctions = append(rec.ComponentAuctions, id)
	}
	sort.Strings(rec.ComponentAuctions)
	return rec
}

func (tl *timeline) add(ev types.AuctionEvent) bool {
	if tl.seen == nil {
		tl.seen = make(map[string]struct{})
	}
	id := eventIdentity(ev)
	if _, dup := tl.seen[id]; dup {
		return false
	}
	tl.seen[id] = struct{}{}

	// Insert in time order; equal times keep arrival order.
	i := sort.Search(len(tl.events), func(i int) bool { return tl.events[i].Time > ev.Time })
	tl.events = append(tl.events, types.AuctionEvent{})
	copy(tl.events[i+1:], tl.events[i:])
	tl.events[i] = ev

	if len(tl.events) == 1 || ev.Time < tl.base {
		tl.base = ev.Time
		for j := range tl.events {
			stamp(&tl.events[j], tl.base)
		}
		return true
	}
	stamp(&tl.events[i], tl.base)
	return true
}

func stamp(ev *types.AuctionEvent, base float64) {
	ev.ElapsedMs = util.ElapsedMs(base, ev.Time)
	ev.FormattedTime = util.FormatElapsed(ev.ElapsedMs)
}

func eventIdentity(ev types.AuctionEvent) string {
	return ev.UniqueAuctionID + "|" + ev.Type + "|" +
		strconv.FormatFloat(ev.Time, 'f', -1, 64) + "|" +
		ev.OwnerOrigin + "|" + ev.Name + "|" +
		strconv.FormatFloat(ev.Bid, 'f', -1, 64)
}
