// store.go — Prebid.js auctions reported by the page's content script.
package prebid

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"

	"github.com/brennhill/psat-core/internal/types"
	"github.com/brennhill/psat-core/internal/util"
)

// ErrInvalidEvent is returned for events missing a type, time or auction id.
var ErrInvalidEvent = errors.New("prebid: invalid event")

// Store aggregates one tab's Prebid.js activity. Not safe for concurrent use.
type Store struct {
	version  string
	auctions map[string]*auction
	errs     []string
	errSeen  map[string]struct{}
}

type auction struct {
	rec     types.PrebidAuction
	adUnits map[string]struct{}
	bidders map[string]struct{}
	seen    map[string]struct{}
}

func NewStore() *Store {
	return &Store{
		auctions: make(map[string]*auction),
		errSeen:  make(map[string]struct{}),
	}
}

// SetVersion records the detected Prebid.js version. The first one sticks.
func (s *Store) SetVersion(v string) bool {
	if v == "" || s.version != "" {
		return false
	}
	s.version = v
	return true
}

// RecordError appends a page-level Prebid error, ignoring repeats.
func (s *Store) RecordError(msg string) bool {
	if msg == "" {
		return false
	}
	if _, dup := s.errSeen[msg]; dup {
		return false
	}
	s.errSeen[msg] = struct{}{}
	s.errs = append(s.errs, msg)
	return true
}

// Record merges ev into its auction. Render failures carry no auction id and
// are kept as page-level errors.
func (s *Store) Record(ev types.PrebidEvent) (bool, error) {
	if ev.Type == "" || ev.Time <= 0 {
		return false, fmt.Errorf("%w: %q", ErrInvalidEvent, ev.Type)
	}
	if ev.Type == types.PrebidAdRenderError && ev.AuctionID == "" {
		return s.RecordError(renderError(ev)), nil
	}
	if ev.AuctionID == "" {
		return false, fmt.Errorf("%w: %s has no auction id", ErrInvalidEvent, ev.Type)
	}

	a, ok := s.auctions[ev.AuctionID]
	if !ok {
		a = &auction{
			rec:     types.PrebidAuction{AuctionID: ev.AuctionID},
			adUnits: make(map[string]struct{}),
			bidders: make(map[string]struct{}),
			seen:    make(map[string]struct{}),
		}
		s.auctions[ev.AuctionID] = a
	}
	id := identity(ev)
	if _, dup := a.seen[id]; dup {
		return false, nil
	}
	a.seen[id] = struct{}{}

	if ev.AdUnitCode != "" {
		a.adUnits[ev.AdUnitCode] = struct{}{}
	}
	if ev.Bidder != "" {
		a.bidders[ev.Bidder] = struct{}{}
	}
	if ev.Type == types.PrebidAdRenderError {
		s.RecordError(renderError(ev))
	}

	i := sort.Search(len(a.rec.Events), func(i int) bool { return a.rec.Events[i].Time > ev.Time })
	a.rec.Events = append(a.rec.Events, types.PrebidEvent{})
	copy(a.rec.Events[i+1:], a.rec.Events[i:])
	a.rec.Events[i] = ev

	// Prebid reports milliseconds since epoch.
	if len(a.rec.Events) == 1 || ev.Time < a.rec.StartedAt {
		a.rec.StartedAt = ev.Time
		for j := range a.rec.Events {
			stamp(&a.rec.Events[j], a.rec.StartedAt)
		}
	} else {
		stamp(&a.rec.Events[i], a.rec.StartedAt)
	}
	return true, nil
}

// Len returns the number of auctions.
func (s *Store) Len() int { return len(s.auctions) }

// Snapshot returns a deep copy of the store.
func (s *Store) Snapshot() types.PrebidSnapshot {
	out := types.PrebidSnapshot{
		Version:  s.version,
		Auctions: make(map[string]types.PrebidAuction, len(s.auctions)),
		Errors:   append([]string(nil), s.errs...),
	}
	for id, a := range s.auctions {
		rec := a.rec
		rec.Events = append([]types.PrebidEvent{}, a.rec.Events...)
		rec.AdUnitCodes = sortedKeys(a.adUnits)
		rec.Bidders = sortedKeys(a.bidders)
		rec.Winners = nil
		for _, e := range rec.Events {
			if e.Type == types.PrebidBidWon {
				rec.Winners = append(rec.Winners, e)
			}
		}
		out.Auctions[id] = rec
	}
	return out
}

// Clear drops everything including the detected version.
func (s *Store) Clear() {
	s.version = ""
	s.auctions = make(map[string]*auction)
	s.errs = nil
	s.errSeen = make(map[string]struct{})
}

func stamp(ev *types.PrebidEvent, base float64) {
	ev.ElapsedMs = math.Round((ev.Time-base)*1e3) / 1e3
	ev.FormattedTime = util.FormatElapsed(ev.ElapsedMs)
}

func identity(ev types.PrebidEvent) string {
	return ev.Type + "|" + strconv.FormatFloat(ev.Time, 'f', -1, 64) + "|" +
		ev.Bidder + "|" + ev.AdUnitCode + "|" + strconv.FormatFloat(ev.CPM, 'f', -1, 64)
}

func renderError(ev types.PrebidEvent) string {
	if ev.AdUnitCode == "" {
		return ev.Error
	}
	return ev.AdUnitCode + ": " + ev.Error
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
