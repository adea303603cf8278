package auctions

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brennhill/psat-core/internal/types"
)

func ev(id, typ string, at float64) types.AuctionEvent {
	return types.AuctionEvent{UniqueAuctionID: id, Type: typ, Time: at, OwnerOrigin: "https://dsp.test", Name: "shoes"}
}

func TestFirstEventIsZero(t *testing.T) {
	t.Parallel()

	s := NewStore()
	added, err := s.Record(ev("a1", types.AuctionEventStarted, 1000.0))
	require.NoError(t, err)
	require.True(t, added)
	_, _ = s.Record(ev("a1", types.AuctionEventBid, 1000.25))
	_, _ = s.Record(ev("a1", types.AuctionEventWin, 1001.5))

	a, ok := s.Auction("a1")
	require.True(t, ok)
	require.Len(t, a.Events, 3)
	assert.Equal(t, 0.0, a.Events[0].ElapsedMs)
	assert.Equal(t, "0s", a.Events[0].FormattedTime)
	assert.Equal(t, 250.0, a.Events[1].ElapsedMs)
	assert.Equal(t, "250ms", a.Events[1].FormattedTime)
	assert.Equal(t, 1500.0, a.Events[2].ElapsedMs)
	assert.Equal(t, "1.5s", a.Events[2].FormattedTime)
	assert.Equal(t, 1000.0, a.StartedAt)
}

func TestOutOfOrderEventRebaselines(t *testing.T) {
	t.Parallel()

	s := NewStore()
	_, _ = s.Record(ev("a1", types.AuctionEventBid, 1000.5))
	_, _ = s.Record(ev("a1", types.AuctionEventStarted, 1000.0))

	a, _ := s.Auction("a1")
	require.Len(t, a.Events, 2)
	assert.Equal(t, types.AuctionEventStarted, a.Events[0].Type)
	assert.Equal(t, 0.0, a.Events[0].ElapsedMs)
	assert.Equal(t, 500.0, a.Events[1].ElapsedMs)
	assert.Equal(t, 1000.0, a.StartedAt)
}

func TestDuplicateDeliveryIgnored(t *testing.T) {
	t.Parallel()

	s := NewStore()
	e := ev("a1", types.AuctionEventBid, 1000.0)
	e.Bid = 1.25
	added, _ := s.Record(e)
	assert.True(t, added)
	added, _ = s.Record(e)
	assert.False(t, added)

	e.Bid = 2
	added, _ = s.Record(e)
	assert.True(t, added, "a different bid is a different event")

	a, _ := s.Auction("a1")
	assert.Len(t, a.Events, 2)
}

func TestComponentAuctionsLinkToParent(t *testing.T) {
	t.Parallel()

	s := NewStore()
	child := ev("c1", types.AuctionEventStarted, 5.0)
	child.ParentAuctionID = "top"
	_, err := s.Record(child)
	require.NoError(t, err)

	top, ok := s.Auction("top")
	require.True(t, ok, "parent placeholder exists before its own events")
	assert.Equal(t, []string{"c1"}, top.ComponentAuctions)

	c, _ := s.Auction("c1")
	assert.Equal(t, "top", c.ParentAuctionID)
}

func TestInterestGroupEventsWithoutAuction(t *testing.T) {
	t.Parallel()

	s := NewStore()
	_, _ = s.Record(ev("", types.AuctionEventJoin, 50.0))
	_, _ = s.Record(ev("", types.AuctionEventLeave, 50.1))

	snap := s.Snapshot()
	assert.Empty(t, snap.Auctions)
	require.Len(t, snap.InterestGroupEvents, 2)
	assert.Equal(t, 100.0, snap.InterestGroupEvents[1].ElapsedMs)
	assert.Equal(t, 2, s.Len())
}

func TestInvalidEventRejected(t *testing.T) {
	t.Parallel()

	s := NewStore()
	_, err := s.Record(types.AuctionEvent{UniqueAuctionID: "a"})
	assert.ErrorIs(t, err, ErrInvalidEvent)
	_, err = s.Record(types.AuctionEvent{UniqueAuctionID: "a", Type: "bid"})
	assert.ErrorIs(t, err, ErrInvalidEvent)
	assert.Equal(t, 0, s.Len())
}

func TestClear(t *testing.T) {
	t.Parallel()

	s := NewStore()
	_, _ = s.Record(ev("a1", types.AuctionEventStarted, 1.0))
	_, _ = s.Record(ev("", types.AuctionEventJoin, 1.0))
	s.Clear()
	assert.Equal(t, 0, s.Len())
	snap := s.Snapshot()
	assert.Empty(t, snap.Auctions)
	assert.Empty(t, snap.InterestGroupEvents)
}
