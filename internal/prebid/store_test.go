package prebid

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brennhill/psat-core/internal/types"
)

func pev(typ, bidder, unit string, at float64) types.PrebidEvent {
	return types.PrebidEvent{AuctionID: "pb1", Type: typ, Bidder: bidder, AdUnitCode: unit, Time: at}
}

func TestAuctionAggregation(t *testing.T) {
	t.Parallel()

	s := NewStore()
	for _, e := range []types.PrebidEvent{
		pev(types.PrebidAuctionInit, "", "top", 1_700_000_000_000),
		pev(types.PrebidBidRequested, "appnexus", "top", 1_700_000_000_010),
		pev(types.PrebidBidRequested, "rubicon", "side", 1_700_000_000_012),
		pev(types.PrebidNoBid, "rubicon", "side", 1_700_000_000_300),
	} {
		added, err := s.Record(e)
		require.NoError(t, err)
		require.True(t, added)
	}
	won := pev(types.PrebidBidWon, "appnexus", "top", 1_700_000_000_450)
	won.CPM = 1.75
	_, err := s.Record(won)
	require.NoError(t, err)

	snap := s.Snapshot()
	a := snap.Auctions["pb1"]
	assert.Equal(t, []string{"side", "top"}, a.AdUnitCodes)
	assert.Equal(t, []string{"appnexus", "rubicon"}, a.Bidders)
	require.Len(t, a.Winners, 1)
	assert.Equal(t, 1.75, a.Winners[0].CPM)
	require.Len(t, a.Events, 5)
	assert.Equal(t, 0.0, a.Events[0].ElapsedMs)
	assert.Equal(t, 450.0, a.Events[4].ElapsedMs)
	assert.Equal(t, "450ms", a.Events[4].FormattedTime)
}

func TestLateEarlierEventRebaselines(t *testing.T) {
	t.Parallel()

	s := NewStore()
	_, _ = s.Record(pev(types.PrebidBidResponse, "appnexus", "top", 2_000))
	_, _ = s.Record(pev(types.PrebidAuctionInit, "", "top", 1_000))

	a := s.Snapshot().Auctions["pb1"]
	assert.Equal(t, types.PrebidAuctionInit, a.Events[0].Type)
	assert.Equal(t, 1000.0, a.Events[1].ElapsedMs)
	assert.Equal(t, 1_000.0, a.StartedAt)
}

func TestDuplicateEventIgnored(t *testing.T) {
	t.Parallel()

	s := NewStore()
	e := pev(types.PrebidBidResponse, "appnexus", "top", 10)
	added, _ := s.Record(e)
	assert.True(t, added)
	added, _ = s.Record(e)
	assert.False(t, added)
	assert.Len(t, s.Snapshot().Auctions["pb1"].Events, 1)
}

func TestVersionAndErrors(t *testing.T) {
	t.Parallel()

	s := NewStore()
	assert.True(t, s.SetVersion("8.52.0"))
	assert.False(t, s.SetVersion("9.0.0"))

	fail := types.PrebidEvent{Type: types.PrebidAdRenderError, AdUnitCode: "top", Error: "no ad", Time: 5}
	added, err := s.Record(fail)
	require.NoError(t, err)
	assert.True(t, added)
	added, _ = s.Record(fail)
	assert.False(t, added)

	snap := s.Snapshot()
	assert.Equal(t, "8.52.0", snap.Version)
	assert.Equal(t, []string{"top: no ad"}, snap.Errors)
	assert.Equal(t, 0, s.Len())

	s.Clear()
	assert.Empty(t, s.Snapshot().Version)
}

func TestInvalidEvents(t *testing.T) {
	t.Parallel()

	s := NewStore()
	_, err := s.Record(types.PrebidEvent{AuctionID: "x", Time: 1})
	assert.ErrorIs(t, err, ErrInvalidEvent)
	_, err = s.Record(types.PrebidEvent{Type: types.PrebidBidWon, Time: 1})
	assert.ErrorIs(t, err, ErrInvalidEvent)
}
