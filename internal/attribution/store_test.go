package attribution

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brennhill/psat-core/internal/types"
)

const origin = "https://shop.test"

func source(eventID string, at float64) types.SourceRegistration {
	return types.SourceRegistration{
		TabOrigin:       origin,
		ReportingOrigin: "https://adtech.test",
		SourceEventID:   eventID,
		AggregationKeys: map[string]string{"campaignCounts": "0x159"},
		TriggerData:     []string{"1", "2"},
		Time:            at,
	}
}

func trigger(reqID string, at float64) types.TriggerRegistration {
	return types.TriggerRegistration{
		TabOrigin:       origin,
		ReportingOrigin: "https://adtech.test",
		RequestID:       reqID,
		Time:            at,
	}
}

func TestTriggerMatchesByPriority(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		trg  func(types.TriggerRegistration) types.TriggerRegistration
		want string
	}{
		{
			name: "aggregatable trigger data wins over the others",
			trg: func(tr types.TriggerRegistration) types.TriggerRegistration {
				tr.AggregatableTriggerData = []types.AggregatableTriggerData{{KeyPiece: "0x400", SourceKeys: []string{"campaignCounts"}}}
				tr.AggregatableValues = map[string]int{"campaignCounts": 32768}
				tr.EventTriggerData = []types.EventTriggerData{{TriggerData: "1"}}
				return tr
			},
			want: types.MatchAggregatableTriggerData,
		},
		{
			name: "aggregatable values",
			trg: func(tr types.TriggerRegistration) types.TriggerRegistration {
				tr.AggregatableTriggerData = []types.AggregatableTriggerData{{SourceKeys: []string{"other"}}}
				tr.AggregatableValues = map[string]int{"campaignCounts": 1}
				tr.EventTriggerData = []types.EventTriggerData{{TriggerData: "1"}}
				return tr
			},
			want: types.MatchAggregatableValues,
		},
		{
			name: "event trigger data",
			trg: func(tr types.TriggerRegistration) types.TriggerRegistration {
				tr.EventTriggerData = []types.EventTriggerData{{TriggerData: "7"}, {TriggerData: "2"}}
				return tr
			},
			want: types.MatchEventTriggerData,
		},
		{
			name: "no predicate holds",
			trg: func(tr types.TriggerRegistration) types.TriggerRegistration {
				tr.EventTriggerData = []types.EventTriggerData{{TriggerData: "9"}}
				return tr
			},
			want: "",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s := NewStore()
			_, _, err := s.RegisterSource(source("e1", 100))
			require.NoError(t, err)
			added, err := s.RegisterTrigger(tt.trg(trigger("r1", 101)))
			require.NoError(t, err)
			require.True(t, added)

			snap := s.Snapshot()
			require.Len(t, snap.Triggers, 1)
			assert.Equal(t, tt.want, snap.Triggers[0].MatchedBy)
			if tt.want != "" {
				assert.Equal(t, snap.Sources[0].ID, snap.Triggers[0].MatchedSourceID)
			} else {
				assert.Empty(t, snap.Triggers[0].MatchedSourceID)
			}
		})
	}
}

func TestTriggerRequiresSameTabOrigin(t *testing.T) {
	t.Parallel()

	s := NewStore()
	src := source("e1", 100)
	src.TabOrigin = "https://news.test"
	_, _, _ = s.RegisterSource(src)

	trg := trigger("r1", 101)
	trg.EventTriggerData = []types.EventTriggerData{{TriggerData: "1"}}
	_, _ = s.RegisterTrigger(trg)
	assert.Equal(t, 1, s.Pending())
}

func TestLatestMatchingSourceWins(t *testing.T) {
	t.Parallel()

	s := NewStore()
	_, _, _ = s.RegisterSource(source("old", 100))
	_, _, _ = s.RegisterSource(source("new", 102))

	trg := trigger("r1", 103)
	trg.EventTriggerData = []types.EventTriggerData{{TriggerData: "1"}}
	_, _ = s.RegisterTrigger(trg)

	snap := s.Snapshot()
	assert.Equal(t, snap.Sources[1].ID, snap.Triggers[0].MatchedSourceID)
}

func TestPendingTriggerMatchedByLaterSource(t *testing.T) {
	t.Parallel()

	s := NewStore()
	trg := trigger("r1", 100)
	trg.AggregatableValues = map[string]int{"campaignCounts": 5}
	_, _ = s.RegisterTrigger(trg)
	require.Equal(t, 1, s.Pending())

	added, matched, err := s.RegisterSource(source("e1", 101))
	require.NoError(t, err)
	assert.True(t, added)
	assert.Equal(t, 1, matched)
	assert.Equal(t, 0, s.Pending())

	snap := s.Snapshot()
	assert.Equal(t, types.MatchAggregatableValues, snap.Triggers[0].MatchedBy)
}

func TestDuplicateRegistrationsAreNoOps(t *testing.T) {
	t.Parallel()

	s := NewStore()
	added, _, _ := s.RegisterSource(source("e1", 100))
	assert.True(t, added)
	added, _, _ = s.RegisterSource(source("e1", 100))
	assert.False(t, added)

	ok, _ := s.RegisterTrigger(trigger("r1", 101))
	assert.True(t, ok)
	ok, _ = s.RegisterTrigger(trigger("r1", 101))
	assert.False(t, ok)

	assert.Equal(t, 2, s.Len())
}

func TestElapsedFromFirstRegistration(t *testing.T) {
	t.Parallel()

	s := NewStore()
	_, _, _ = s.RegisterSource(source("e1", 100.5))
	_, _ = s.RegisterTrigger(trigger("r1", 101))
	// Late arrival that predates everything.
	_, _, _ = s.RegisterSource(source("e0", 100))

	snap := s.Snapshot()
	assert.Equal(t, 500.0, snap.Sources[0].ElapsedMs)
	assert.Equal(t, 0.0, snap.Sources[1].ElapsedMs)
	assert.Equal(t, "0s", snap.Sources[1].FormattedTime)
	assert.Equal(t, 1000.0, snap.Triggers[0].ElapsedMs)
	assert.Equal(t, "1s", snap.Triggers[0].FormattedTime)
}

func TestMissingIdentityRejected(t *testing.T) {
	t.Parallel()

	s := NewStore()
	_, _, err := s.RegisterSource(types.SourceRegistration{TabOrigin: origin})
	assert.ErrorIs(t, err, ErrNoIdentity)
	_, err = s.RegisterTrigger(types.TriggerRegistration{ReportingOrigin: "https://adtech.test"})
	assert.ErrorIs(t, err, ErrNoIdentity)
	assert.Equal(t, 0, s.Len())
}

func TestSnapshotIsDeepCopy(t *testing.T) {
	t.Parallel()

	s := NewStore()
	_, _, _ = s.RegisterSource(source("e1", 100))
	snap := s.Snapshot()
	snap.Sources[0].AggregationKeys["campaignCounts"] = "mutated"
	snap.Sources[0].TriggerData[0] = "mutated"

	again := s.Snapshot()
	assert.Equal(t, "0x159", again.Sources[0].AggregationKeys["campaignCounts"])
	assert.Equal(t, "1", again.Sources[0].TriggerData[0])

	s.Clear()
	assert.Equal(t, 0, s.Len())
}
