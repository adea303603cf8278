// store.go — Attribution Reporting registrations for one tab.
// Sources and triggers are identity-keyed; a repeated delivery is a no-op.
// Each trigger is linked to the most recently registered source with the same
// tab origin that satisfies one of the match predicates. Triggers with no
// such source stay pending and are retried whenever a new source registers.
package attribution

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/brennhill/psat-core/internal/types"
	"github.com/brennhill/psat-core/internal/util"
)

// ErrNoIdentity is returned for registrations without a reporting origin or
// registration id.
var ErrNoIdentity = errors.New("attribution: registration has no identity")

// Store is not safe for concurrent use.
type Store struct {
	sources  []types.SourceRegistration
	triggers []types.TriggerRegistration
	srcIdx   map[string]int
	trgIdx   map[string]int
	base     float64
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		srcIdx: make(map[string]int),
		trgIdx: make(map[string]int),
	}
}

// SourceIdentity returns the identity key of src.
func SourceIdentity(src types.SourceRegistration) (string, error) {
	id := src.SourceEventID
	if id == "" {
		id = src.RequestID
	}
	if src.ReportingOrigin == "" || id == "" {
		return "", ErrNoIdentity
	}
	return src.ReportingOrigin + "|" + id + "|" + src.TabOrigin, nil
}

// TriggerIdentity returns the identity key of trg. Triggers without a request
// id fall back to their registration time.
func TriggerIdentity(trg types.TriggerRegistration) (string, error) {
	if trg.ReportingOrigin == "" {
		return "", ErrNoIdentity
	}
	id := trg.RequestID
	if id == "" {
		if trg.Time <= 0 {
			return "", ErrNoIdentity
		}
		id = "t" + strconv.FormatFloat(trg.Time, 'f', -1, 64)
	}
	return trg.ReportingOrigin + "|" + id, nil
}

// RegisterSource records src and links any pending triggers it matches.
// It returns the number of triggers newly matched.
func (s *Store) RegisterSource(src types.SourceRegistration) (added bool, matched int, err error) {
	key, err := SourceIdentity(src)
	if err != nil {
		return false, 0, fmt.Errorf("register source: %w", err)
	}
	if i, ok := s.srcIdx[key]; ok {
		if s.sources[i].Result == "" {
			s.sources[i].Result = src.Result
		}
		return false, 0, nil
	}
	src.ID = key
	src.DestinationSites = append([]string(nil), src.DestinationSites...)
	src.TriggerData = append([]string(nil), src.TriggerData...)
	src.AggregationKeys = copyKeys(src.AggregationKeys)
	s.srcIdx[key] = len(s.sources)
	s.sources = append(s.sources, src)
	if !s.rebase(src.Time) {
		last := &s.sources[len(s.sources)-1]
		stamp(&last.ElapsedMs, &last.FormattedTime, s.base, last.Time)
	}

	for i := range s.triggers {
		trg := &s.triggers[i]
		if trg.MatchedSourceID != "" {
			continue
		}
		if by := matchPredicate(src, *trg); by != "" {
			trg.MatchedSourceID = key
			trg.MatchedBy = by
			matched++
		}
	}
	return true, matched, nil
}

// RegisterTrigger records trg and tries to match it against known sources.
func (s *Store) RegisterTrigger(trg types.TriggerRegistration) (added bool, err error) {
	key, err := TriggerIdentity(trg)
	if err != nil {
		return false, fmt.Errorf("register trigger: %w", err)
	}
	if i, ok := s.trgIdx[key]; ok {
		if s.triggers[i].Result == "" {
			s.triggers[i].Result = trg.Result
		}
		return false, nil
	}
	trg.ID = key
	trg.MatchedSourceID, trg.MatchedBy = "", ""
	trg.AggregatableTriggerData = append([]types.AggregatableTriggerData(nil), trg.AggregatableTriggerData...)
	trg.EventTriggerData = append([]types.EventTriggerData(nil), trg.EventTriggerData...)
	trg.AggregatableValues = copyValues(trg.AggregatableValues)

	// Newest source first.
	for i := len(s.sources) - 1; i >= 0; i-- {
		if by := matchPredicate(s.sources[i], trg); by != "" {
			trg.MatchedSourceID = s.sources[i].ID
			trg.MatchedBy = by
			break
		}
	}
	s.trgIdx[key] = len(s.triggers)
	s.triggers = append(s.triggers, trg)
	if !s.rebase(trg.Time) {
		last := &s.triggers[len(s.triggers)-1]
		stamp(&last.ElapsedMs, &last.FormattedTime, s.base, last.Time)
	}
	return true, nil
}

// Pending returns the number of unmatched triggers.
func (s *Store) Pending() int {
	n := 0
	for _, t := range s.triggers {
		if t.MatchedSourceID == "" {
			n++
		}
	}
	return n
}

// Len returns the number of registrations.
func (s *Store) Len() int { return len(s.sources) + len(s.triggers) }

// Snapshot returns copies of all registrations in arrival order.
func (s *Store) Snapshot() types.AttributionSnapshot {
	out := types.AttributionSnapshot{
		Sources:  make([]types.SourceRegistration, len(s.sources)),
		Triggers: make([]types.TriggerRegistration, len(s.triggers)),
	}
	for i, src := range s.sources {
		src.DestinationSites = append([]string(nil), src.DestinationSites...)
		src.TriggerData = append([]string(nil), src.TriggerData...)
		src.AggregationKeys = copyKeys(src.AggregationKeys)
		out.Sources[i] = src
	}
	for i, trg := range s.triggers {
		trg.AggregatableTriggerData = append([]types.AggregatableTriggerData(nil), trg.AggregatableTriggerData...)
		trg.EventTriggerData = append([]types.EventTriggerData(nil), trg.EventTriggerData...)
		trg.AggregatableValues = copyValues(trg.AggregatableValues)
		out.Triggers[i] = trg
	}
	return out
}

// Clear drops every registration.
func (s *Store) Clear() {
	s.sources, s.triggers = nil, nil
	s.srcIdx = make(map[string]int)
	s.trgIdx = make(map[string]int)
	s.base = 0
}

// rebase moves the timeline origin to t when t predates it, restamping every
// registration. It reports whether the origin moved.
func (s *Store) rebase(t float64) bool {
	if t <= 0 || (s.base != 0 && t >= s.base) {
		return false
	}
	s.base = t
	for i := range s.sources {
		stamp(&s.sources[i].ElapsedMs, &s.sources[i].FormattedTime, s.base, s.sources[i].Time)
	}
	for i := range s.triggers {
		stamp(&s.triggers[i].ElapsedMs, &s.triggers[i].FormattedTime, s.base, s.triggers[i].Time)
	}
	return true
}

func stamp(elapsed *float64, formatted *string, base, t float64) {
	if t <= 0 {
		*elapsed, *formatted = 0, util.FormatElapsed(0)
		return
	}
	*elapsed = util.ElapsedMs(base, t)
	*formatted = util.FormatElapsed(*elapsed)
}

// matchPredicate returns the first predicate linking trg to src, or "".
func matchPredicate(src types.SourceRegistration, trg types.TriggerRegistration) string {
	if src.TabOrigin != trg.TabOrigin {
		return ""
	}
	for _, atd := range trg.AggregatableTriggerData {
		for _, k := range atd.SourceKeys {
			if _, ok := src.AggregationKeys[k]; ok {
				return types.MatchAggregatableTriggerData
			}
		}
	}
	for k := range trg.AggregatableValues {
		if _, ok := src.AggregationKeys[k]; ok {
			return types.MatchAggregatableValues
		}
	}
	for _, etd := range trg.EventTriggerData {
		for _, d := range src.TriggerData {
			if etd.TriggerData == d {
				return types.MatchEventTriggerData
			}
		}
	}
	return ""
}

func copyKeys(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func copyValues(m map[string]int) map[string]int {
	if m == nil {
		return nil
	}
	out := make(map[string]int, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
