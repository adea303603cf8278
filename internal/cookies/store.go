// store.go — Per-tab cookie map and merge policy.
package cookies

import (
	"fmt"
	"sort"

	"github.com/brennhill/psat-core/internal/types"
	"github.com/brennhill/psat-core/internal/util"
)

// Classifier maps a cookie to dictionary metadata. ok=false means unknown.
type Classifier interface {
	Classify(name, domain string) (types.Analytics, bool)
}

// Store holds one tab's cookies. Not safe for concurrent use.
type Store struct {
	cookies    map[string]*types.Cookie
	classifier Classifier
	pageURL    string
}

// NewStore returns an empty store. classifier may be nil.
func NewStore(classifier Classifier) *Store {
	return &Store{
		cookies:    make(map[string]*types.Cookie),
		classifier: classifier,
	}
}

// SetPageURL sets the top-level URL used for first-party classification and
// reclassifies existing records.
func (s *Store) SetPageURL(pageURL string) {
	s.pageURL = pageURL
	for _, c := range s.cookies {
		c.IsFirstParty = util.SameSite(c.Parsed.Domain, pageURL)
	}
}

// Merge folds obs into the record for its identity, creating it if needed,
// and returns a copy of the merged record.
func (s *Store) Merge(obs Observation) (types.Cookie, error) {
	key, err := obs.Key()
	if err != nil {
		return types.Cookie{}, err
	}
	if obs.Cookie.Path == "" {
		obs.Cookie.Path = "/"
	}
	existing, ok := s.cookies[key]
	if !ok {
		rec := s.newRecord(key, obs)
		s.cookies[key] = rec
		return rec.Clone(), nil
	}
	s.mergeInto(existing, obs)
	return existing.Clone(), nil
}

// MergeAll merges a batch. A failure on one item (including a panic) never
// stops the rest; merged counts the records actually written.
func (s *Store) MergeAll(batch []Observation) (merged int, errs []error) {
	for i := range batch {
		var err error
		ok := util.Recover(nil, "cookies.merge", func() {
			_, err = s.Merge(batch[i])
		})
		if !ok {
			err = fmt.Errorf("cookies: merge %q: recovered panic", batch[i].Cookie.Name)
		}
		if err != nil {
			errs = append(errs, err)
			continue
		}
		merged++
	}
	return merged, errs
}

// Get returns a copy of the record at key.
func (s *Store) Get(key string) (types.Cookie, bool) {
	c, ok := s.cookies[key]
	if !ok {
		return types.Cookie{}, false
	}
	return c.Clone(), true
}

// Len returns the number of records.
func (s *Store) Len() int {
	return len(s.cookies)
}

// Keys returns the sorted identity keys.
func (s *Store) Keys() []string {
	keys := make([]string, 0, len(s.cookies))
	for k := range s.cookies {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Snapshot returns deep copies of every record.
func (s *Store) Snapshot() map[string]types.Cookie {
	out := make(map[string]types.Cookie, len(s.cookies))
	for k, c := range s.cookies {
		out[k] = c.Clone()
	}
	return out
}

// Clear drops every record.
func (s *Store) Clear() {
	s.cookies = make(map[string]*types.Cookie)
}

func (s *Store) newRecord(key string, obs Observation) *types.Cookie {
	rec := &types.Cookie{
		Key:            key,
		Parsed:         obs.Cookie,
		URL:            obs.URL,
		HeaderType:     obs.HeaderType,
		BlockedReasons: unionStrings(nil, obs.BlockedReasons),
		WarningReasons: unionStrings(nil, obs.WarningReasons),
		FrameIDs:       unionStrings(nil, nonEmpty(obs.FrameID)),
	}
	if rec.Parsed.Expires == "" {
		rec.Parsed.Expires = types.SessionExpiry
	}
	appendEvents(&rec.NetworkEvents, obs)
	rec.Analytics = s.classify(rec.Parsed)
	rec.IsFirstParty = util.SameSite(rec.Parsed.Domain, s.pageURL)
	refreshDerived(rec)
	return rec
}

func (s *Store) mergeInto(rec *types.Cookie, obs Observation) {
	rec.BlockedReasons = unionStrings(rec.BlockedReasons, obs.BlockedReasons)
	rec.WarningReasons = unionStrings(rec.WarningReasons, obs.WarningReasons)
	rec.FrameIDs = unionStrings(rec.FrameIDs, nonEmpty(obs.FrameID))
	appendEvents(&rec.NetworkEvents, obs)

	if rec.HeaderType != types.HeaderJavaScript && obs.HeaderType != "" {
		rec.HeaderType = obs.HeaderType
	}
	if rec.URL == "" {
		rec.URL = obs.URL
	}

	p, in := &rec.Parsed, obs.Cookie
	if p.Priority == "" {
		p.Priority = in.Priority
	}
	if p.PartitionKey == "" {
		p.PartitionKey = in.PartitionKey
	}
	if p.SameSite == "" {
		p.SameSite = in.SameSite
	}
	if obs.Source != SourceIssue {
		if in.Value != "" {
			p.Value = in.Value
			p.Size = len(p.Name) + len(p.Value)
		}
		if obs.AttributesKnown {
			p.HTTPOnly = in.HTTPOnly
			p.Secure = in.Secure
			if in.Expires != "" {
				p.Expires = in.Expires
			}
			if in.Size > 0 {
				p.Size = in.Size
			}
		}
	}

	if rec.Analytics.Category == "" || rec.Analytics.Category == types.Uncategorized {
		rec.Analytics = s.classify(rec.Parsed)
	}
	rec.IsFirstParty = util.SameSite(rec.Parsed.Domain, s.pageURL)
	refreshDerived(rec)
}

func (s *Store) classify(p types.ParsedCookie) types.Analytics {
	if s.classifier != nil {
		if a, ok := s.classifier.Classify(p.Name, p.Domain); ok {
			return a
		}
	}
	return types.Analytics{Platform: "Unknown", Category: types.Uncategorized}
}

func refreshDerived(rec *types.Cookie) {
	rec.BlockingStatus = DeriveBlockingStatus(rec.NetworkEvents)
	rec.IsBlocked = len(rec.BlockedReasons) > 0
}

func appendEvents(ne *types.NetworkEvents, obs Observation) {
	if obs.RequestEvent != nil {
		ev := *obs.RequestEvent
		ev.BlockedReasons = append([]string(nil), ev.BlockedReasons...)
		ne.RequestEvents = append(ne.RequestEvents, ev)
	}
	if obs.ResponseEvent != nil {
		ev := *obs.ResponseEvent
		ev.BlockedReasons = append([]string(nil), ev.BlockedReasons...)
		ne.ResponseEvents = append(ne.ResponseEvents, ev)
	}
}

// unionStrings returns the sorted union of a and b without empty strings.
// The result is never nil so records serialize with [] rather than null.
func unionStrings(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, list := range [][]string{a, b} {
		for _, v := range list {
			if v == "" {
				continue
			}
			if _, ok := seen[v]; ok {
				continue
			}
			seen[v] = struct{}{}
			out = append(out, v)
		}
	}
	sort.Strings(out)
	return out
}

func nonEmpty(v string) []string {
	if v == "" {
		return nil
	}
	return []string{v}
}
