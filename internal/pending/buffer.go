// buffer.go — Pending-event buffer for half-complete request/response events.
// Two event streams race for the same (tab, request id): whichever arrives
// second takes the stashed half and completes processing. Every entry leaves
// the buffer exactly once: through TakeIfPresent, TakeWaiting, Expire,
// DropTab, Clear, or per-tab cap eviction.
package pending

import (
	"sort"
	"time"
)

const (
	// DefaultTTL bounds how long a half-event waits for its complement.
	DefaultTTL = 30 * time.Second

	// DefaultMaxPerTab bounds entries per tab; the oldest is evicted first.
	DefaultMaxPerTab = 2048
)

// Key identifies one pending entry.
type Key struct {
	TabID int
	ID    string
}

// Entry is a stashed value with its bookkeeping.
type Entry[T any] struct {
	Key     Key
	Value   T
	WaitOn  string // optional label, e.g. the frame id the entry waits for
	AddedAt time.Time
}

// Config tunes a Buffer. Zero values take the defaults.
type Config struct {
	TTL       time.Duration
	MaxPerTab int
	Now       func() time.Time
}

// Buffer is a keyed, TTL-bounded stash. Not safe for concurrent use; the
// owner serializes access.
type Buffer[T any] struct {
	ttl       time.Duration
	maxPerTab int
	now       func() time.Time

	entries map[Key]*Entry[T]
	perTab  map[int]map[string]struct{}            // tab -> ids
	waiting map[int]map[string]map[string]struct{} // tab -> waitOn -> ids
}

// New returns an empty buffer.
func New[T any](cfg Config) *Buffer[T] {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.MaxPerTab <= 0 {
		cfg.MaxPerTab = DefaultMaxPerTab
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Buffer[T]{
		ttl:       cfg.TTL,
		maxPerTab: cfg.MaxPerTab,
		now:       cfg.Now,
		entries:   make(map[Key]*Entry[T]),
		perTab:    make(map[int]map[string]struct{}),
		waiting:   make(map[int]map[string]map[string]struct{}),
	}
}

// Stash stores v under key, replacing any entry already there (a duplicate
// delivery of the same half). Returns the entry evicted to honor MaxPerTab.
func (b *Buffer[T]) Stash(key Key, v T) (evicted *Entry[T]) {
	return b.StashWaiting(key, v, "")
}

// StashWaiting is Stash with a waitOn label indexed for TakeWaiting.
func (b *Buffer[T]) StashWaiting(key Key, v T, waitOn string) (evicted *Entry[T]) {
	if _, ok := b.entries[key]; ok {
		b.remove(key)
	} else if len(b.perTab[key.TabID]) >= b.maxPerTab {
		evicted = b.oldest(key.TabID)
		if evicted != nil {
			b.remove(evicted.Key)
		}
	}
	e := &Entry[T]{Key: key, Value: v, WaitOn: waitOn, AddedAt: b.now()}
	b.entries[key] = e
	ids := b.perTab[key.TabID]
	if ids == nil {
		ids = make(map[string]struct{})
		b.perTab[key.TabID] = ids
	}
	ids[key.ID] = struct{}{}
	if waitOn != "" {
		byLabel := b.waiting[key.TabID]
		if byLabel == nil {
			byLabel = make(map[string]map[string]struct{})
			b.waiting[key.TabID] = byLabel
		}
		set := byLabel[waitOn]
		if set == nil {
			set = make(map[string]struct{})
			byLabel[waitOn] = set
		}
		set[key.ID] = struct{}{}
	}
	return evicted
}

// TakeIfPresent removes and returns the entry at key.
func (b *Buffer[T]) TakeIfPresent(key Key) (T, bool) {
	e, ok := b.entries[key]
	if !ok {
		var zero T
		return zero, false
	}
	b.remove(key)
	return e.Value, true
}

// HasPending reports whether key is stashed.
func (b *Buffer[T]) HasPending(key Key) bool {
	_, ok := b.entries[key]
	return ok
}

// TakeWaiting removes and returns every entry of tabID stashed with waitOn,
// oldest first.
func (b *Buffer[T]) TakeWaiting(tabID int, waitOn string) []Entry[T] {
	set := b.waiting[tabID][waitOn]
	if len(set) == 0 {
		return nil
	}
	out := make([]Entry[T], 0, len(set))
	for id := range set {
		if e, ok := b.entries[Key{TabID: tabID, ID: id}]; ok {
			out = append(out, *e)
		}
	}
	for _, e := range out {
		b.remove(e.Key)
	}
	sortEntries(out)
	return out
}

// WaitLabels returns the distinct waitOn labels pending for tabID.
func (b *Buffer[T]) WaitLabels(tabID int) []string {
	byLabel := b.waiting[tabID]
	out := make([]string, 0, len(byLabel))
	for label := range byLabel {
		out = append(out, label)
	}
	sort.Strings(out)
	return out
}

// Expire removes and returns every entry older than the TTL, oldest first.
func (b *Buffer[T]) Expire() []Entry[T] {
	now := b.now()
	var out []Entry[T]
	for _, e := range b.entries {
		if now.Sub(e.AddedAt) >= b.ttl {
			out = append(out, *e)
		}
	}
	for _, e := range out {
		b.remove(e.Key)
	}
	sortEntries(out)
	return out
}

// DropTab silently discards every entry of tabID and returns how many.
func (b *Buffer[T]) DropTab(tabID int) int {
	ids := b.perTab[tabID]
	n := len(ids)
	for id := range ids {
		delete(b.entries, Key{TabID: tabID, ID: id})
	}
	delete(b.perTab, tabID)
	delete(b.waiting, tabID)
	return n
}

// Clear discards everything.
func (b *Buffer[T]) Clear() {
	b.entries = make(map[Key]*Entry[T])
	b.perTab = make(map[int]map[string]struct{})
	b.waiting = make(map[int]map[string]map[string]struct{})
}

// Len returns the total number of entries.
func (b *Buffer[T]) Len() int {
	return len(b.entries)
}

// TabLen returns the number of entries for tabID.
func (b *Buffer[T]) TabLen(tabID int) int {
	return len(b.perTab[tabID])
}

func (b *Buffer[T]) remove(key Key) {
	e, ok := b.entries[key]
	if !ok {
		return
	}
	delete(b.entries, key)
	if ids := b.perTab[key.TabID]; ids != nil {
		delete(ids, key.ID)
		if len(ids) == 0 {
			delete(b.perTab, key.TabID)
		}
	}
	if e.WaitOn != "" {
		if byLabel := b.waiting[key.TabID]; byLabel != nil {
			if set := byLabel[e.WaitOn]; set != nil {
				delete(set, key.ID)
				if len(set) == 0 {
					delete(byLabel, e.WaitOn)
				}
			}
			if len(byLabel) == 0 {
				delete(b.waiting, key.TabID)
			}
		}
	}
}

func (b *Buffer[T]) oldest(tabID int) *Entry[T] {
	var old *Entry[T]
	for id := range b.perTab[tabID] {
		e := b.entries[Key{TabID: tabID, ID: id}]
		if e == nil {
			continue
		}
		if old == nil || e.AddedAt.Before(old.AddedAt) || (e.AddedAt.Equal(old.AddedAt) && e.Key.ID < old.Key.ID) {
			old = e
		}
	}
	if old == nil {
		return nil
	}
	cp := *old
	return &cp
}

func sortEntries[T any](entries []Entry[T]) {
	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].AddedAt.Equal(entries[j].AddedAt) {
			return entries[i].AddedAt.Before(entries[j].AddedAt)
		}
		if entries[i].Key.TabID != entries[j].Key.TabID {
			return entries[i].Key.TabID < entries[j].Key.TabID
		}
		return entries[i].Key.ID < entries[j].Key.ID
	})
}
