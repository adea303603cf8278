// message.go — Push messages sent from the core to UI surfaces.
package push

import (
	"time"

	"github.com/google/uuid"

	"github.com/brennhill/psat-core/internal/types"
)

// MessageType enumerates push message kinds.
type MessageType string

const (
	TypeInitialSync        MessageType = "initial-sync"
	TypeCookies            MessageType = "new-cookie-data"
	TypeAuctions           MessageType = "auction-data"
	TypeAttribution        MessageType = "attribution-data"
	TypePrebid             MessageType = "prebid-data"
	TypeContextInvalidated MessageType = "context-invalidated"
)

// Message is one push to a surface. Payload sections replace the surface's
// local view of that category for the tab, so re-applying a message is
// harmless.
type Message struct {
	ID      string      `json:"id"`
	Type    MessageType `json:"type"`
	Payload Payload     `json:"payload"`
	SentAt  time.Time   `json:"sent_at"`
}

// Payload carries the tab and its snapshot (nil for context-invalidated).
type Payload struct {
	TabID    int                `json:"tab_id"`
	Snapshot *types.TabSnapshot `json:"snapshot,omitempty"`
}

func newMessage(typ MessageType, tabID int, snap *types.TabSnapshot, now time.Time) Message {
	return Message{
		ID:      uuid.NewString(),
		Type:    typ,
		Payload: Payload{TabID: tabID, Snapshot: snap},
		SentAt:  now,
	}
}

// categoryType maps a dirty category to its message type.
func categoryType(cat types.Category) MessageType {
	switch cat {
	case types.CategoryAuctions:
		return TypeAuctions
	case types.CategoryAttribution:
		return TypeAttribution
	case types.CategoryPrebid:
		return TypePrebid
	default:
		return TypeCookies
	}
}

// only returns a copy of snap holding just cat's section. Sections are never
// mutated after a snapshot is taken, so sharing them between messages is
// safe.
func only(snap types.TabSnapshot, cat types.Category) *types.TabSnapshot {
	out := types.TabSnapshot{
		TabID:        snap.TabID,
		URL:          snap.URL,
		CapturedAt:   snap.CapturedAt,
		FrameOrigins: snap.FrameOrigins,
	}
	switch cat {
	case types.CategoryCookies:
		out.Cookies = snap.Cookies
	case types.CategoryAuctions:
		out.Auctions = snap.Auctions
	case types.CategoryAttribution:
		out.Attribution = snap.Attribution
	case types.CategoryPrebid:
		out.Prebid = snap.Prebid
	}
	return &out
}

// categoryMessages builds one message per dirty category, in push order.
func categoryMessages(dirty types.DirtyCounters, snap types.TabSnapshot, now time.Time) []Message {
	cats := dirty.Dirty()
	out := make([]Message, 0, len(cats))
	for _, cat := range cats {
		out = append(out, newMessage(categoryType(cat), snap.TabID, only(snap, cat), now))
	}
	return out
}
