// mailbox.go — Polled surface: messages queue until the next POST /sync.
package push

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultMailboxCapacity bounds queued messages per mailbox. The oldest
// message is dropped when full; later snapshots supersede it anyway.
const DefaultMailboxCapacity = 256

// Mailbox is a Surface drained by polling.
type Mailbox struct {
	id    string
	tabID int
	kind  string

	mu       sync.Mutex
	queue    []Message
	capacity int
	lastPoll time.Time
	maxIdle  time.Duration
	now      func() time.Time
	closed   bool
}

// NewMailbox creates a mailbox for tabID. A mailbox not drained within
// maxIdle expires; maxIdle <= 0 disables expiry.
func NewMailbox(tabID int, kind string, maxIdle time.Duration, now func() time.Time) *Mailbox {
	if now == nil {
		now = time.Now
	}
	return &Mailbox{
		id:       uuid.NewString(),
		tabID:    tabID,
		kind:     kind,
		capacity: DefaultMailboxCapacity,
		lastPoll: now(),
		maxIdle:  maxIdle,
		now:      now,
	}
}

func (m *Mailbox) ID() string   { return m.id }
func (m *Mailbox) TabID() int   { return m.tabID }
func (m *Mailbox) Kind() string { return m.kind }

// Send queues msg.
func (m *Mailbox) Send(_ context.Context, msg Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrSurfaceClosed
	}
	if len(m.queue) >= m.capacity {
		m.queue = m.queue[1:]
	}
	m.queue = append(m.queue, msg)
	return nil
}

// Drain returns and clears the queued messages and records the poll.
func (m *Mailbox) Drain() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastPoll = m.now()
	out := m.queue
	m.queue = nil
	if out == nil {
		out = []Message{}
	}
	return out
}

// Expired reports whether the mailbox went unpolled for longer than maxIdle.
func (m *Mailbox) Expired() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed || (m.maxIdle > 0 && m.now().Sub(m.lastPoll) > m.maxIdle)
}

func (m *Mailbox) Close() {
	m.mu.Lock()
	m.closed = true
	m.queue = nil
	m.mu.Unlock()
}
