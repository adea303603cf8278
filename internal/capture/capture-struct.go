// capture-struct.go — Main Capture struct and factory function.
package capture

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/brennhill/psat-core/internal/cookies"
	"github.com/brennhill/psat-core/internal/frames"
	"github.com/brennhill/psat-core/internal/logging"
	"github.com/brennhill/psat-core/internal/metrics"
	"github.com/brennhill/psat-core/internal/pending"
	"github.com/brennhill/psat-core/internal/settings"
)

var (
	// ErrTabRejected is returned when the capacity policy refuses a tab.
	ErrTabRejected = errors.New("capture: tab rejected by capacity policy")

	// ErrContextInvalidated is returned by every operation after Close.
	ErrContextInvalidated = errors.New("capture: context invalidated")

	// ErrUnknownTab is returned by read operations for tabs with no state.
	ErrUnknownTab = errors.New("capture: unknown tab")
)

// Instrumenter attaches the rich event source (a debugger-protocol session)
// to a tab. A failed attach is retried on the tab's next navigation.
type Instrumenter interface {
	Attach(ctx context.Context, tabID int) error
}

// Config configures a Capture. Zero values take the defaults.
type Config struct {
	Settings         settings.Settings
	PendingTTL       time.Duration
	PendingMaxPerTab int
	TombstoneLimit   int
	IngestRate       rate.Limit
	IngestBurst      int
	AttachTimeout    time.Duration

	Classifier   cookies.Classifier
	Instrumenter Instrumenter
	Logger       *zap.Logger
	Metrics      *metrics.Metrics
	Now          func() time.Time
}

// Capture owns all tab state.
//
// All fields are protected by mu. Host-API calls (Instrumenter.Attach) are
// made with mu released; callers re-validate tab state afterwards because the
// tab may have been torn down meanwhile.
type Capture struct {
	mu sync.Mutex

	cfg      Config
	log      *zap.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
	settings settings.Settings

	// ============================================
	// Tab state
	// ============================================

	tabs       map[int]*tabState
	designated int // single mode: the tab to read (0 = none yet)

	tombstones map[int]struct{}
	tombOrder  []int // FIFO eviction order for tombstones

	// ============================================
	// Correlation
	// ============================================

	frames *frames.Resolver          // per-tab frame ancestry
	pairs  *pending.Buffer[half]     // request/response halves awaiting their complement
	waits  *pending.Buffer[deferred] // observations awaiting frame context
	seq    uint64                    // disambiguates wait-buffer keys

	// ============================================
	// Lifecycle
	// ============================================

	ctx    context.Context // cancelled by Close; parents attach calls
	cancel context.CancelFunc
	closed bool
}

// New creates a Capture.
func New(cfg Config) (*Capture, error) {
	if err := cfg.Settings.Validate(); err != nil {
		return nil, err
	}
	if cfg.TombstoneLimit <= 0 {
		cfg.TombstoneLimit = DefaultTombstoneLimit
	}
	if cfg.IngestRate <= 0 {
		cfg.IngestRate = DefaultIngestRate
	}
	if cfg.IngestBurst <= 0 {
		cfg.IngestBurst = DefaultIngestBurst
	}
	if cfg.AttachTimeout <= 0 {
		cfg.AttachTimeout = DefaultAttachTimeout
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	pcfg := pending.Config{TTL: cfg.PendingTTL, MaxPerTab: cfg.PendingMaxPerTab, Now: cfg.Now}
	ctx, cancel := context.WithCancel(context.Background())
	c := &Capture{
		cfg:        cfg,
		log:        logging.OrNop(cfg.Logger).Named("capture"),
		metrics:    cfg.Metrics,
		now:        cfg.Now,
		settings:   cfg.Settings,
		tabs:       make(map[int]*tabState),
		tombstones: make(map[int]struct{}),
		frames:     frames.NewResolver(),
		pairs:      pending.New[half](pcfg),
		waits:      pending.New[deferred](pcfg),
		ctx:        ctx,
		cancel:     cancel,
	}
	return c, nil
}

// Close invalidates the core. Every later call returns ErrContextInvalidated.
// Safe to call multiple times.
func (c *Capture) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.cancel()
	c.tabs = make(map[int]*tabState)
	c.frames.Clear()
	c.pairs.Clear()
	c.waits.Clear()
	c.metrics.SetTabs(0)
	c.metrics.SetPending(0)
}

// Closed reports whether Close has been called.
func (c *Capture) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Settings returns the active settings.
func (c *Capture) Settings() settings.Settings {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.settings
}

// updateGauges publishes tab and pending counts. Caller holds mu.
func (c *Capture) updateGauges() {
	c.metrics.SetTabs(len(c.tabs))
	c.metrics.SetPending(c.pairs.Len() + c.waits.Len())
}
