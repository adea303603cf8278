// dispatcher.go — Fixed-interval push of dirty tab state to open surfaces.
//
// Each tick, every tab with a non-zero dirty counter and at least one open
// surface gets its counters reset and one message per dirty category sent to
// each of its surfaces. Tabs with no open surface keep accumulating; the
// initial-sync on open carries everything. A failed send never stops the
// rest of the tick and never restores the counters.
package push

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/brennhill/psat-core/internal/capture"
	"github.com/brennhill/psat-core/internal/logging"
	"github.com/brennhill/psat-core/internal/metrics"
	"github.com/brennhill/psat-core/internal/types"
	"github.com/brennhill/psat-core/internal/util"
)

// Defaults.
const (
	DefaultInterval    = time.Second
	DefaultSendTimeout = 2 * time.Second
)

// Source is the slice of the capture core the dispatcher reads.
type Source interface {
	DirtyTabs() []int
	TakeDirtySnapshot(tabID int) (types.DirtyCounters, types.TabSnapshot, bool)
	SyncSnapshot(tabID int) (types.TabSnapshot, error)
	SetSurfaceOpen(tabID int, kind string, open bool) bool
	Closed() bool
}

// Config configures a Dispatcher.
type Config struct {
	Interval    time.Duration
	SendTimeout time.Duration
	Logger      *zap.Logger
	Metrics     *metrics.Metrics
	Now         func() time.Time
}

// Dispatcher tracks open surfaces and pushes tab state to them.
type Dispatcher struct {
	src     Source
	cfg     Config
	log     *zap.Logger
	metrics *metrics.Metrics

	mu          sync.Mutex
	surfaces    map[string]Surface
	byTab       map[int]map[string]Surface
	invalidated bool
}

// NewDispatcher creates a Dispatcher reading from src.
func NewDispatcher(src Source, cfg Config) *Dispatcher {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = DefaultSendTimeout
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Dispatcher{
		src:      src,
		cfg:      cfg,
		log:      logging.OrNop(cfg.Logger).Named("push"),
		metrics:  cfg.Metrics,
		surfaces: make(map[string]Surface),
		byTab:    make(map[int]map[string]Surface),
	}
}

// Interval returns the tick interval. Polled surfaces use it as next_poll_ms.
func (d *Dispatcher) Interval() time.Duration { return d.cfg.Interval }

// Run ticks until ctx is done.
func (d *Dispatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(d.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.Tick(ctx)
		}
	}
}

// Open registers s, marks its kind open on the tab and sends it an
// initial-sync with the tab's full state. When the core has been invalidated
// s receives context-invalidated instead.
func (d *Dispatcher) Open(ctx context.Context, s Surface) error {
	d.mu.Lock()
	if _, dup := d.surfaces[s.ID()]; dup {
		d.mu.Unlock()
		return fmt.Errorf("push: open: duplicate surface id %s", s.ID())
	}
	d.surfaces[s.ID()] = s
	tab := d.byTab[s.TabID()]
	if tab == nil {
		tab = make(map[string]Surface)
		d.byTab[s.TabID()] = tab
	}
	tab[s.ID()] = s
	d.metrics.SetSurfaces(len(d.surfaces))
	d.mu.Unlock()

	d.src.SetSurfaceOpen(s.TabID(), s.Kind(), true)
	d.log.Debug("surface opened",
		zap.String("surface_id", s.ID()), zap.Int("tab_id", s.TabID()), zap.String("kind", s.Kind()))

	snap, err := d.src.SyncSnapshot(s.TabID())
	switch {
	case errors.Is(err, capture.ErrContextInvalidated):
		d.send(ctx, s, newMessage(TypeContextInvalidated, s.TabID(), nil, d.cfg.Now()))
		return nil
	case errors.Is(err, capture.ErrUnknownTab):
		// Nothing observed yet; the surface still gets an empty view.
		snap = types.TabSnapshot{TabID: s.TabID(), CapturedAt: d.cfg.Now()}
	case err != nil:
		return fmt.Errorf("push: open: %w", err)
	}
	d.send(ctx, s, newMessage(TypeInitialSync, s.TabID(), &snap, d.cfg.Now()))
	return nil
}

// CloseSurface forgets the surface with id and clears the tab's open flag
// for its kind when no other surface of that kind remains.
func (d *Dispatcher) CloseSurface(id string) {
	d.mu.Lock()
	s, ok := d.surfaces[id]
	if !ok {
		d.mu.Unlock()
		return
	}
	delete(d.surfaces, id)
	tab := d.byTab[s.TabID()]
	delete(tab, id)
	stillOpen := false
	for _, other := range tab {
		if other.Kind() == s.Kind() {
			stillOpen = true
			break
		}
	}
	if len(tab) == 0 {
		delete(d.byTab, s.TabID())
	}
	d.metrics.SetSurfaces(len(d.surfaces))
	d.mu.Unlock()

	if !stillOpen {
		d.src.SetSurfaceOpen(s.TabID(), s.Kind(), false)
	}
	s.Close()
	d.log.Debug("surface closed", zap.String("surface_id", id), zap.Int("tab_id", s.TabID()))
}

// Surface returns the open surface with id.
func (d *Dispatcher) Surface(id string) (Surface, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	s, ok := d.surfaces[id]
	return s, ok
}

// Len returns the number of open surfaces.
func (d *Dispatcher) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.surfaces)
}

// Tick performs one dispatch pass.
func (d *Dispatcher) Tick(ctx context.Context) {
	d.reapExpired()

	if d.src.Closed() {
		d.invalidate(ctx)
		return
	}

	for _, tabID := range d.src.DirtyTabs() {
		surfaces := d.tabSurfaces(tabID)
		if len(surfaces) == 0 {
			continue
		}
		// Re-assert open flags: tab state may have been rebuilt since open.
		for _, s := range surfaces {
			d.src.SetSurfaceOpen(tabID, s.Kind(), true)
		}
		dirty, snap, ok := d.src.TakeDirtySnapshot(tabID)
		if !ok {
			continue
		}
		msgs := categoryMessages(dirty, snap, d.cfg.Now())
		for _, s := range surfaces {
			for _, msg := range msgs {
				d.send(ctx, s, msg)
			}
		}
	}
}

// invalidate tells every surface once that the core is gone.
func (d *Dispatcher) invalidate(ctx context.Context) {
	d.mu.Lock()
	if d.invalidated {
		d.mu.Unlock()
		return
	}
	d.invalidated = true
	all := make([]Surface, 0, len(d.surfaces))
	for _, s := range d.surfaces {
		all = append(all, s)
	}
	d.mu.Unlock()

	d.log.Warn("core invalidated; notifying surfaces", zap.Int("surfaces", len(all)))
	for _, s := range all {
		d.send(ctx, s, newMessage(TypeContextInvalidated, s.TabID(), nil, d.cfg.Now()))
	}
}

func (d *Dispatcher) tabSurfaces(tabID int) []Surface {
	d.mu.Lock()
	defer d.mu.Unlock()
	tab := d.byTab[tabID]
	out := make([]Surface, 0, len(tab))
	for _, s := range tab {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

func (d *Dispatcher) reapExpired() {
	d.mu.Lock()
	var stale []string
	for id, s := range d.surfaces {
		if e, ok := s.(expirer); ok && e.Expired() {
			stale = append(stale, id)
		}
	}
	d.mu.Unlock()
	for _, id := range stale {
		d.CloseSurface(id)
	}
}

// send delivers one message. Failures and panics are logged and counted;
// a surface reporting ErrSurfaceClosed is forgotten.
func (d *Dispatcher) send(ctx context.Context, s Surface, msg Message) {
	sctx, cancel := context.WithTimeout(ctx, d.cfg.SendTimeout)
	defer cancel()

	var err error
	if !util.Recover(d.log, "surface.send", func() { err = s.Send(sctx, msg) }) {
		err = errors.New("send panicked")
	}
	d.metrics.Pushed(string(msg.Type), err == nil)
	if err == nil {
		return
	}
	d.log.Debug("push failed",
		zap.String("surface_id", s.ID()), zap.String("type", string(msg.Type)), zap.Error(err))
	if errors.Is(err, ErrSurfaceClosed) {
		d.CloseSurface(s.ID())
	}
}
