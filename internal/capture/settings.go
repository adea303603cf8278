// settings.go — Runtime settings changes. Any change is a cold start.
package capture

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/brennhill/psat-core/internal/settings"
)

// ApplySettings installs s. When it differs from the active settings every
// tab's state is dropped, exactly as on a process restart. changed reports
// whether a re-initialization happened.
func (c *Capture) ApplySettings(s settings.Settings) (changed bool, err error) {
	if err := s.Validate(); err != nil {
		return false, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false, ErrContextInvalidated
	}
	if s == c.settings {
		return false, nil
	}
	c.log.Info("settings changed; reinitializing",
		zap.String("tab_capacity_mode", s.TabCapacityMode),
		zap.Bool("use_rich_instrumentation", s.UseRichInstrumentation))
	c.settings = s
	c.reinitLocked()
	return true, nil
}

// LoadSettings reads s from store and applies it.
func (c *Capture) LoadSettings(ctx context.Context, store settings.Store) (bool, error) {
	s, err := store.Load(ctx)
	if err != nil {
		return false, fmt.Errorf("capture: load settings: %w", err)
	}
	return c.ApplySettings(s)
}

// Reinitialize drops all tab state. Tombstones survive: removed tabs stay
// removed across re-initialization.
func (c *Capture) Reinitialize() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrContextInvalidated
	}
	c.reinitLocked()
	return nil
}

func (c *Capture) reinitLocked() {
	c.tabs = make(map[int]*tabState)
	c.designated = 0
	c.frames.Clear()
	c.pairs.Clear()
	c.waits.Clear()
	c.updateGauges()
}
