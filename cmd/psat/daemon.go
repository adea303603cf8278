// daemon.go — Wires configuration into the capture core, dispatcher and
// HTTP server, and runs them until the context ends.
package main

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/brennhill/psat-core/internal/capture"
	"github.com/brennhill/psat-core/internal/cdp"
	"github.com/brennhill/psat-core/internal/config"
	"github.com/brennhill/psat-core/internal/cookiedb"
	"github.com/brennhill/psat-core/internal/logging"
	"github.com/brennhill/psat-core/internal/metrics"
	"github.com/brennhill/psat-core/internal/push"
	"github.com/brennhill/psat-core/internal/server"
	"github.com/brennhill/psat-core/internal/settings"
	"github.com/brennhill/psat-core/internal/util"
)

type daemon struct {
	cfg     config.Config
	log     *zap.Logger
	metrics *metrics.Metrics
	store   *settings.FileStore
	core    *capture.Capture
	decoder *cdp.Decoder
	disp    *push.Dispatcher
	srv     *server.Server
	inst    *instrumenterRef
}

// instrumenterRef lets the rod attacher, which needs the core's decoder,
// be installed after the core exists.
type instrumenterRef struct {
	mu     sync.RWMutex
	target capture.Instrumenter
}

func (r *instrumenterRef) set(i capture.Instrumenter) {
	r.mu.Lock()
	r.target = i
	r.mu.Unlock()
}

func (r *instrumenterRef) Attach(ctx context.Context, tabID int) error {
	r.mu.RLock()
	target := r.target
	r.mu.RUnlock()
	if target == nil {
		return fmt.Errorf("%w: %d (no browser attached)", cdp.ErrNoPage, tabID)
	}
	return target.Attach(ctx, tabID)
}

func newLogger(cfg config.Config) (*zap.Logger, error) {
	lc, err := cfg.Logging()
	if err != nil {
		return nil, err
	}
	return logging.New(lc)
}

func newDaemon(ctx context.Context, cfg config.Config, log *zap.Logger) (*daemon, error) {
	d := &daemon{cfg: cfg, log: log, metrics: metrics.New(), inst: &instrumenterRef{}}

	store, err := settings.NewFileStore(cfg.SettingsFile)
	if err != nil {
		return nil, err
	}
	d.store = store
	initial, err := store.Load(ctx)
	if err != nil {
		return nil, err
	}

	ccfg := capture.Config{
		Settings:         initial,
		PendingTTL:       cfg.PendingTTL,
		PendingMaxPerTab: cfg.PendingMaxPerTab,
		TombstoneLimit:   cfg.TombstoneLimit,
		IngestRate:       rate.Limit(cfg.IngestRate),
		IngestBurst:      cfg.IngestBurst,
		Instrumenter:     d.inst,
		Logger:           log,
		Metrics:          d.metrics,
	}
	if cfg.CookieDB != "" {
		dict, err := cookiedb.LoadFile(cfg.CookieDB)
		if err != nil {
			return nil, err
		}
		ccfg.Classifier = dict
		log.Info("cookie dictionary loaded", zap.String("path", cfg.CookieDB), zap.Int("entries", dict.Len()))
	}

	core, err := capture.New(ccfg)
	if err != nil {
		return nil, err
	}
	d.core = core
	d.decoder = cdp.NewDecoder(core, log)
	d.disp = push.NewDispatcher(core, push.Config{
		Interval: cfg.PollInterval,
		Logger:   log,
		Metrics:  d.metrics,
	})
	d.srv = server.New(server.Deps{
		Capture:    core,
		Decoder:    d.decoder,
		Dispatcher: d.disp,
		Settings:   store,
		Metrics:    d.metrics,
		Logger:     log,
		Version:    version,
	})

	log.Info("capture core ready",
		zap.String("tab_capacity_mode", initial.TabCapacityMode),
		zap.Bool("use_rich_instrumentation", initial.UseRichInstrumentation),
		zap.String("settings_file", store.Path()))
	return d, nil
}

// run serves until ctx ends, then invalidates the core so open surfaces
// receive context-invalidated.
func (d *daemon) run(ctx context.Context) error {
	util.SafeGo(d.log, func() { d.core.RunJanitor(ctx, d.cfg.PendingSweepInterval) })
	util.SafeGo(d.log, func() { d.disp.Run(ctx) })

	err := d.srv.ListenAndServe(ctx, d.cfg.Listen)

	d.core.Close()
	d.disp.Tick(context.Background())
	return err
}
