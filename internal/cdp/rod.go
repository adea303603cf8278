// rod.go — Headless rich instrumentation: drives a Chrome through go-rod and
// relays its protocol events into the decoder.
package cdp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"

	"github.com/brennhill/psat-core/internal/logging"
	"github.com/brennhill/psat-core/internal/util"
)

// ErrNoPage is returned by Attach for tab ids the attacher did not open.
var ErrNoPage = errors.New("cdp: no page for tab")

// Lifecycle receives the tab events the attacher itself causes.
// *capture.Capture implements it.
type Lifecycle interface {
	OnTabCreated(tabID int, url string) error
	OnNavigationStarted(tabID int, url string) error
}

// BrowserConfig selects the Chrome to drive.
type BrowserConfig struct {
	// ControlURL is the DevTools WebSocket URL of a running Chrome.
	// Empty launches a local one.
	ControlURL string
	Headless   bool
}

// RodAttacher owns a browser and one page per tab. It implements
// capture.Instrumenter.
type RodAttacher struct {
	dec *Decoder
	log *zap.Logger

	ctx    context.Context // parents event subscriptions
	cancel context.CancelFunc

	mu       sync.Mutex
	browser  *rod.Browser
	lnch     *launcher.Launcher
	pages    map[int]*rod.Page
	watching map[int]context.CancelFunc
	nextTab  int
}

// NewRodAttacher wraps an already connected browser. Launch is the usual
// constructor.
func NewRodAttacher(browser *rod.Browser, dec *Decoder, logger *zap.Logger) *RodAttacher {
	ctx, cancel := context.WithCancel(context.Background())
	return &RodAttacher{
		dec:      dec,
		log:      logging.OrNop(logger).Named("rod"),
		ctx:      ctx,
		cancel:   cancel,
		browser:  browser,
		pages:    make(map[int]*rod.Page),
		watching: make(map[int]context.CancelFunc),
	}
}

// Launch connects to cfg.ControlURL or starts a local Chrome.
func Launch(cfg BrowserConfig, dec *Decoder, logger *zap.Logger) (*RodAttacher, error) {
	log := logging.OrNop(logger)
	wsURL := cfg.ControlURL
	var l *launcher.Launcher
	if wsURL == "" {
		l = launcher.New().Headless(cfg.Headless)
		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("cdp: launch chrome: %w", err)
		}
		wsURL = u
		log.Info("launched local chrome", zap.String("control_url", wsURL), zap.Bool("headless", cfg.Headless))
	}

	b := rod.New().ControlURL(wsURL)
	if err := b.Connect(); err != nil {
		if l != nil {
			l.Cleanup()
		}
		return nil, fmt.Errorf("cdp: connect: %w", err)
	}
	a := NewRodAttacher(b, dec, logger)
	a.lnch = l
	return a, nil
}

// Open creates a page, reports it as a new tab and navigates it to url.
func (a *RodAttacher) Open(ctx context.Context, lc Lifecycle, url string) (int, error) {
	page, err := a.browser.Context(ctx).Page(proto.TargetCreateTarget{URL: ""})
	if err != nil {
		return 0, fmt.Errorf("cdp: create page: %w", err)
	}
	a.mu.Lock()
	a.nextTab++
	tabID := a.nextTab
	a.pages[tabID] = page
	a.mu.Unlock()

	// Creation triggers Attach through the capture core when rich
	// instrumentation is on.
	if err := lc.OnTabCreated(tabID, ""); err != nil {
		a.forget(tabID)
		_ = page.Close()
		return 0, fmt.Errorf("cdp: register tab %d: %w", tabID, err)
	}
	if url != "" {
		if err := a.Navigate(ctx, lc, tabID, url); err != nil {
			return tabID, err
		}
	}
	return tabID, nil
}

// Navigate reports a top-level navigation and performs it.
func (a *RodAttacher) Navigate(ctx context.Context, lc Lifecycle, tabID int, url string) error {
	page, ok := a.page(tabID)
	if !ok {
		return fmt.Errorf("%w: %d", ErrNoPage, tabID)
	}
	if err := lc.OnNavigationStarted(tabID, url); err != nil {
		return fmt.Errorf("cdp: navigation of tab %d: %w", tabID, err)
	}
	if err := page.Context(ctx).Navigate(url); err != nil {
		return fmt.Errorf("cdp: navigate %s: %w", url, err)
	}
	if err := page.Context(ctx).WaitLoad(); err != nil {
		a.log.Debug("wait load failed", zap.Int("tab_id", tabID), zap.Error(err))
	}
	return nil
}

// Attach enables the Network, Page and Audits domains on the tab's page and
// relays their events. Subscriptions outlive ctx; they end with the tab.
func (a *RodAttacher) Attach(ctx context.Context, tabID int) error {
	page, ok := a.page(tabID)
	if !ok {
		return fmt.Errorf("%w: %d", ErrNoPage, tabID)
	}
	p := page.Context(ctx)
	if err := (proto.NetworkEnable{}).Call(p); err != nil {
		return fmt.Errorf("cdp: Network.enable: %w", err)
	}
	if err := (proto.PageEnable{}).Call(p); err != nil {
		return fmt.Errorf("cdp: Page.enable: %w", err)
	}
	if err := (proto.AuditsEnable{}).Call(p); err != nil {
		return fmt.Errorf("cdp: Audits.enable: %w", err)
	}

	a.mu.Lock()
	if _, dup := a.watching[tabID]; dup {
		a.mu.Unlock()
		return nil
	}
	wctx, cancel := context.WithCancel(a.ctx)
	a.watching[tabID] = cancel
	a.mu.Unlock()

	// The page's own frame is the first known target.
	seed := fmt.Sprintf(`{"targetInfo":{"targetId":%q,"type":"page"}}`, string(page.FrameID))
	if err := a.dec.Dispatch(tabID, MethodAttachedToTarget, []byte(seed)); err != nil {
		a.log.Debug("seed target failed", zap.Int("tab_id", tabID), zap.Error(err))
	}

	wait := page.Context(wctx).EachEvent(
		func(e *proto.NetworkRequestWillBeSent) { a.relay(tabID, e) },
		func(e *proto.NetworkRequestWillBeSentExtraInfo) { a.relay(tabID, e) },
		func(e *proto.NetworkResponseReceived) { a.relay(tabID, e) },
		func(e *proto.NetworkResponseReceivedExtraInfo) { a.relay(tabID, e) },
		func(e *proto.PageFrameAttached) { a.relay(tabID, e) },
		func(e *proto.PageFrameNavigated) { a.relay(tabID, e) },
		func(e *proto.TargetAttachedToTarget) { a.relay(tabID, e) },
		func(e *proto.TargetDetachedFromTarget) { a.relay(tabID, e) },
		func(e *proto.AuditsIssueAdded) { a.relay(tabID, e) },
	)
	util.SafeGo(a.log, wait)
	a.log.Debug("attached", zap.Int("tab_id", tabID))
	return nil
}

// DumpCookies reads the page's cookie jar and feeds it as a cookie dump.
func (a *RodAttacher) DumpCookies(ctx context.Context, tabID int) error {
	page, ok := a.page(tabID)
	if !ok {
		return fmt.Errorf("%w: %d", ErrNoPage, tabID)
	}
	res, err := (proto.NetworkGetCookies{}).Call(page.Context(ctx))
	if err != nil {
		return fmt.Errorf("cdp: Network.getCookies: %w", err)
	}
	raw, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("cdp: encode cookies: %w", err)
	}
	info, err := page.Context(ctx).Info()
	url := ""
	if err == nil {
		url = info.URL
	}
	return a.dec.DispatchCookies(tabID, string(page.FrameID), url, raw)
}

// Tabs returns the ids of open pages.
func (a *RodAttacher) Tabs() []int {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]int, 0, len(a.pages))
	for id := range a.pages {
		out = append(out, id)
	}
	return out
}

// Close stops every subscription and shuts the browser down.
func (a *RodAttacher) Close() error {
	a.cancel()
	a.mu.Lock()
	b, l := a.browser, a.lnch
	a.pages = make(map[int]*rod.Page)
	a.watching = make(map[int]context.CancelFunc)
	a.mu.Unlock()

	var err error
	if b != nil {
		err = b.Close()
	}
	if l != nil {
		l.Cleanup()
	}
	return err
}

// relay re-encodes a protocol event and hands it to the decoder.
func (a *RodAttacher) relay(tabID int, e proto.Event) {
	raw, err := json.Marshal(e)
	if err != nil {
		a.log.Debug("encode event failed", zap.String("method", e.ProtoEvent()), zap.Error(err))
		return
	}
	if err := a.dec.Dispatch(tabID, e.ProtoEvent(), raw); err != nil && !errors.Is(err, ErrUnknownMethod) {
		a.log.Debug("event not ingested",
			zap.Int("tab_id", tabID), zap.String("method", e.ProtoEvent()), zap.Error(err))
	}
}

func (a *RodAttacher) page(tabID int) (*rod.Page, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	p, ok := a.pages[tabID]
	return p, ok
}

func (a *RodAttacher) forget(tabID int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.pages, tabID)
	if cancel, ok := a.watching[tabID]; ok {
		cancel()
		delete(a.watching, tabID)
	}
}
