// constants.go — Defaults for the capture core.
package capture

import (
	"time"

	"golang.org/x/time/rate"
)

const (
	// DefaultTombstoneLimit bounds remembered removed-tab ids (FIFO).
	DefaultTombstoneLimit = 1024

	// DefaultIngestRate and DefaultIngestBurst bound per-tab event ingestion.
	// Lifecycle events (create/remove/navigate/switch) are never limited.
	DefaultIngestRate  rate.Limit = 2000
	DefaultIngestBurst            = 4000

	// DefaultAttachTimeout bounds one Instrumenter.Attach call.
	DefaultAttachTimeout = 10 * time.Second
)

// Tab phases.
const (
	PhaseInitializing = "initializing"
	PhaseActive       = "active"
)

// Surface kinds whose open flags gate push-sync.
const (
	SurfacePopup    = "popup"
	SurfaceDevTools = "devtools"
)

// Metric label values for ingestion kinds and stores.
const (
	kindLifecycle   = "lifecycle"
	kindFrame       = "frame"
	kindNetwork     = "network"
	kindWebRequest  = "webrequest"
	kindJavaScript  = "javascript"
	kindCookieDump  = "cookie_dump"
	kindIssue       = "issue"
	kindAuction     = "auction"
	kindAttribution = "attribution"
	kindPrebid      = "prebid"
)
