// observation.go — One sighting of a cookie, from any source.
package cookies

import "github.com/brennhill/psat-core/internal/types"

// Source says which instrumentation produced an observation.
type Source string

const (
	SourceHeader     Source = "header"     // webRequest request/response headers
	SourceCDP        Source = "cdp"        // debugger-protocol cookie objects
	SourceJavaScript Source = "javascript" // document.cookie writes
	SourceIssue      Source = "issue"      // Audits.issueAdded cookie issues
)

// Observation is merged into a Store.
type Observation struct {
	Cookie     types.ParsedCookie
	HeaderType types.HeaderType
	Source     Source
	URL        string
	FrameID    string // resolved frame id; empty for tab-level observations

	// AttributesKnown is false when the source only carries name/value
	// (request Cookie headers, issues) and flags must not be refreshed.
	AttributesKnown bool

	BlockedReasons []string
	WarningReasons []string

	RequestEvent  *types.NetworkEvent
	ResponseEvent *types.NetworkEvent
}

// Key returns the observation's identity key.
func (o Observation) Key() (string, error) {
	return Key(o.Cookie.Name, o.Cookie.Domain, o.Cookie.Path)
}
