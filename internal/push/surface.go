// surface.go — UI surfaces that receive push messages.
package push

import (
	"context"
	"errors"
)

// ErrSurfaceClosed is returned by Send on a surface that is gone. The
// dispatcher forgets such surfaces.
var ErrSurfaceClosed = errors.New("push: surface closed")

// Surface is one open popup or DevTools panel bound to a tab.
type Surface interface {
	ID() string
	TabID() int
	Kind() string // capture.SurfacePopup or capture.SurfaceDevTools
	Send(ctx context.Context, msg Message) error
	Close()
}

// expirer is implemented by surfaces that can go stale without an explicit
// close (polled mailboxes).
type expirer interface {
	Expired() bool
}
