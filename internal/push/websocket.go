// websocket.go — WebSocket surface for UI panels that hold a live connection.
package push

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	wsWriteWait  = 5 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = (wsPongWait * 9) / 10
	wsReadLimit  = 4096
)

// Upgrader accepts surface connections. Only extension and loopback pages
// talk to the daemon, which listens on loopback.
var Upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WSSurface is a Surface backed by a WebSocket connection.
type WSSurface struct {
	id    string
	tabID int
	kind  string
	conn  *websocket.Conn

	writeMu sync.Mutex // gorilla allows one concurrent writer
	once    sync.Once
	done    chan struct{}
}

// Accept upgrades the request and wraps the connection.
func Accept(w http.ResponseWriter, r *http.Request, tabID int, kind string) (*WSSurface, error) {
	conn, err := Upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, fmt.Errorf("push: websocket upgrade: %w", err)
	}
	return NewWSSurface(conn, tabID, kind), nil
}

// NewWSSurface wraps an established connection.
func NewWSSurface(conn *websocket.Conn, tabID int, kind string) *WSSurface {
	return &WSSurface{
		id:    uuid.NewString(),
		tabID: tabID,
		kind:  kind,
		conn:  conn,
		done:  make(chan struct{}),
	}
}

func (s *WSSurface) ID() string   { return s.id }
func (s *WSSurface) TabID() int   { return s.tabID }
func (s *WSSurface) Kind() string { return s.kind }

// Send writes msg as a JSON text frame.
func (s *WSSurface) Send(ctx context.Context, msg Message) error {
	select {
	case <-s.done:
		return ErrSurfaceClosed
	default:
	}
	deadline := time.Now().Add(wsWriteWait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = s.conn.SetWriteDeadline(deadline)
	if err := s.conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("%w: %v", ErrSurfaceClosed, err)
	}
	return nil
}

// Serve reads (and discards) client frames and keeps the connection alive
// with pings until the peer goes away or ctx is done. It returns when the
// surface should be closed.
func (s *WSSurface) Serve(ctx context.Context) {
	s.conn.SetReadLimit(wsReadLimit)
	_ = s.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	readErr := make(chan struct{})
	go func() {
		defer close(readErr)
		for {
			if _, _, err := s.conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-readErr:
			return
		case <-s.done:
			return
		case <-ticker.C:
			s.writeMu.Lock()
			err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait))
			s.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

// Close closes the connection. Safe to call more than once.
func (s *WSSurface) Close() {
	s.once.Do(func() {
		close(s.done)
		s.writeMu.Lock()
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		s.writeMu.Unlock()
		_ = s.conn.Close()
	})
}
