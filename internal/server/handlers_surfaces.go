// handlers_surfaces.go — UI surfaces: polled mailboxes (POST /sync) and
// WebSocket connections (GET /ws).
package server

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/brennhill/psat-core/internal/capture"
	"github.com/brennhill/psat-core/internal/push"
)

// SyncRequest is the POST /sync body. An empty SurfaceID opens a new
// mailbox for TabID; later polls pass the returned id back.
type SyncRequest struct {
	SurfaceID string `json:"surface_id,omitempty"`
	TabID     int    `json:"tab_id"`
	Kind      string `json:"kind,omitempty"`
	Close     bool   `json:"close,omitempty"`
}

// SyncResponse carries the messages queued since the previous poll.
type SyncResponse struct {
	Ack        bool           `json:"ack"`
	SurfaceID  string         `json:"surface_id,omitempty"`
	Messages   []push.Message `json:"messages"`
	NextPollMs int64          `json:"next_poll_ms"`
	ServerTime time.Time      `json:"server_time"`
}

func surfaceKind(raw string) (string, error) {
	switch raw {
	case "", capture.SurfacePopup:
		return capture.SurfacePopup, nil
	case capture.SurfaceDevTools:
		return capture.SurfaceDevTools, nil
	}
	return "", fmt.Errorf("unknown surface kind %q", raw)
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	var req SyncRequest
	if !decodeBody(w, r, &req) {
		return
	}
	resp := SyncResponse{
		Ack:        true,
		Messages:   []push.Message{},
		NextPollMs: s.deps.Dispatcher.Interval().Milliseconds(),
		ServerTime: s.deps.Now(),
	}

	if req.SurfaceID == "" {
		if req.Close {
			writeJSON(w, http.StatusOK, resp)
			return
		}
		kind, err := surfaceKind(req.Kind)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if req.TabID < 0 {
			writeError(w, http.StatusBadRequest, "invalid tab id")
			return
		}
		mb := push.NewMailbox(req.TabID, kind, s.deps.MailboxIdle, s.deps.Now)
		if err := s.deps.Dispatcher.Open(r.Context(), mb); err != nil {
			s.deps.Dispatcher.CloseSurface(mb.ID())
			s.log.Warn("open mailbox", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "could not open surface")
			return
		}
		resp.SurfaceID = mb.ID()
		resp.Messages = mb.Drain()
		writeJSON(w, http.StatusOK, resp)
		return
	}

	surface, ok := s.deps.Dispatcher.Surface(req.SurfaceID)
	mb, isMailbox := surface.(*push.Mailbox)
	if !ok || !isMailbox {
		// Expired or never opened: the client starts over with a new mailbox.
		writeError(w, http.StatusNotFound, "unknown surface")
		return
	}
	resp.SurfaceID = mb.ID()
	resp.Messages = mb.Drain()
	if req.Close {
		s.deps.Dispatcher.CloseSurface(mb.ID())
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleWebSocket upgrades ?tab_id=&kind= into a live surface. The handler
// blocks until the connection ends.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	tabID, err := strconv.Atoi(r.URL.Query().Get("tab_id"))
	if err != nil || tabID < 0 {
		writeError(w, http.StatusBadRequest, "invalid tab_id")
		return
	}
	kind, err := surfaceKind(r.URL.Query().Get("kind"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ws, err := push.Accept(w, r, tabID, kind)
	if err != nil {
		// The upgrader has already replied.
		s.log.Debug("websocket upgrade", zap.Error(err))
		return
	}
	defer s.deps.Dispatcher.CloseSurface(ws.ID())

	if err := s.deps.Dispatcher.Open(r.Context(), ws); err != nil {
		s.log.Warn("open websocket surface", zap.Error(err))
		ws.Close()
		return
	}
	ws.Serve(r.Context())
}
