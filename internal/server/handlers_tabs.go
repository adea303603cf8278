// handlers_tabs.go — Tab listing, snapshots, tab switching, settings, health.
package server

import (
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/brennhill/psat-core/internal/settings"
	"github.com/brennhill/psat-core/internal/types"
)

func (s *Server) handleTabs(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"tabs":       s.deps.Capture.Tabs(),
		"designated": s.deps.Capture.DesignatedTab(),
	})
}

// handleSnapshot serves a tab's state. ?category=cookies,auctions narrows the
// sections; without it every section is returned.
func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	tabID, err := tabParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	cats, err := parseCategories(r.URL.Query().Get("category"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	snap, err := s.deps.Capture.Snapshot(tabID, cats...)
	if err != nil {
		writeCaptureError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func parseCategories(raw string) ([]types.Category, error) {
	if raw == "" {
		return nil, nil
	}
	var out []types.Category
	for _, part := range strings.Split(raw, ",") {
		cat := types.Category(strings.TrimSpace(part))
		known := false
		for _, c := range types.AllCategories {
			if c == cat {
				known = true
				break
			}
		}
		if !known {
			return nil, fmt.Errorf("unknown category %q", cat)
		}
		out = append(out, cat)
	}
	return out, nil
}

type switchRequest struct {
	URL string `json:"url"`
}

// handleSwitch makes a tab the designated tab (single mode) and rebuilds its
// state.
func (s *Server) handleSwitch(w http.ResponseWriter, r *http.Request) {
	tabID, err := tabParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req switchRequest
	if r.ContentLength != 0 {
		if !decodeBody(w, r, &req) {
			return
		}
	}
	if err := s.deps.Capture.SwitchTab(tabID, req.URL); err != nil {
		writeCaptureError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"designated": s.deps.Capture.DesignatedTab()})
}

func (s *Server) handleGetSettings(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Capture.Settings())
}

// SettingsResult reports a settings update.
type SettingsResult struct {
	Settings      settings.Settings `json:"settings"`
	Reinitialized bool              `json:"reinitialized"`
}

// handlePutSettings validates, persists and applies new settings. A change
// re-initializes all tab state.
func (s *Server) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	var next settings.Settings
	if !decodeBody(w, r, &next) {
		return
	}
	if err := next.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if s.deps.Settings != nil {
		if err := s.deps.Settings.Save(r.Context(), next); err != nil {
			s.log.Error("persist settings", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "could not persist settings")
			return
		}
	}
	changed, err := s.deps.Capture.ApplySettings(next)
	if err != nil {
		writeCaptureError(w, err)
		return
	}
	if changed {
		s.log.Info("settings applied",
			zap.String("tab_capacity_mode", next.TabCapacityMode),
			zap.Bool("use_rich_instrumentation", next.UseRichInstrumentation))
	}
	writeJSON(w, http.StatusOK, SettingsResult{Settings: next, Reinitialized: changed})
}

// HealthResponse is the /health body.
type HealthResponse struct {
	Status   string `json:"status"`
	Version  string `json:"version,omitempty"`
	Tabs     int    `json:"tabs"`
	Pending  int    `json:"pending"`
	Surfaces int    `json:"surfaces"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	resp := HealthResponse{
		Status:   "ok",
		Version:  s.deps.Version,
		Tabs:     len(s.deps.Capture.Tabs()),
		Pending:  s.deps.Capture.PendingLen(),
		Surfaces: s.deps.Dispatcher.Len(),
	}
	status := http.StatusOK
	if s.deps.Capture.Closed() {
		resp.Status = "invalidated"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}
