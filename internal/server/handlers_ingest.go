// handlers_ingest.go — POST /events and POST /cdp: browser events into the
// capture core.
package server

import (
	"errors"
	"net/http"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/brennhill/psat-core/internal/capture"
	"github.com/brennhill/psat-core/internal/cdp"
	"github.com/brennhill/psat-core/internal/webrequest"
)

// methodGetCookies carries a Network.getCookies result relayed by the
// extension: {tabId, method, frameId, url, result}.
const methodGetCookies = "Network.getCookies"

// maxReportedErrors bounds the per-batch error list in responses.
const maxReportedErrors = 20

// IngestResult summarizes one posted batch.
type IngestResult struct {
	Accepted int      `json:"accepted"`
	Rejected int      `json:"rejected"`
	Ignored  int      `json:"ignored,omitempty"`
	Errors   []string `json:"errors,omitempty"`
}

// record classifies err. It reports false when the core is gone and the rest
// of the batch should not be applied.
func (res *IngestResult) record(err error) bool {
	switch {
	case err == nil:
		res.Accepted++
	case errors.Is(err, capture.ErrContextInvalidated):
		return false
	case errors.Is(err, capture.ErrTabRejected):
		res.Rejected++
	case errors.Is(err, cdp.ErrUnknownMethod):
		res.Ignored++
	default:
		if len(res.Errors) < maxReportedErrors {
			res.Errors = append(res.Errors, err.Error())
		}
	}
	return true
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	data, ok := readBody(w, r)
	if !ok {
		return
	}
	batch, err := webrequest.Decode(data)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var res IngestResult
	for _, env := range batch {
		if !res.record(webrequest.Apply(s.deps.Capture, env)) {
			writeJSON(w, http.StatusGone, res)
			return
		}
	}
	if len(res.Errors) > 0 {
		s.log.Debug("event batch had errors", zap.Int("errors", len(res.Errors)), zap.Int("batch", len(batch)))
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleCDP(w http.ResponseWriter, r *http.Request) {
	data, ok := readBody(w, r)
	if !ok {
		return
	}
	if !gjson.ValidBytes(data) {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	parsed := gjson.ParseBytes(data)
	items := []gjson.Result{parsed}
	if parsed.IsArray() {
		items = parsed.Array()
	}

	var res IngestResult
	for _, item := range items {
		if !res.record(s.dispatchCDP(item)) {
			writeJSON(w, http.StatusGone, res)
			return
		}
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) dispatchCDP(item gjson.Result) error {
	tab := item.Get("tabId")
	method := item.Get("method").String()
	if !tab.Exists() || method == "" {
		return errors.New("cdp event needs tabId and method")
	}
	tabID := int(tab.Int())

	if method == methodGetCookies {
		return s.deps.Decoder.DispatchCookies(tabID,
			item.Get("frameId").String(), item.Get("url").String(), []byte(item.Get("result").Raw))
	}

	params := item.Get("params").Raw
	if params == "" {
		params = "{}"
	}
	return s.deps.Decoder.Dispatch(tabID, method, []byte(params))
}
