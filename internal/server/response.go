// response.go — JSON response helpers and error-to-status mapping.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/brennhill/psat-core/internal/capture"
)

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}

// statusFor maps capture errors to HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, capture.ErrContextInvalidated):
		return http.StatusGone
	case errors.Is(err, capture.ErrUnknownTab):
		return http.StatusNotFound
	case errors.Is(err, capture.ErrTabRejected):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func writeCaptureError(w http.ResponseWriter, err error) {
	writeError(w, statusFor(err), err.Error())
}

// readBody reads a capped request body. An oversized body yields 413.
func readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	data, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return nil, false
		}
		writeError(w, http.StatusBadRequest, "could not read request body")
		return nil, false
	}
	return data, true
}

// decodeBody unmarshals a capped JSON body into v.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	data, ok := readBody(w, r)
	if !ok {
		return false
	}
	if err := json.Unmarshal(data, v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return false
	}
	return true
}

func tabParam(r *http.Request) (int, error) {
	raw := chi.URLParam(r, "tabID")
	id, err := strconv.Atoi(raw)
	if err != nil || id < 0 {
		return 0, fmt.Errorf("invalid tab id %q", raw)
	}
	return id, nil
}
