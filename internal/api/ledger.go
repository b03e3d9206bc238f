package api

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/robojar-core/internal/device"
	"github.com/nerrad567/robojar-core/internal/ledger"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200

	// maxQueryParamLen bounds free-text query parameters.
	maxQueryParamLen = 128
)

// ledgerResponse is the body of GET /ledger/{log}.
type ledgerResponse struct {
	Log     string         `json:"log"`
	Count   int            `json:"count"`
	Entries []ledger.Entry `json:"entries"`
}

// handleLedger returns rows from one ledger, oldest first. ?name= keeps
// rows for one device; ?limit= keeps only the newest rows.
func (s *Server) handleLedger(w http.ResponseWriter, r *http.Request) {
	if s.ledger == nil {
		writeUnavailable(w, "ledgers are not configured")
		return
	}

	log := strings.ToLower(chi.URLParam(r, "log"))
	path, ok := s.ledgerPath(log)
	if !ok {
		writeNotFound(w, "unknown ledger: "+log)
		return
	}
	if path == "" {
		writeNotFound(w, "ledger disabled: "+log)
		return
	}

	name := r.URL.Query().Get("name")
	if len(name) > maxQueryParamLen {
		writeBadRequest(w, "name too long")
		return
	}
	limit, err := parseLimit(r.URL.Query().Get("limit"), 0, 0)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	entries, err := s.ledger.Entries(path)
	if err != nil {
		s.logger.Error("reading ledger failed", "log", log, "error", err)
		writeInternalError(w, "failed to read ledger")
		return
	}

	if name != "" {
		filtered := entries[:0]
		for _, e := range entries {
			if strings.EqualFold(e.Name, name) {
				filtered = append(filtered, e)
			}
		}
		entries = filtered
	}
	if limit > 0 && len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	if entries == nil {
		entries = []ledger.Entry{}
	}

	writeJSON(w, http.StatusOK, ledgerResponse{Log: log, Count: len(entries), Entries: entries})
}

func (s *Server) ledgerPath(log string) (string, bool) {
	switch log {
	case "system":
		return s.ledgerPaths.System, true
	case string(device.KindValve):
		return s.ledgerPaths.Valve, true
	case string(device.KindPump):
		return s.ledgerPaths.Pump, true
	case string(device.KindSensor):
		return s.ledgerPaths.Sensor, true
	}
	return "", false
}

// handleHistory returns the SQLite transition history of one device,
// newest first. The device may be given by name ("Valve 1") or with
// dashes for spaces ("valve-1").
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeUnavailable(w, "transition history is not enabled")
		return
	}

	raw, err := url.PathUnescape(chi.URLParam(r, "device"))
	if err != nil || raw == "" || len(raw) > maxQueryParamLen {
		writeBadRequest(w, "invalid device")
		return
	}
	m, ok := s.resolveDevice(raw)
	if !ok {
		writeNotFound(w, "unknown device: "+raw)
		return
	}

	limit, err := parseLimit(r.URL.Query().Get("limit"), defaultHistoryLimit, maxHistoryLimit)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	entries, err := s.history.List(r.Context(), m.Name(), limit)
	if err != nil {
		s.logger.Error("listing history failed", "device", m.Name(), "error", err)
		writeInternalError(w, "failed to list history")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"device":  m.Name(),
		"kind":    m.Kind(),
		"count":   len(entries),
		"entries": entries,
	})
}

// resolveDevice finds a machine by exact name, then case-insensitively
// with dashes standing for spaces.
func (s *Server) resolveDevice(name string) (*device.Machine, bool) {
	if m, ok := s.ctrl.Lookup(name); ok {
		return m, true
	}
	want := strings.ReplaceAll(name, "-", " ")
	for _, m := range s.ctrl.Machines() {
		if strings.EqualFold(m.Name(), want) {
			return m, true
		}
	}
	return nil, false
}

// parseLimit parses a non-negative limit. Empty or 0 gives def; values
// above max are clamped when maxN is positive.
func parseLimit(raw string, def, maxN int) (int, error) {
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("limit must be a non-negative integer")
	}
	if n == 0 {
		return def, nil
	}
	if maxN > 0 && n > maxN {
		n = maxN
	}
	return n, nil
}
