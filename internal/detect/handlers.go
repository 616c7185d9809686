package detect

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/nikhilij/rocket-telemetry-ai/pkg/plugin"
	"github.com/nikhilij/rocket-telemetry-ai/pkg/telemetry"
)

// Routes implements plugin.HTTPProvider.
func (m *Module) Routes() []plugin.Route {
	return []plugin.Route{
		{Method: http.MethodPost, Path: "/detect/runs", Handler: m.handleTriggerRun},
		{Method: http.MethodGet, Path: "/detect/runs", Handler: m.handleListRuns},
		{Method: http.MethodGet, Path: "/detect/runs/{id}", Handler: m.handleGetRun},
		{Method: http.MethodGet, Path: "/anomalies", Handler: m.handleListAnomalies},
		{Method: http.MethodGet, Path: "/anomalies/{id}", Handler: m.handleGetAnomaly},
		{Method: http.MethodGet, Path: "/stats", Handler: m.handleStats},
	}
}

// handleTriggerRun starts a detection pass without waiting for it to finish.
func (m *Module) handleTriggerRun(w http.ResponseWriter, r *http.Request) {
	runID, err := m.TriggerRun(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "failed to start detection run")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{
		"run_id": runID,
		"status": telemetry.RunStatusRunning,
	})
}

// handleListRuns returns recent detection runs, newest first.
func (m *Module) handleListRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := m.store.ListRuns(r.Context(), parseLimit(r, 20))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list detection runs")
		return
	}
	if runs == nil {
		runs = []telemetry.DetectionRun{}
	}
	writeJSON(w, http.StatusOK, runs)
}

// handleGetRun returns one detection run by ID.
func (m *Module) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, err := m.store.GetRun(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load detection run")
		return
	}
	if run == nil {
		writeError(w, http.StatusNotFound, "detection run not found")
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// handleListAnomalies returns anomaly records, newest first, with optional
// asset/metric/time filters.
func (m *Module) handleListAnomalies(w http.ResponseWriter, r *http.Request) {
	f := AnomalyFilter{
		AssetID: r.URL.Query().Get("asset_id"),
		Metric:  r.URL.Query().Get("metric"),
		Limit:   parseLimit(r, 100),
	}
	var err error
	if f.Since, err = parseTimeParam(r, "since"); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if f.Until, err = parseTimeParam(r, "until"); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	records, err := m.store.ListAnomalies(r.Context(), f)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list anomaly records")
		return
	}
	if records == nil {
		records = []telemetry.AnomalyRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}

// handleGetAnomaly returns one anomaly record by ID.
func (m *Module) handleGetAnomaly(w http.ResponseWriter, r *http.Request) {
	record, err := m.store.GetAnomaly(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load anomaly record")
		return
	}
	if record == nil {
		writeError(w, http.StatusNotFound, "anomaly record not found")
		return
	}
	writeJSON(w, http.StatusOK, record)
}

// handleStats returns aggregate counts across observations and anomaly
// records, including the busiest assets on each side.
func (m *Module) handleStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	totalObs, topByEvents, err := m.source.EventTotals(ctx, 10)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load observation totals")
		return
	}
	totalAnomalies, err := m.store.CountAnomalies(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load anomaly totals")
		return
	}
	topByAnomalies, err := m.store.TopAssetsByAnomalies(ctx, 10)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load anomaly totals")
		return
	}

	if topByEvents == nil {
		topByEvents = []telemetry.AssetCount{}
	}
	if topByAnomalies == nil {
		topByAnomalies = []telemetry.AssetCount{}
	}
	writeJSON(w, http.StatusOK, telemetry.Stats{
		TotalObservations:    totalObs,
		TotalAnomalies:       totalAnomalies,
		TopAssetsByEvents:    topByEvents,
		TopAssetsByAnomalies: topByAnomalies,
	})
}

// -- helpers --

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"type":   "https://rocket-telemetry-ai.dev/problems/" + http.StatusText(status),
		"title":  http.StatusText(status),
		"status": status,
		"detail": detail,
	})
}

func parseLimit(r *http.Request, defaultLimit int) int {
	if s := r.URL.Query().Get("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 && n <= 1000 {
			return n
		}
	}
	return defaultLimit
}

func parseTimeParam(r *http.Request, key string) (*time.Time, error) {
	s := r.URL.Query().Get(key)
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil, fmt.Errorf("invalid %s: must be RFC3339", key)
	}
	return &t, nil
}
