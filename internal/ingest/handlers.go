package ingest

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
		{Method: "POST", Path: "/ingest", Handler: m.handleIngest},
		{Method: "GET", Path: "/observations", Handler: m.handleListObservations},
		{Method: "GET", Path: "/assets", Handler: m.handleListAssets},
	}
}

// handleIngest accepts a batch of telemetry events. Valid events are stored;
// invalid events are reported per-index without failing the batch.
func (m *Module) handleIngest(w http.ResponseWriter, r *http.Request) {
	var req telemetry.IngestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if m.cfg.MaxBatch > 0 && len(req.Events) > m.cfg.MaxBatch {
		writeError(w, http.StatusBadRequest,
			fmt.Sprintf("batch exceeds limit of %d events", m.cfg.MaxBatch))
		return
	}

	resp, err := m.Ingest(r.Context(), req.Events)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to store events")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleListObservations returns stored observations, filtered by asset,
// metric, and time range, ordered by timestamp ascending.
func (m *Module) handleListObservations(w http.ResponseWriter, r *http.Request) {
	filter := ListFilter{
		AssetID: r.URL.Query().Get("asset_id"),
		Metric:  r.URL.Query().Get("metric"),
		Limit:   parseLimit(r, 100),
	}

	since, err := parseTimeParam(r, "since")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	until, err := parseTimeParam(r, "until")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	filter.Since = since
	filter.Until = until

	obs, err := m.store.ListObservations(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list observations")
		return
	}
	if obs == nil {
		obs = []telemetry.Observation{}
	}
	writeJSON(w, http.StatusOK, obs)
}

// handleListAssets returns per-asset observation counts and last-seen times.
func (m *Module) handleListAssets(w http.ResponseWriter, r *http.Request) {
	assets, err := m.store.ListAssets(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list assets")
		return
	}
	if assets == nil {
		assets = []telemetry.AssetSummary{}
	}
	writeJSON(w, http.StatusOK, assets)
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
