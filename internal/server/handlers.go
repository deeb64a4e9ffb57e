package server

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	gormdb "github.com/thebtf/graphtag/internal/db/gorm"
	"github.com/thebtf/graphtag/internal/graph"
	"github.com/thebtf/graphtag/pkg/models"
)

const (
	defaultRunLimit = 20
	maxRunLimit     = 200
)

// RunSummary is the response to a triggered run.
type RunSummary struct {
	Clusters   []graph.ClusterSummary `json:"clusters"`
	RunID      string                 `json:"run_id"`
	Input      string                 `json:"input"`
	Output     string                 `json:"output"`
	Prune      graph.PruneStats       `json:"prune"`
	DurationMs int64                  `json:"duration_ms"`
	Nodes      int                    `json:"nodes"`
	Edges      int                    `json:"edges"`
	Components int                    `json:"components"`
}

func (s *Service) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "starting"
	if s.ready.Load() {
		status = "ready"
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":      status,
		"version":     s.version,
		"uptime":      time.Since(s.startTime).Round(time.Second).String(),
		"sse_clients": s.sseBroadcaster.ClientCount(),
		"store":       s.store != nil,
	})
}

func (s *Service) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"version": s.version})
}

func (s *Service) handleReady(w http.ResponseWriter, r *http.Request) {
	if !s.ready.Load() {
		writeError(w, http.StatusServiceUnavailable, "service not ready")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Service) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if !s.haveStore(w) {
		return
	}
	limit := ParseLimitParam(r, defaultRunLimit)
	if limit > maxRunLimit {
		limit = maxRunLimit
	}
	runs, err := s.store.ListRuns(r.Context(), limit)
	if err != nil {
		s.storeError(w, err)
		return
	}
	if runs == nil {
		runs = []gormdb.Run{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"runs": runs, "limit": limit})
}

func (s *Service) handleLatestRun(w http.ResponseWriter, r *http.Request) {
	if !s.haveStore(w) {
		return
	}
	run, err := s.store.LatestRun(r.Context())
	if err != nil {
		s.storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *Service) handleGetRun(w http.ResponseWriter, r *http.Request) {
	if !s.haveStore(w) {
		return
	}
	run, err := s.store.GetRun(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// handleComponents returns the run's component map in the same shape as the output file.
func (s *Service) handleComponents(w http.ResponseWriter, r *http.Request) {
	if !s.haveStore(w) {
		return
	}
	id := chi.URLParam(r, "id")
	if _, err := s.store.GetRun(r.Context(), id); err != nil {
		s.storeError(w, err)
		return
	}
	rows, err := s.store.Assignments(r.Context(), id)
	if err != nil {
		s.storeError(w, err)
		return
	}

	if r.URL.Query().Get("detail") == "true" {
		writeJSON(w, http.StatusOK, rows)
		return
	}
	m := make(models.ComponentMap, len(rows))
	for _, a := range rows {
		m[a.ChunkID] = a.ClusterID
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *Service) handleSalience(w http.ResponseWriter, r *http.Request) {
	if !s.haveStore(w) {
		return
	}
	id := chi.URLParam(r, "id")
	if _, err := s.store.GetRun(r.Context(), id); err != nil {
		s.storeError(w, err)
		return
	}
	rows, err := s.store.Salience(r.Context(), id)
	if err != nil {
		s.storeError(w, err)
		return
	}
	if limit := ParseLimitParam(r, 0); limit > 0 && limit < len(rows) {
		rows = rows[:limit]
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Service) handleTriggerRun(w http.ResponseWriter, r *http.Request) {
	if s.trigger == nil {
		writeError(w, http.StatusServiceUnavailable, "runs cannot be triggered")
		return
	}

	res, err := s.trigger.RunDir(r.Context())
	if err != nil {
		var se *graph.StageError
		if errors.As(err, &se) {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]string{
				"error": err.Error(),
				"stage": se.Stage,
			})
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, RunSummary{
		RunID:      res.RunID,
		Input:      res.Input,
		Output:     res.OutputPath,
		Nodes:      res.Graph.NumNodes(),
		Edges:      res.Graph.NumEdges(),
		Components: res.Stats.Count,
		Prune:      res.Prune,
		Clusters:   res.Clusters,
		DurationMs: res.Durations.Total().Milliseconds(),
	})
}

func (s *Service) haveStore(w http.ResponseWriter) bool {
	if s.store == nil {
		writeError(w, http.StatusServiceUnavailable, "run store disabled")
		return false
	}
	return true
}

func (s *Service) storeError(w http.ResponseWriter, err error) {
	if errors.Is(err, gormdb.ErrRunNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	log.Error().Err(err).Msg("Run store query failed")
	writeError(w, http.StatusInternalServerError, "store error")
}

// ParseLimitParam parses the "limit" query parameter from an HTTP request.
// Returns defaultLimit if the parameter is missing or invalid.
func ParseLimitParam(r *http.Request, defaultLimit int) int {
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			return parsed
		}
	}
	return defaultLimit
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug().Err(err).Msg("Failed to write response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
