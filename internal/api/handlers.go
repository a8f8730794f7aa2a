package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"vesper/internal/scheduler"
	logx "vesper/pkg/logx"
)

// scheduleRequest is the JSON body for POST /schedule.
type scheduleRequest struct {
	JobID    string `json:"job_id"`
	Command  string `json:"command"`
	Schedule string `json:"schedule"`
}

// statusResponse is the JSON response for GET /system/status.
type statusResponse struct {
	Uptime    float64            `json:"uptime_seconds"`
	Scheduler scheduler.Snapshot `json:"scheduler"`
}

func (s *Server) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

func (s *Server) handleScheduleJob() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req scheduleRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
			return
		}
		req.JobID = strings.TrimSpace(req.JobID)
		req.Command = strings.TrimSpace(req.Command)
		req.Schedule = strings.TrimSpace(req.Schedule)
		if req.JobID == "" || req.Command == "" || req.Schedule == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "job_id, command and schedule are required"})
			return
		}

		if !s.engine.Running() {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "scheduler is not running"})
			return
		}
		if !s.engine.ScheduleFromText(req.JobID, req.Command, req.Schedule) {
			s.log.Debug("schedule rejected",
				logx.String("job", req.JobID), logx.String("schedule", req.Schedule))
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unrecognized schedule: " + req.Schedule})
			return
		}

		writeJSON(w, http.StatusCreated, map[string]string{"status": "scheduled", "job_id": req.JobID})
	}
}

func (s *Server) handleListJobs() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		jobs := s.engine.Jobs()
		writeJSON(w, http.StatusOK, map[string]any{"jobs": jobs, "count": len(jobs)})
	}
}

func (s *Server) handleRemoveJob() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "jobID")
		if !s.engine.RemoveJob(id) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "no such job: " + id})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "removed", "job_id": id})
	}
}

func (s *Server) handleStatus() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, statusResponse{
			Uptime:    time.Since(s.startedAt).Truncate(time.Second).Seconds(),
			Scheduler: s.engine.Snapshot(),
		})
	}
}

func (s *Server) handleHistory() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// Prefer the persistent store; fall back to the in-memory ring.
		if s.store == nil {
			items := s.engine.History()
			writeJSON(w, http.StatusOK, map[string]any{"runs": items, "count": len(items)})
			return
		}

		jobID := strings.TrimSpace(r.URL.Query().Get("job"))
		limit := 50
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n <= 0 {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be a positive integer"})
				return
			}
			limit = n
		}

		runs, err := s.store.Recent(r.Context(), jobID, limit)
		if err != nil {
			s.log.Warn("history query failed", logx.Err(err))
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "history unavailable"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"runs": runs, "count": len(runs)})
	}
}

// writeJSON encodes v as JSON with the given status code.
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
