package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/shirou/gopsutil/v3/mem"

	"github.com/stewardhq/steward/errors"
	"github.com/stewardhq/steward/schedule"
	"github.com/stewardhq/steward/store"
	"github.com/stewardhq/steward/version"
)

// HandleHealth answers a liveness probe with build info
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	versionInfo := version.Get()

	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"version":    versionInfo.Version,
		"commit":     versionInfo.CommitHash,
		"build_time": versionInfo.BuildTime,
		"clients":    s.ClientCount(),
	})
}

// jobResponse decorates a stored job with live scheduler state
type jobResponse struct {
	*store.Job
	Running   bool `json:"running"`
	Scheduled bool `json:"scheduled"`
}

// HandleJobs lists all jobs with their live state
func (s *Server) HandleJobs(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}

	jobs, err := s.jobs.GetAll()
	if err != nil {
		writeDomainError(w, err)
		return
	}

	scheduled := make(map[string]bool)
	for _, id := range s.scheduler.ScheduledIDs() {
		scheduled[id] = true
	}

	response := make([]jobResponse, 0, len(jobs))
	for _, job := range jobs {
		response = append(response, jobResponse{
			Job:       job,
			Running:   s.scheduler.IsRunning(job.ID),
			Scheduled: scheduled[job.ID],
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"jobs":    response,
		"count":   len(response),
	})
}

// HandleJob routes per-job operations:
// POST /api/jobs/{id}/trigger, POST /api/jobs/{id}/toggle,
// GET /api/jobs/{id}/executions, GET /api/jobs/{id}
func (s *Server) HandleJob(w http.ResponseWriter, r *http.Request) {
	parts := extractPathParts(r.URL.Path, "/api/jobs/")
	if len(parts) == 0 || parts[0] == "" {
		writeError(w, http.StatusBadRequest, "Missing job ID")
		return
	}
	jobID := parts[0]

	if len(parts) == 1 {
		s.handleGetJob(w, r, jobID)
		return
	}

	switch parts[1] {
	case "trigger":
		s.handleTriggerJob(w, r, jobID)
	case "toggle":
		s.handleToggleJob(w, r, jobID)
	case "executions":
		s.handleJobExecutions(w, r, jobID)
	default:
		writeError(w, http.StatusNotFound, "Unknown job operation: "+parts[1])
	}
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request, jobID string) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}

	job, err := s.jobs.GetByID(jobID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"job": jobResponse{
			Job:     job,
			Running: s.scheduler.IsRunning(job.ID),
		},
	})
}

// handleTriggerJob runs a job immediately. The run-lock rejects a second
// trigger while one run is in flight.
func (s *Server) handleTriggerJob(w http.ResponseWriter, r *http.Request, jobID string) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	s.logger.Infow("Manual trigger", "job_id", jobID, "remote", r.RemoteAddr)

	executionID, err := s.scheduler.Trigger(jobID)
	if err != nil {
		if errors.Is(err, schedule.ErrAlreadyRunning) {
			writeError(w, http.StatusConflict, "Job is already running")
			return
		}
		writeDomainError(w, err)
		return
	}

	// The runner broadcasts execution_finished for every run, so the
	// handler only reports the outcome to the caller.
	writeJSON(w, http.StatusOK, map[string]any{
		"success":      true,
		"execution_id": executionID,
	})
}

// handleToggleJob flips a job's enabled flag and reconciles the timer
func (s *Server) handleToggleJob(w http.ResponseWriter, r *http.Request, jobID string) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	job, err := s.jobs.GetByID(jobID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	updated, err := s.jobs.SetEnabled(jobID, !job.Enabled)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	if updated.Enabled {
		s.scheduler.Register(updated)
	} else {
		s.scheduler.Unregister(jobID)
	}

	s.logger.Infow("Job toggled", "job_id", jobID, "enabled", updated.Enabled)

	s.Broadcast(map[string]any{
		"type":      "job_toggled",
		"job_id":    jobID,
		"enabled":   updated.Enabled,
		"timestamp": time.Now().Unix(),
	})

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"job":     updated,
	})
}

func (s *Server) handleJobExecutions(w http.ResponseWriter, r *http.Request, jobID string) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}

	if _, err := s.jobs.GetByID(jobID); err != nil {
		writeDomainError(w, err)
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeError(w, http.StatusBadRequest, "Invalid limit: "+raw)
			return
		}
		limit = parsed
	}

	executions, err := s.executions.ListByJob(jobID, limit)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"executions": executions,
		"count":      len(executions),
	})
}

// HandleExecution serves one execution with its full action ledger:
// GET /api/executions/{id}
func (s *Server) HandleExecution(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}

	parts := extractPathParts(r.URL.Path, "/api/executions/")
	if len(parts) == 0 || parts[0] == "" {
		writeError(w, http.StatusBadRequest, "Missing execution ID")
		return
	}
	executionID := parts[0]

	exec, err := s.executions.GetByID(executionID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	actions, err := s.actions.ListByExecution(executionID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"execution": exec,
		"actions":   actions,
	})
}

// HandleApprovals lists the pending-approval queue with job context
func (s *Server) HandleApprovals(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}

	pending, err := s.workflow.ListPending()
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"approvals": pending,
		"count":     len(pending),
	})
}

// HandleAction routes human decisions:
// POST /api/actions/{id}/approve, POST /api/actions/{id}/veto
func (s *Server) HandleAction(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	parts := extractPathParts(r.URL.Path, "/api/actions/")
	if len(parts) < 2 || parts[0] == "" {
		writeError(w, http.StatusBadRequest, "Missing action ID or operation")
		return
	}
	actionID := parts[0]

	switch parts[1] {
	case "approve":
		action, err := s.workflow.Approve(r.Context(), actionID)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		s.broadcastDecision("action_approved", action)
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "action": action})
	case "veto":
		var body struct {
			Reason string `json:"reason"`
		}
		if r.ContentLength > 0 && !readJSON(w, r, &body) {
			return
		}
		action, err := s.workflow.Veto(r.Context(), actionID, body.Reason)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		s.broadcastDecision("action_vetoed", action)
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "action": action})
	default:
		writeError(w, http.StatusNotFound, "Unknown action operation: "+parts[1])
	}
}

func (s *Server) broadcastDecision(eventType string, action *store.Action) {
	s.Broadcast(map[string]any{
		"type":         eventType,
		"action_id":    action.ID,
		"execution_id": action.ExecutionID,
		"timestamp":    time.Now().Unix(),
	})
}

// HandleStatus reports process health: uptime, memory, scheduler and
// approval-queue counts
func (s *Server) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}

	status := map[string]any{
		"success":        true,
		"version":        version.Get().Version,
		"uptime_seconds": int(time.Since(s.startedAt).Seconds()),
		"scheduled_jobs": len(s.scheduler.ScheduledIDs()),
		"ws_clients":     s.ClientCount(),
	}

	if pending, err := s.workflow.ListPending(); err == nil {
		status["pending_approvals"] = len(pending)
	}

	if vm, err := mem.VirtualMemory(); err == nil {
		status["memory"] = map[string]any{
			"total_bytes":     vm.Total,
			"available_bytes": vm.Available,
			"used_percent":    vm.UsedPercent,
		}
	}

	writeJSON(w, http.StatusOK, status)
}
