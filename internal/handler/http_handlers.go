// Package handler serves the admin HTTP API and Discord interactions.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/z0w13/dmserv/internal/middleware"
	"github.com/z0w13/dmserv/internal/model"
	"github.com/z0w13/dmserv/internal/service"
	"github.com/z0w13/dmserv/internal/util"
	"go.uber.org/zap"
)

// passTimeout bounds a manually triggered pass, which outlives the request
// that started it
const passTimeout = 5 * time.Minute

// GuildReconciler runs one on-demand pass for a guild
type GuildReconciler interface {
	RunGuild(ctx context.Context, guildID string) (*model.ApplyReport, error)
}

// TaskRunner triggers a scheduled task immediately
type TaskRunner interface {
	RunNow(ctx context.Context, name string) error
}

// StatsProvider returns a stats snapshot
type StatsProvider interface {
	Snapshot(ctx context.Context) (*service.StatsSnapshot, error)
}

// GuildOverviewer returns a guild's stored setup
type GuildOverviewer interface {
	Overview(ctx context.Context, guildID string) (*service.GuildOverview, error)
}

// ReconcileResponse is the body of a successful reconcile request
type ReconcileResponse struct {
	Status   string            `json:"status"`
	Task     string            `json:"task"`
	GuildID  string            `json:"guild_id"`
	Created  int               `json:"created"`
	Deleted  int               `json:"deleted"`
	Updated  int               `json:"updated"`
	Summary  string            `json:"summary"`
	Failures []FailureResponse `json:"failures,omitempty"`
}

// FailureResponse describes one failed operation
type FailureResponse struct {
	Op       string `json:"op"`
	Name     string `json:"name"`
	RemoteID string `json:"remote_id,omitempty"`
	Error    string `json:"error"`
}

// Handlers contains all admin HTTP handlers and their dependencies.
type Handlers struct {
	fronters     GuildReconciler
	roles        GuildReconciler
	tasks        TaskRunner
	stats        StatsProvider
	guilds       GuildOverviewer
	errorHandler *ErrorHandler
	logger       *zap.Logger
}

// NewHandlers creates a new Handlers instance. roles may be nil when member
// role reconciliation is disabled.
func NewHandlers(
	fronters GuildReconciler,
	roles GuildReconciler,
	tasks TaskRunner,
	stats StatsProvider,
	guilds GuildOverviewer,
	errorHandler *ErrorHandler,
	logger *zap.Logger,
) *Handlers {
	return &Handlers{
		fronters:     fronters,
		roles:        roles,
		tasks:        tasks,
		stats:        stats,
		guilds:       guilds,
		errorHandler: errorHandler,
		logger:       logger,
	}
}

// ReconcileFronters handles POST /v1/guilds/{guild_id}/reconcile/fronters
func (h *Handlers) ReconcileFronters(w http.ResponseWriter, r *http.Request) {
	h.reconcile(w, r, service.TaskUpdateFronters, h.fronters)
}

// ReconcileRoles handles POST /v1/guilds/{guild_id}/reconcile/roles
func (h *Handlers) ReconcileRoles(w http.ResponseWriter, r *http.Request) {
	h.reconcile(w, r, service.TaskUpdateMemberRoles, h.roles)
}

func (h *Handlers) reconcile(w http.ResponseWriter, r *http.Request, task string, reconciler GuildReconciler) {
	reqID := requestID(r)
	guildID, ok := h.guildID(w, r)
	if !ok {
		return
	}
	if reconciler == nil {
		h.errorHandler.WriteErrorResponse(w, http.StatusNotFound, ErrorCodeNotFound, task+" is disabled", reqID)
		return
	}

	// A pass runs to completion even if the client goes away
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), passTimeout)
	defer cancel()

	report, err := reconciler.RunGuild(ctx, guildID)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	resp := ReconcileResponse{
		Status:  "ok",
		Task:    task,
		GuildID: guildID,
		Created: report.Created,
		Deleted: report.Deleted,
		Updated: report.Updated,
		Summary: report.Summary(),
	}
	for _, f := range report.Failures {
		resp.Failures = append(resp.Failures, FailureResponse{
			Op:       string(f.Kind),
			Name:     f.Name,
			RemoteID: f.RemoteID,
			Error:    f.Err.Error(),
		})
	}
	if report.HasFailures() {
		resp.Status = "partial"
	}

	h.writeJSONResponse(w, http.StatusOK, resp)
}

// GetGuild handles GET /v1/guilds/{guild_id}
func (h *Handlers) GetGuild(w http.ResponseWriter, r *http.Request) {
	guildID, ok := h.guildID(w, r)
	if !ok {
		return
	}

	overview, err := h.guilds.Overview(r.Context(), guildID)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	h.writeJSONResponse(w, http.StatusOK, overview)
}

// GetStats handles GET /v1/stats
func (h *Handlers) GetStats(w http.ResponseWriter, r *http.Request) {
	snapshot, err := h.stats.Snapshot(r.Context())
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	h.writeJSONResponse(w, http.StatusOK, snapshot)
}

// RunTask handles POST /v1/tasks/{task}/run
func (h *Handlers) RunTask(w http.ResponseWriter, r *http.Request) {
	reqID := requestID(r)
	name := mux.Vars(r)["task"]

	err := h.tasks.RunNow(context.WithoutCancel(r.Context()), name)
	switch {
	case errors.Is(err, service.ErrTaskNotFound):
		h.errorHandler.WriteErrorResponse(w, http.StatusNotFound, ErrorCodeNotFound, err.Error(), reqID)
	case errors.Is(err, service.ErrTaskBusy):
		h.errorHandler.WriteErrorResponse(w, http.StatusConflict, ErrorCodeTaskBusy, err.Error(), reqID)
	case err != nil:
		h.errorHandler.HandleError(w, r, err)
	default:
		h.writeJSONResponse(w, http.StatusOK, map[string]string{"status": "ok", "task": name})
	}
}

func (h *Handlers) guildID(w http.ResponseWriter, r *http.Request) (string, bool) {
	guildID := mux.Vars(r)["guild_id"]
	if _, err := util.SnowflakeToInt64(guildID); err != nil {
		h.errorHandler.WriteValidationError(w, "invalid guild id", requestID(r))
		return "", false
	}
	return guildID, true
}

// requestID prefers the id set by the RequestID middleware
func requestID(r *http.Request) string {
	if id := middleware.RequestIDFromContext(r.Context()); id != "" {
		return id
	}
	return r.Header.Get("X-Request-ID")
}

func (h *Handlers) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", zap.Error(err))
	}
}
