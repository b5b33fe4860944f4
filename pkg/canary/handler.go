package canary

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/flightline-dev/flightline/internal/httpserver"
)

// Handler provides HTTP handlers for the canary deployment API.
type Handler struct {
	service *Service
	logger  *slog.Logger
}

// NewHandler creates a canary Handler.
func NewHandler(service *Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Routes mounts the canary API routes.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.handleStart)
	r.Get("/", h.handleList)
	r.Get("/{id}", h.handleStatus)
	r.Post("/{id}/rollback", h.handleRollback)
	r.Post("/{id}/resume", h.handleResume)
	return r
}

type startRequest struct {
	Service string `json:"service" validate:"required"`
	Version string `json:"version" validate:"required"`
	Region  string `json:"region" validate:"required"`
}

func (h *Handler) handleStart(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	d, err := h.service.Start(r.Context(), req.Service, req.Version, req.Region)
	if err != nil {
		switch err.(type) {
		case ErrServiceNotCanaryEnabled, ErrRegionNotAllowed, ErrNoStages:
			httpserver.RespondError(w, http.StatusBadRequest, "bad_request", err.Error())
		default:
			h.logger.Error("starting deployment", "error", err)
			httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to start deployment")
		}
		return
	}

	httpserver.Respond(w, http.StatusCreated, d)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	deployments, err := h.service.List(r.Context())
	if err != nil {
		h.logger.Error("listing deployments", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to list deployments")
		return
	}
	httpserver.Respond(w, http.StatusOK, deployments)
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid deployment ID")
		return
	}

	d, err := h.service.Status(r.Context(), id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			httpserver.RespondError(w, http.StatusNotFound, "not_found", "deployment not found")
			return
		}
		h.logger.Error("getting deployment", "error", err, "id", id)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to get deployment")
		return
	}
	httpserver.Respond(w, http.StatusOK, d)
}

type rollbackRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) handleRollback(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid deployment ID")
		return
	}

	var req rollbackRequest
	if r.ContentLength > 0 {
		if !httpserver.DecodeAndValidate(w, r, &req) {
			return
		}
	}
	if req.Reason == "" {
		req.Reason = "operator-initiated rollback"
	}

	d, err := h.service.Rollback(r.Context(), id, req.Reason)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			httpserver.RespondError(w, http.StatusNotFound, "not_found", "deployment not found")
			return
		}
		h.logger.Error("rolling back deployment", "error", err, "id", id)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to roll back deployment")
		return
	}
	httpserver.Respond(w, http.StatusOK, d)
}

func (h *Handler) handleResume(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid deployment ID")
		return
	}

	d, err := h.service.Resume(r.Context(), id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			httpserver.RespondError(w, http.StatusNotFound, "not_found", "deployment not found")
			return
		}
		h.logger.Error("resuming deployment", "error", err, "id", id)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to resume deployment")
		return
	}
	httpserver.Respond(w, http.StatusOK, d)
}
