package delivery

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/flightline-dev/flightline/internal/httpserver"
)

// Handler provides HTTP handlers for the delivery API.
type Handler struct {
	service *Service
	logger  *slog.Logger
}

// NewHandler creates a delivery Handler.
func NewHandler(service *Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Routes mounts the delivery API routes.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.handleDeliver)
	r.Get("/{id}", h.handleGet)
	r.Post("/{id}/replay", h.handleReplay)
	return r
}

type deliverRequest struct {
	Tenant  string          `json:"tenant" validate:"required"`
	Partner string          `json:"partner" validate:"required"`
	Payload json.RawMessage `json:"payload" validate:"required"`
}

func (h *Handler) handleDeliver(w http.ResponseWriter, r *http.Request) {
	var req deliverRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	job, err := h.service.Deliver(r.Context(), req.Tenant, req.Partner, req.Payload)
	if err != nil && job.ID == uuid.Nil {
		h.logger.Error("delivering record", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to accept delivery")
		return
	}

	httpserver.Respond(w, http.StatusAccepted, job)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid job ID")
		return
	}

	job, err := h.service.store.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			httpserver.RespondError(w, http.StatusNotFound, "not_found", "delivery job not found")
			return
		}
		h.logger.Error("getting delivery job", "error", err, "id", id)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to get delivery job")
		return
	}

	httpserver.Respond(w, http.StatusOK, job)
}

type replayRequest struct {
	Force bool `json:"force"`
}

func (h *Handler) handleReplay(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid job ID")
		return
	}

	var req replayRequest
	if r.ContentLength > 0 {
		if !httpserver.DecodeAndValidate(w, r, &req) {
			return
		}
	}

	job, err := h.service.Replay(r.Context(), id, req.Force)
	if err != nil && job.ID == uuid.Nil {
		if errors.Is(err, pgx.ErrNoRows) {
			httpserver.RespondError(w, http.StatusNotFound, "not_found", "delivery job not found")
			return
		}
		h.logger.Error("replaying delivery job", "error", err, "id", id)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to replay delivery job")
		return
	}

	httpserver.Respond(w, http.StatusAccepted, job)
}
