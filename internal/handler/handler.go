package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/julienschmidt/httprouter"

	"meeting-booking-api/internal/booking"
	"meeting-booking-api/internal/logger"
	"meeting-booking-api/internal/middleware"
	"meeting-booking-api/internal/model"
	"meeting-booking-api/internal/validator"
)

const bookingFailedMessage = "The meeting could not be booked."

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Handler struct {
	service   *booking.Service
	validator *validator.MeetingValidator
	store     Pinger
	log       *logger.Logger
}

func New(service *booking.Service, v *validator.MeetingValidator, store Pinger, log *logger.Logger) *Handler {
	return &Handler{
		service:   service,
		validator: v,
		store:     store,
		log:       log,
	}
}

type resultResponse struct {
	Result string                     `json:"result"`
	Errors validator.ValidationErrors `json:"errors,omitempty"`
}

type listResponse struct {
	Data []model.Meeting `json:"data"`
}

type healthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database,omitempty"`
}

func (h *Handler) RegisterRoutes(router *httprouter.Router) {
	router.POST("/api/meetings", h.Schedule)
	router.GET("/api/users/:id/meetings", h.ListForUser)
	router.GET("/health", h.Health)
	router.GET("/ready", h.Ready)
}

func (h *Handler) Schedule(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	log := h.log.With("request_id", middleware.RequestIDFromContext(r.Context()))

	var req validator.MeetingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Debug("Malformed booking request", "error", err)
		h.writeJSON(w, http.StatusBadRequest, resultResponse{Result: "Invalid request body"})
		return
	}

	if err := h.validator.Validate(&req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			h.writeJSON(w, http.StatusUnprocessableEntity, resultResponse{Result: verrs.Error(), Errors: verrs})
			return
		}
		h.writeJSON(w, http.StatusUnprocessableEntity, resultResponse{Result: err.Error()})
		return
	}

	br, err := req.ToBookingRequest()
	if err != nil {
		h.writeJSON(w, http.StatusUnprocessableEntity, resultResponse{Result: err.Error()})
		return
	}

	if err := h.service.ScheduleMeeting(r.Context(), br); err != nil {
		var ce *booking.ConflictError
		if errors.As(err, &ce) {
			h.writeJSON(w, http.StatusBadRequest, resultResponse{Result: ce.Error()})
			return
		}
		log.Error("Booking failed", "users", br.UserIDs, "error", err)
		h.writeJSON(w, http.StatusInternalServerError, resultResponse{Result: bookingFailedMessage})
		return
	}

	h.writeJSON(w, http.StatusCreated, resultResponse{Result: booking.SuccessMessage})
}

func (h *Handler) ListForUser(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	userID, err := strconv.ParseInt(ps.ByName("id"), 10, 64)
	if err != nil || userID <= 0 {
		h.writeJSON(w, http.StatusBadRequest, resultResponse{Result: "Invalid user id"})
		return
	}

	meetings, err := h.service.ListMeetings(r.Context(), userID)
	if err != nil {
		h.writeJSON(w, http.StatusInternalServerError, resultResponse{Result: "Could not load meetings"})
		return
	}
	if meetings == nil {
		meetings = []model.Meeting{}
	}
	h.writeJSON(w, http.StatusOK, listResponse{Data: meetings})
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	h.writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
}

func (h *Handler) Ready(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.store.Ping(ctx); err != nil {
		h.log.Error("Database health check failed", "error", err, "path", r.URL.Path)
		h.writeJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "unavailable", Database: "error"})
		return
	}
	h.writeJSON(w, http.StatusOK, healthResponse{Status: "ready", Database: "ok"})
}

func (h *Handler) writeJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error("failed to write JSON response", "status", statusCode, "error", err)
	}
}
