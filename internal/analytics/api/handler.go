package analytics_api

import (
	"errors"
	"fmt"
	"net/http"

	"ms-eventhub/internal/analytics"
	"ms-eventhub/internal/auth"
	"ms-eventhub/internal/events"
	"ms-eventhub/internal/logger"
	"ms-eventhub/internal/utils"

	"github.com/go-chi/chi/v5"
)

// Handler handles analytics HTTP endpoints
type Handler struct {
	Service *analytics.Service
	Logger  *logger.Logger
}

// NewHandler creates a new analytics handler
func NewHandler(service *analytics.Service, logger *logger.Logger) *Handler {
	return &Handler{Service: service, Logger: logger}
}

// RegisterRoutes registers the analytics routes on a chi router
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/event/{id}/analytics", h.GetEventAnalytics)
}

// GetEventAnalytics handles GET /event/{id}/analytics for the organizer.
func (h *Handler) GetEventAnalytics(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "id")
	userID := auth.UserID(r.Context())

	h.Logger.Debug("ANALYTICS", fmt.Sprintf("Analytics requested for event %s by user %s", eventID, userID))
	result, err := h.Service.GetEventAnalytics(r.Context(), eventID, userID)
	switch {
	case errors.Is(err, events.ErrEventNotFound):
		utils.WriteError(w, http.StatusNotFound, "Event not found!")
		return
	case errors.Is(err, analytics.ErrForbidden):
		utils.WriteError(w, http.StatusForbidden, "Only the organizer can view event analytics")
		return
	case err != nil:
		h.Logger.Error("ANALYTICS", fmt.Sprintf("Failed to build analytics for event %s: %v", eventID, err))
		utils.WriteJSON(w, http.StatusInternalServerError, utils.ErrorResponse("Error processing request", err.Error()))
		return
	}

	utils.WriteJSON(w, http.StatusOK, map[string]interface{}{"success": true, "analytics": result})
}
