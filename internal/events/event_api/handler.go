package event_api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"ms-eventhub/internal/auth"
	"ms-eventhub/internal/events"
	"ms-eventhub/internal/logger"
	"ms-eventhub/internal/utils"

	"github.com/go-chi/chi/v5"
)

type Handler struct {
	Events *events.Service
	Logger *logger.Logger
}

func (h *Handler) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, events.ErrEventNotFound):
		utils.WriteError(w, http.StatusNotFound, "Event not found!")
	case errors.Is(err, events.ErrVenueNotFound):
		utils.WriteError(w, http.StatusNotFound, "Venue not found!")
	case errors.Is(err, events.ErrForbidden):
		utils.WriteError(w, http.StatusForbidden, "Only the organizer can modify this event")
	case errors.Is(err, events.ErrInvalidPromo):
		utils.WriteError(w, http.StatusConflict, err.Error())
	default:
		h.Logger.Error("EVENT", err.Error())
		utils.WriteError(w, http.StatusInternalServerError, "Internal server error")
	}
}

// GetEvent returns the event with its current dynamic price.
func (h *Handler) GetEvent(w http.ResponseWriter, r *http.Request) {
	d, err := h.Events.Details(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"event":   d.Event,
		"pricing": map[string]interface{}{
			"basePrice":      d.BasePrice,
			"dynamicPrice":   d.DynamicPrice,
			"percentSold":    d.PercentSold,
			"daysUntilEvent": d.DaysUntilEvent,
			"ticketsSold":    d.TicketsSold,
		},
	})
}

func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	list, err := h.Events.List(r.Context(), limit, offset)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, map[string]interface{}{"success": true, "events": list})
}

// TicketsCount is public: total seats sold for the event.
func (h *Handler) TicketsCount(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := h.Events.GetEvent(r.Context(), id); err != nil {
		h.writeServiceError(w, err)
		return
	}
	n, err := h.Events.TicketsSold(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, map[string]interface{}{"success": true, "total_count": n})
}

func (h *Handler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	var in events.EventInput
	if err := utils.DecodeAndValidate(r, &in); err != nil {
		utils.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	event, err := h.Events.CreateEvent(r.Context(), auth.UserID(r.Context()), in)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.Logger.Info("EVENT", fmt.Sprintf("Event %s created", event.ID))
	utils.WriteJSON(w, http.StatusCreated, map[string]interface{}{"success": true, "event": event})
}

func (h *Handler) CreateVenue(w http.ResponseWriter, r *http.Request) {
	var in events.VenueInput
	if err := utils.DecodeAndValidate(r, &in); err != nil {
		utils.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	venue, err := h.Events.CreateVenue(r.Context(), in)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusCreated, map[string]interface{}{"success": true, "venue": venue})
}

// UpdatePromo handles PUT /event/{id}/promo.
func (h *Handler) UpdatePromo(w http.ResponseWriter, r *http.Request) {
	var in events.PromoInput
	if err := utils.DecodeAndValidate(r, &in); err != nil {
		utils.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	event, err := h.Events.UpdatePromo(r.Context(), auth.UserID(r.Context()), chi.URLParam(r, "id"), in)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, map[string]interface{}{"success": true, "event": event})
}
