package ticket_api

import (
	"errors"
	"fmt"
	"net/http"

	"ms-eventhub/internal/auth"
	"ms-eventhub/internal/events"
	"ms-eventhub/internal/logger"
	"ms-eventhub/internal/tickets"
	"ms-eventhub/internal/utils"

	"github.com/go-chi/chi/v5"
)

type Handler struct {
	TicketService *tickets.Service
	Logger        *logger.Logger
}

func (h *Handler) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, tickets.ErrTicketNotFound):
		utils.WriteError(w, http.StatusNotFound, "Ticket not found")
	case errors.Is(err, events.ErrEventNotFound):
		utils.WriteError(w, http.StatusNotFound, "Event not found!")
	case errors.Is(err, tickets.ErrForbidden):
		utils.WriteError(w, http.StatusForbidden, "Not allowed to access this ticket")
	default:
		h.Logger.Error("TICKET", err.Error())
		utils.WriteError(w, http.StatusInternalServerError, "Internal server error")
	}
}

// ListUserTickets handles GET /ticket/user.
func (h *Handler) ListUserTickets(w http.ResponseWriter, r *http.Request) {
	list, err := h.TicketService.ListForUser(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, map[string]interface{}{"success": true, "tickets": list})
}

// ListEventTickets handles GET /ticket/event/{eventId} for the organizer.
func (h *Handler) ListEventTickets(w http.ResponseWriter, r *http.Request) {
	list, err := h.TicketService.ListForEvent(r.Context(), chi.URLParam(r, "eventId"), auth.UserID(r.Context()))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, map[string]interface{}{"success": true, "tickets": list})
}

func (h *Handler) ViewTicket(w http.ResponseWriter, r *http.Request) {
	t, err := h.TicketService.Get(r.Context(), chi.URLParam(r, "ticketId"), auth.UserID(r.Context()))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, map[string]interface{}{"success": true, "ticket": t})
}

func (h *Handler) DeleteTicket(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "ticketId")
	if err := h.TicketService.Delete(r.Context(), id, auth.UserID(r.Context())); err != nil {
		h.writeServiceError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, map[string]interface{}{"success": true, "message": "Ticket deleted successfully"})
}

// QRCode streams the PNG for ?code=, defaulting to the first seat.
func (h *Handler) QRCode(w http.ResponseWriter, r *http.Request) {
	png, err := h.TicketService.QRCode(r.Context(), chi.URLParam(r, "ticketId"), r.URL.Query().Get("code"), auth.UserID(r.Context()))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}

func (h *Handler) DownloadPDF(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "ticketId")
	pdf, err := h.TicketService.PDF(r.Context(), id, auth.UserID(r.Context()))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=ticket-%s.pdf", id))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(pdf)
}
