package favorites

import (
	"errors"
	"net/http"

	"ms-eventhub/internal/auth"
	"ms-eventhub/internal/logger"
	"ms-eventhub/internal/utils"

	"github.com/go-chi/chi/v5"
)

type Handler struct {
	Favorites *Service
	Logger    *logger.Logger
}

func (h *Handler) Add(w http.ResponseWriter, r *http.Request) {
	err := h.Favorites.Add(r.Context(), auth.UserID(r.Context()), chi.URLParam(r, "id"))
	if errors.Is(err, ErrEventNotFound) {
		utils.WriteError(w, http.StatusNotFound, "Event not found!")
		return
	}
	if err != nil {
		h.Logger.Error("FAVORITE", err.Error())
		utils.WriteError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Event added to favorites", nil))
}

func (h *Handler) Remove(w http.ResponseWriter, r *http.Request) {
	if err := h.Favorites.Remove(r.Context(), auth.UserID(r.Context()), chi.URLParam(r, "id")); err != nil {
		h.Logger.Error("FAVORITE", err.Error())
		utils.WriteError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Event removed from favorites", nil))
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	events, err := h.Favorites.List(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		h.Logger.Error("FAVORITE", err.Error())
		utils.WriteError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	utils.WriteJSON(w, http.StatusOK, map[string]interface{}{"success": true, "favorites": events})
}
