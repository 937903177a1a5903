package notification

import (
	"net/http"
	"strconv"

	"ms-eventhub/internal/auth"
	"ms-eventhub/internal/logger"
	"ms-eventhub/internal/utils"

	"github.com/go-chi/chi/v5"
)

type Handler struct {
	Notifications *Service
	Logger        *logger.Logger
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	items, err := h.Notifications.List(r.Context(), auth.UserID(r.Context()), limit)
	if err != nil {
		h.Logger.Error("NOTIFY", err.Error())
		utils.WriteError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	utils.WriteJSON(w, http.StatusOK, map[string]interface{}{"success": true, "notifications": items})
}

func (h *Handler) MarkRead(w http.ResponseWriter, r *http.Request) {
	ok, err := h.Notifications.MarkRead(r.Context(), auth.UserID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		h.Logger.Error("NOTIFY", err.Error())
		utils.WriteError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	if !ok {
		utils.WriteError(w, http.StatusNotFound, "Notification not found")
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Notification marked as read", nil))
}
