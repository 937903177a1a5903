package order_api

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"ms-eventhub/internal/auth"
	"ms-eventhub/internal/checkout"
	"ms-eventhub/internal/events"
	"ms-eventhub/internal/logger"
	"ms-eventhub/internal/order"
	"ms-eventhub/internal/promo"
	"ms-eventhub/internal/utils"

	"github.com/go-chi/chi/v5"
)

type Handler struct {
	OrderService *order.Service
	Promos       *promo.Ledger
	Logger       *logger.Logger
}

type validatePromoRequest struct {
	EventID   string `json:"eventId" validate:"required"`
	PromoCode string `json:"promoCode" validate:"required,max=64"`
}

func (h *Handler) writeServiceError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, events.ErrEventNotFound), errors.Is(err, sql.ErrNoRows):
		utils.WriteError(w, http.StatusNotFound, "Event not found!")
	case errors.Is(err, order.ErrCapacityExhausted):
		utils.WriteError(w, http.StatusConflict, "All tickets sold! Ticket out of stock")
	case errors.Is(err, order.ErrSessionNotFound):
		utils.WriteError(w, http.StatusNotFound, "Checkout session not found")
	case errors.Is(err, order.ErrForbidden):
		utils.WriteError(w, http.StatusForbidden, "This checkout session belongs to another user")
	case errors.Is(err, order.ErrAlreadyPaid):
		utils.WriteError(w, http.StatusConflict, "Checkout session is already paid")
	case errors.Is(err, checkout.ErrInvalidMetadata):
		h.Logger.Error("API", fmt.Sprintf("%s: %v", op, err))
		utils.WriteError(w, http.StatusUnprocessableEntity, "Checkout session is missing order details")
	default:
		h.Logger.Error("API", fmt.Sprintf("%s: %v", op, err))
		utils.WriteJSON(w, http.StatusInternalServerError, utils.ErrorResponse("Error processing request", err.Error()))
	}
}

// Buy handles POST /event/buy.
func (h *Handler) Buy(w http.ResponseWriter, r *http.Request) {
	var req order.BuyRequest
	if err := utils.DecodeAndValidate(r, &req); err != nil {
		utils.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	id, _ := auth.FromContext(r.Context())

	res, err := h.OrderService.Buy(r.Context(), order.Buyer{UserID: id.UserID, Email: id.Email}, req)
	if err != nil {
		h.writeServiceError(w, "Buy", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success":   true,
		"url":       res.URL,
		"sessionId": res.SessionID,
		"discount":  res.Discount,
	})
}

// VerifyPayment handles GET /event/verify-payment?session_id=.
func (h *Handler) VerifyPayment(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		utils.WriteError(w, http.StatusBadRequest, "session_id is required")
		return
	}

	res, err := h.OrderService.VerifyPayment(r.Context(), auth.UserID(r.Context()), sessionID)
	if errors.Is(err, order.ErrPaymentNotConfirmed) {
		utils.WriteJSON(w, http.StatusOK, map[string]interface{}{"success": false, "message": "Payment not completed"})
		return
	}
	if err != nil {
		h.writeServiceError(w, "VerifyPayment", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Payment verified successfully",
		"ticket":  res.Ticket,
		"created": res.Created,
	})
}

// ValidatePromo handles POST /event/validate-promo. A bad code is a 200 with valid=false.
func (h *Handler) ValidatePromo(w http.ResponseWriter, r *http.Request) {
	var req validatePromoRequest
	if err := utils.DecodeAndValidate(r, &req); err != nil {
		utils.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	v, err := h.Promos.Validate(r.Context(), req.EventID, auth.UserID(r.Context()), req.PromoCode)
	if err != nil {
		h.writeServiceError(w, "ValidatePromo", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success":            true,
		"valid":              v.Valid,
		"discountPercentage": v.DiscountPercentage,
		"message":            v.Message,
	})
}

// Quote handles GET /event/{id}/quote?quantity=&promoCode=.
func (h *Handler) Quote(w http.ResponseWriter, r *http.Request) {
	qty := 1
	if raw := r.URL.Query().Get("quantity"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 50 {
			utils.WriteError(w, http.StatusBadRequest, "quantity must be between 1 and 50")
			return
		}
		qty = n
	}

	q, err := h.OrderService.Quote(r.Context(), chi.URLParam(r, "id"), qty, r.URL.Query().Get("promoCode"))
	if err != nil {
		h.writeServiceError(w, "Quote", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, map[string]interface{}{"success": true, "quote": q})
}

// SessionDetails handles GET /event/session/{sessionId}.
func (h *Handler) SessionDetails(w http.ResponseWriter, r *http.Request) {
	d, err := h.OrderService.SessionDetails(r.Context(), auth.UserID(r.Context()), chi.URLParam(r, "sessionId"))
	if err != nil {
		h.writeServiceError(w, "SessionDetails", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, map[string]interface{}{"success": true, "session": d})
}

// CancelCheckout handles DELETE /event/session/{sessionId}.
func (h *Handler) CancelCheckout(w http.ResponseWriter, r *http.Request) {
	if err := h.OrderService.CancelCheckout(r.Context(), auth.UserID(r.Context()), chi.URLParam(r, "sessionId")); err != nil {
		h.writeServiceError(w, "CancelCheckout", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Checkout canceled", nil))
}

// StripeWebhook handles webhook events from Stripe
func (h *Handler) StripeWebhook(w http.ResponseWriter, r *http.Request) {
	err := h.OrderService.HandleStripeWebhook(r)
	if err != nil {
		var webhookErr *order.WebhookError
		if errors.As(err, &webhookErr) {
			h.Logger.Info("API", fmt.Sprintf("StripeWebhook: handling webhook error category=%s, status=%d",
				webhookErr.Category, webhookErr.StatusCode))
			utils.WriteError(w, webhookErr.StatusCode, webhookErr.PublicError)
			return
		}
		utils.WriteError(w, http.StatusBadRequest, "Webhook processing error")
		return
	}
	utils.WriteJSON(w, http.StatusOK, map[string]bool{"received": true})
}
