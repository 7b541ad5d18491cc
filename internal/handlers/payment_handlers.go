package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/admxx9/pecc-studii-sub000/internal/middleware"
	"github.com/admxx9/pecc-studii-sub000/internal/services"
)

type PaymentHandler struct {
	payments *services.PaymentService
}

func NewPaymentHandler(payments *services.PaymentService) *PaymentHandler {
	return &PaymentHandler{payments: payments}
}

// CreatePixOrder returns {qr_code_text, qr_code_url} for a plan checkout.
// Members always pay as themselves; missing payer fields are taken from the
// signed-in user.
func (h *PaymentHandler) CreatePixOrder(c echo.Context) error {
	var req services.PixOrderRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	actor, _ := middleware.ActorFrom(c)
	if req.UserID == "" || !actor.IsAdmin {
		req.UserID = actor.UserID
	}
	if req.UserName == "" {
		req.UserName = actor.Name
	}
	if req.UserEmail == "" {
		req.UserEmail = actor.Email
	}

	order, err := h.payments.CreatePixOrder(c.Request().Context(), req)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, order)
}
