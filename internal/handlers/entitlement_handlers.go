package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/admxx9/pecc-studii-sub000/internal/middleware"
	"github.com/admxx9/pecc-studii-sub000/internal/models"
	"github.com/admxx9/pecc-studii-sub000/internal/services"
)

type EntitlementHandler struct {
	entitlements *services.EntitlementService
}

func NewEntitlementHandler(entitlements *services.EntitlementService) *EntitlementHandler {
	return &EntitlementHandler{entitlements: entitlements}
}

type redeemRequest struct {
	Code string `json:"code"`
}

// Redeem consumes a code for the caller.
func (h *EntitlementHandler) Redeem(c echo.Context) error {
	var req redeemRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	actor, _ := middleware.ActorFrom(c)

	res, err := h.entitlements.Redeem(c.Request().Context(), actor.UserID, req.Code)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

// GenerateCodes creates a batch of codes.
func (h *EntitlementHandler) GenerateCodes(c echo.Context) error {
	var req services.GenerateCodesRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	actor, _ := middleware.ActorFrom(c)

	codes, err := h.entitlements.GenerateCodes(c.Request().Context(), actor, req)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, map[string]any{"codes": codes})
}

// ListCodes lists codes, optionally filtered with ?status=.
func (h *EntitlementHandler) ListCodes(c echo.Context) error {
	actor, _ := middleware.ActorFrom(c)
	codes, err := h.entitlements.ListCodes(c.Request().Context(), actor, models.CodeStatus(c.QueryParam("status")))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"codes": codes})
}

func (h *EntitlementHandler) DeleteCode(c echo.Context) error {
	actor, _ := middleware.ActorFrom(c)
	if err := h.entitlements.DeleteCode(c.Request().Context(), actor, c.Param("id")); err != nil {
		return respondError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

type setPlanRequest struct {
	PlanType models.PlanType `json:"planType"`
}

// SetPlan overrides a member's plan.
func (h *EntitlementHandler) SetPlan(c echo.Context) error {
	var req setPlanRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	actor, _ := middleware.ActorFrom(c)

	if err := h.entitlements.SetPlan(c.Request().Context(), actor, c.Param("id"), req.PlanType); err != nil {
		return respondError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
