package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/admxx9/pecc-studii-sub000/internal/middleware"
	"github.com/admxx9/pecc-studii-sub000/internal/models"
	"github.com/admxx9/pecc-studii-sub000/internal/services"
)

// TicketHandler serves tickets, their conversations and the contract
// workflow.
type TicketHandler struct {
	tickets   *services.TicketService
	contracts *services.ContractService
}

func NewTicketHandler(tickets *services.TicketService, contracts *services.ContractService) *TicketHandler {
	return &TicketHandler{tickets: tickets, contracts: contracts}
}

func (h *TicketHandler) ListTickets(c echo.Context) error {
	actor, _ := middleware.ActorFrom(c)
	tickets, err := h.tickets.ListTickets(c.Request().Context(), actor)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"tickets": tickets})
}

func (h *TicketHandler) OpenTicket(c echo.Context) error {
	var req services.OpenTicketRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	actor, _ := middleware.ActorFrom(c)

	ticket, err := h.tickets.OpenTicket(c.Request().Context(), actor, req)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, ticket)
}

// GetTicket returns the ticket with its messages.
func (h *TicketHandler) GetTicket(c echo.Context) error {
	actor, _ := middleware.ActorFrom(c)
	ctx := c.Request().Context()

	ticket, err := h.tickets.GetTicket(ctx, actor, c.Param("id"))
	if err != nil {
		return respondError(c, err)
	}
	msgs, err := h.tickets.ListMessages(ctx, actor, ticket.ID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"ticket":   ticket,
		"messages": messageViews(msgs),
	})
}

func (h *TicketHandler) ListMessages(c echo.Context) error {
	actor, _ := middleware.ActorFrom(c)
	msgs, err := h.tickets.ListMessages(c.Request().Context(), actor, c.Param("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"messages": messageViews(msgs)})
}

func (h *TicketHandler) PostMessage(c echo.Context) error {
	var req services.PostMessageRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	actor, _ := middleware.ActorFrom(c)

	msg, err := h.tickets.PostMessage(c.Request().Context(), actor, c.Param("id"), req)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, messageView(msg))
}

// OpenCancellationTicket opens a ticket asking to cancel a pending contract.
func (h *TicketHandler) OpenCancellationTicket(c echo.Context) error {
	actor, _ := middleware.ActorFrom(c)
	ticket, err := h.tickets.OpenCancellationTicket(c.Request().Context(), actor, c.Param("id"), c.Param("messageId"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, ticket)
}

type signRequest struct {
	Name string `json:"name"`
}

func (h *TicketHandler) SignContract(c echo.Context) error {
	var req signRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	actor, _ := middleware.ActorFrom(c)

	msg, err := h.contracts.SignContract(c.Request().Context(), actor, c.Param("id"), c.Param("messageId"), req.Name)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, messageView(msg))
}

type confirmRequest struct {
	Confirmation string `json:"confirmation"`
}

func (h *TicketHandler) ConfirmCancellation(c echo.Context) error {
	var req confirmRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	actor, _ := middleware.ActorFrom(c)

	err := h.contracts.ConfirmCancellation(c.Request().Context(), actor, c.Param("id"), c.Param("messageId"), req.Confirmation)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "cancelled"})
}

// GenerateContract appends a contract to a ticket.
func (h *TicketHandler) GenerateContract(c echo.Context) error {
	var req models.ContractData
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	actor, _ := middleware.ActorFrom(c)

	msg, err := h.contracts.GenerateContract(c.Request().Context(), actor, c.Param("id"), req)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, messageView(msg))
}

func (h *TicketHandler) RequestCancellation(c echo.Context) error {
	actor, _ := middleware.ActorFrom(c)
	msg, err := h.contracts.RequestCancellation(c.Request().Context(), actor, c.Param("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, messageView(msg))
}

type statusRequest struct {
	Status models.TicketStatus `json:"status"`
}

func (h *TicketHandler) SetStatus(c echo.Context) error {
	var req statusRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	actor, _ := middleware.ActorFrom(c)

	if err := h.tickets.SetStatus(c.Request().Context(), actor, c.Param("id"), req.Status); err != nil {
		return respondError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *TicketHandler) DeleteTicket(c echo.Context) error {
	actor, _ := middleware.ActorFrom(c)
	if err := h.tickets.DeleteTicket(c.Request().Context(), actor, c.Param("id")); err != nil {
		return respondError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
