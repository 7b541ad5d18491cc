package handlers

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/admxx9/pecc-studii-sub000/internal/middleware"
	"github.com/admxx9/pecc-studii-sub000/internal/services"
)

// Deps are the services the API is built on.
type Deps struct {
	Verifier     middleware.TokenVerifier
	Sessions     SessionIssuer
	Users        *services.UserService
	Entitlements *services.EntitlementService
	Contracts    *services.ContractService
	Tickets      *services.TicketService
	Catalog      *services.CatalogService
	Payments     *services.PaymentService
	SecureCookie bool
	Now          func() time.Time
}

// Register mounts the JSON API on e.
func Register(e *echo.Echo, d Deps) {
	authHandler := NewAuthHandler(d.Sessions, d.Users, d.SecureCookie)
	if d.Now != nil {
		authHandler.now = d.Now
	}
	entitlementHandler := NewEntitlementHandler(d.Entitlements)
	ticketHandler := NewTicketHandler(d.Tickets, d.Contracts)
	catalogHandler := NewCatalogHandler(d.Catalog)
	paymentHandler := NewPaymentHandler(d.Payments)

	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	// Public routes
	e.POST("/api/auth/login", authHandler.HandleLogin)
	e.POST("/api/auth/logout", authHandler.HandleLogout)

	// Member routes
	api := e.Group("/api")
	api.Use(middleware.RequireAuth(d.Verifier, d.Users, d.Now))
	api.GET("/me", authHandler.Me)
	api.POST("/redeem", entitlementHandler.Redeem)

	api.GET("/lessons", catalogHandler.ListLessons)
	api.GET("/lessons/:id", catalogHandler.GetLesson)
	api.GET("/tools", catalogHandler.ListTools)
	api.GET("/download-link", catalogHandler.DownloadLink)

	api.POST("/payments/pix", paymentHandler.CreatePixOrder)

	api.GET("/tickets", ticketHandler.ListTickets)
	api.POST("/tickets", ticketHandler.OpenTicket)
	api.GET("/tickets/:id", ticketHandler.GetTicket)
	api.GET("/tickets/:id/messages", ticketHandler.ListMessages)
	api.POST("/tickets/:id/messages", ticketHandler.PostMessage)
	api.POST("/tickets/:id/contracts/:messageId/sign", ticketHandler.SignContract)
	api.POST("/tickets/:id/contracts/:messageId/cancellation-ticket", ticketHandler.OpenCancellationTicket)
	api.POST("/tickets/:id/cancellations/:messageId/confirm", ticketHandler.ConfirmCancellation)

	// Admin routes
	admin := api.Group("/admin", middleware.RequireAdmin)
	admin.GET("/codes", entitlementHandler.ListCodes)
	admin.POST("/codes", entitlementHandler.GenerateCodes)
	admin.DELETE("/codes/:id", entitlementHandler.DeleteCode)
	admin.PUT("/users/:id/plan", entitlementHandler.SetPlan)
	admin.POST("/tickets/:id/contracts", ticketHandler.GenerateContract)
	admin.POST("/tickets/:id/cancellations", ticketHandler.RequestCancellation)
	admin.PUT("/tickets/:id/status", ticketHandler.SetStatus)
	admin.DELETE("/tickets/:id", ticketHandler.DeleteTicket)
}
