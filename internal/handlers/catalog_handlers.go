package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/admxx9/pecc-studii-sub000/internal/middleware"
	"github.com/admxx9/pecc-studii-sub000/internal/services"
)

type CatalogHandler struct {
	catalog *services.CatalogService
}

func NewCatalogHandler(catalog *services.CatalogService) *CatalogHandler {
	return &CatalogHandler{catalog: catalog}
}

func (h *CatalogHandler) ListLessons(c echo.Context) error {
	actor, _ := middleware.ActorFrom(c)
	lessons, err := h.catalog.ListLessons(c.Request().Context(), actor)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"lessons": lessons})
}

func (h *CatalogHandler) GetLesson(c echo.Context) error {
	actor, _ := middleware.ActorFrom(c)
	lesson, err := h.catalog.GetLesson(c.Request().Context(), actor, c.Param("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, lesson)
}

func (h *CatalogHandler) ListTools(c echo.Context) error {
	actor, _ := middleware.ActorFrom(c)
	tools, err := h.catalog.ListTools(c.Request().Context(), actor)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"tools": tools})
}

// DownloadLink returns {downloadUrl} for ?toolId=.
func (h *CatalogHandler) DownloadLink(c echo.Context) error {
	actor, _ := middleware.ActorFrom(c)
	url, err := h.catalog.DownloadLink(c.Request().Context(), actor, c.QueryParam("toolId"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"downloadUrl": url})
}
