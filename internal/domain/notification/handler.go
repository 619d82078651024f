package notification

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/medcare/medcare/internal/platform/auth"
	"github.com/medcare/medcare/pkg/pagination"
	"github.com/medcare/medcare/pkg/response"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts the caller's inbox. Every route is scoped to the
// authenticated user.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/notifications", auth.RequireAuth())
	g.GET("", h.List)
	g.GET("/unread-count", h.UnreadCount)
	g.POST("/read-all", h.MarkAllRead)
	g.POST("/:id/read", h.MarkRead)
}

func caller(c echo.Context) (uuid.UUID, error) {
	actor, ok := auth.ActorFromContext(c.Request().Context())
	if !ok {
		return uuid.Nil, echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}
	return actor.ID, nil
}

func (h *Handler) List(c echo.Context) error {
	uid, err := caller(c)
	if err != nil {
		return err
	}
	unread, _ := strconv.ParseBool(c.QueryParam("unread"))
	pg := pagination.FromContext(c)

	items, total, err := h.svc.ListForUser(c.Request().Context(), uid, unread, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if items == nil {
		items = []*Notification{}
	}
	return response.OK(c, "notifications retrieved", pagination.NewPage(items, total, pg))
}

func (h *Handler) UnreadCount(c echo.Context) error {
	uid, err := caller(c)
	if err != nil {
		return err
	}
	n, err := h.svc.UnreadCount(c.Request().Context(), uid)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return response.OK(c, "unread count retrieved", map[string]int{"count": n})
}

func (h *Handler) MarkRead(c echo.Context) error {
	uid, err := caller(c)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	n, err := h.svc.MarkRead(c.Request().Context(), uid, id)
	if errors.Is(err, ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return response.OK(c, "notification marked as read", n)
}

func (h *Handler) MarkAllRead(c echo.Context) error {
	uid, err := caller(c)
	if err != nil {
		return err
	}
	n, err := h.svc.MarkAllRead(c.Request().Context(), uid)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return response.OK(c, "notifications marked as read", map[string]int{"updated": n})
}
