package scheduling

import (
	"errors"
	"fmt"
	"net/http"

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

// RegisterRoutes mounts the appointment endpoints on an authenticated group.
// Role checks are attached per route: a middleware group without a prefix
// would also catch every unknown path under api.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	authed := auth.RequireAuth()
	api.GET("/appointments", h.ListAppointments, authed)
	api.GET("/appointments/:id", h.GetAppointment, authed)
	api.GET("/doctors/:id/availability", h.Availability, authed)
	api.GET("/doctors/:id/conflict", h.CheckConflict, authed)

	// Ownership and role rules for these are enforced by the service.
	api.PUT("/appointments/:id", h.UpdateAppointment, authed)
	api.PATCH("/appointments/:id/status", h.UpdateStatus, authed)
	api.POST("/appointments/:id/cancel", h.CancelAppointment, authed)

	api.POST("/appointments", h.BookAppointment, auth.RequireRole(auth.RolePatient, auth.RoleAdmin))
}

// httpError maps service errors onto status codes. A taken slot is a 400 with
// its own message.
func httpError(err error) error {
	var verr *ValidationError
	switch {
	case errors.As(err, &verr):
		return echo.NewHTTPError(http.StatusBadRequest, verr.Error())
	case errors.Is(err, ErrSlotTaken), errors.Is(err, ErrInvalidTransition):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrForbidden):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrDoctorNotFound), errors.Is(err, ErrPatientNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrConcurrentUpdate):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}

// bindBody decodes the request body into v. Echo reports bind failures as
// HTTPErrors; only their message is passed on.
func bindBody(c echo.Context, v interface{}) error {
	err := c.Bind(v)
	if err == nil {
		return nil
	}
	msg := err.Error()
	var he *echo.HTTPError
	if errors.As(err, &he) {
		msg = fmt.Sprint(he.Message)
	}
	return echo.NewHTTPError(http.StatusBadRequest, "invalid request body: "+msg)
}

func actorOf(c echo.Context) (auth.Actor, error) {
	actor, ok := auth.ActorFromContext(c.Request().Context())
	if !ok {
		return auth.Actor{}, echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}
	return actor, nil
}

func idParam(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

func dateQuery(c echo.Context) (Date, error) {
	raw := c.QueryParam("date")
	if raw == "" {
		return Date{}, echo.NewHTTPError(http.StatusBadRequest, "date query parameter is required")
	}
	d, err := ParseDate(raw)
	if err != nil {
		return Date{}, echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return d, nil
}

func (h *Handler) BookAppointment(c echo.Context) error {
	actor, err := actorOf(c)
	if err != nil {
		return err
	}
	var a Appointment
	if err := bindBody(c, &a); err != nil {
		return err
	}
	if err := h.svc.BookAppointment(c.Request().Context(), actor, &a); err != nil {
		return httpError(err)
	}
	return response.Created(c, "appointment booked", a)
}

func (h *Handler) GetAppointment(c echo.Context) error {
	actor, err := actorOf(c)
	if err != nil {
		return err
	}
	id, err := idParam(c)
	if err != nil {
		return err
	}
	a, err := h.svc.GetAppointment(c.Request().Context(), actor, id)
	if err != nil {
		return httpError(err)
	}
	return response.OK(c, "appointment retrieved", a)
}

func (h *Handler) ListAppointments(c echo.Context) error {
	actor, err := actorOf(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)

	f := Filter{Status: c.QueryParam("status")}
	if raw := c.QueryParam("date"); raw != "" {
		if f.Date, err = ParseDate(raw); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
	}
	if raw := c.QueryParam("doctor_id"); raw != "" {
		if f.DoctorID, err = uuid.Parse(raw); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid doctor_id")
		}
	}
	if raw := c.QueryParam("patient_id"); raw != "" {
		if f.PatientID, err = uuid.Parse(raw); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid patient_id")
		}
	}

	items, total, err := h.svc.ListAppointments(c.Request().Context(), actor, f, pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	if items == nil {
		items = []*Appointment{}
	}
	return response.OK(c, "appointments retrieved", pagination.NewPage(items, total, pg))
}

func (h *Handler) UpdateAppointment(c echo.Context) error {
	actor, err := actorOf(c)
	if err != nil {
		return err
	}
	id, err := idParam(c)
	if err != nil {
		return err
	}
	var p Patch
	if err := bindBody(c, &p); err != nil {
		return err
	}
	a, err := h.svc.UpdateAppointment(c.Request().Context(), actor, id, p)
	if err != nil {
		return httpError(err)
	}
	return response.OK(c, "appointment updated", a)
}

type statusRequest struct {
	Status string  `json:"status"`
	Reason *string `json:"reason,omitempty"`
}

func (h *Handler) UpdateStatus(c echo.Context) error {
	actor, err := actorOf(c)
	if err != nil {
		return err
	}
	id, err := idParam(c)
	if err != nil {
		return err
	}
	var req statusRequest
	if err := bindBody(c, &req); err != nil {
		return err
	}
	a, err := h.svc.UpdateStatus(c.Request().Context(), actor, id, req.Status, req.Reason)
	if err != nil {
		return httpError(err)
	}
	return response.OK(c, "appointment status updated", a)
}

type cancelRequest struct {
	Reason *string `json:"reason,omitempty"`
}

func (h *Handler) CancelAppointment(c echo.Context) error {
	actor, err := actorOf(c)
	if err != nil {
		return err
	}
	id, err := idParam(c)
	if err != nil {
		return err
	}
	var req cancelRequest
	if c.Request().ContentLength != 0 {
		if err := bindBody(c, &req); err != nil {
			return err
		}
	}
	a, err := h.svc.CancelAppointment(c.Request().Context(), actor, id, req.Reason)
	if err != nil {
		return httpError(err)
	}
	return response.OK(c, "appointment cancelled", a)
}

type availabilityResponse struct {
	DoctorID uuid.UUID `json:"doctor_id"`
	Date     Date      `json:"date"`
	Slots    []string  `json:"slots"`
}

func (h *Handler) Availability(c echo.Context) error {
	doctorID, err := idParam(c)
	if err != nil {
		return err
	}
	date, err := dateQuery(c)
	if err != nil {
		return err
	}
	slots, err := h.svc.Availability(c.Request().Context(), doctorID, date)
	if err != nil {
		return httpError(err)
	}
	return response.OK(c, "availability retrieved", availabilityResponse{DoctorID: doctorID, Date: date, Slots: slots})
}

type conflictResponse struct {
	DoctorID  uuid.UUID `json:"doctor_id"`
	Date      Date      `json:"date"`
	Time      string    `json:"time"`
	Conflict  bool      `json:"conflict"`
	Available bool      `json:"available"`
}

func (h *Handler) CheckConflict(c echo.Context) error {
	doctorID, err := idParam(c)
	if err != nil {
		return err
	}
	date, err := dateQuery(c)
	if err != nil {
		return err
	}
	clock := c.QueryParam("time")
	conflict, err := h.svc.CheckConflict(c.Request().Context(), doctorID, date, clock)
	if err != nil {
		return httpError(err)
	}
	norm, _ := NormalizeClock(clock)
	return response.OK(c, "conflict check complete", conflictResponse{
		DoctorID: doctorID, Date: date, Time: norm, Conflict: conflict, Available: !conflict && h.svc.grid.Contains(norm),
	})
}
