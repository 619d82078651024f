package scheduling

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/medcare/medcare/internal/platform/auth"
	"github.com/medcare/medcare/pkg/response"
)

func newTestHandler(t *testing.T) (*Handler, *fixture, *echo.Echo) {
	f := newFixture(t)
	return NewHandler(f.svc), f, echo.New()
}

func asActor(req *http.Request, a auth.Actor) *http.Request {
	return req.WithContext(auth.WithActor(req.Context(), a))
}

func jsonReq(method, target, body string, a auth.Actor) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return asActor(req, a)
}

func expectStatus(t *testing.T, err error, want int) {
	t.Helper()
	he, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected *echo.HTTPError %d, got %v", want, err)
	}
	if he.Code != want {
		t.Errorf("expected %d, got %d (%v)", want, he.Code, he.Message)
	}
}

func TestHandler_BookAppointment(t *testing.T) {
	h, f, e := newTestHandler(t)
	body := `{"doctor_id":"` + f.doctor.ID.String() + `","date":"2024-06-01","time":"10:00","reason":"checkup"}`
	rec := httptest.NewRecorder()
	c := e.NewContext(jsonReq(http.MethodPost, "/", body, f.patient), rec)

	if err := h.BookAppointment(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	var env struct {
		Success bool        `json:"success"`
		Data    Appointment `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !env.Success || env.Data.Status != StatusPending || env.Data.Date != june1 {
		t.Errorf("unexpected body %s", rec.Body.String())
	}

	// Same slot again is a 400 conflict.
	err := h.BookAppointment(e.NewContext(jsonReq(http.MethodPost, "/", body, f.patient2), httptest.NewRecorder()))
	expectStatus(t, err, http.StatusBadRequest)
	if !strings.Contains(err.(*echo.HTTPError).Message.(string), "already booked") {
		t.Errorf("expected a conflict message, got %v", err)
	}
}

func TestHandler_BookAppointment_InvalidTime(t *testing.T) {
	h, f, e := newTestHandler(t)
	body := `{"doctor_id":"` + f.doctor.ID.String() + `","date":"2024-06-01","time":"25:00"}`
	err := h.BookAppointment(e.NewContext(jsonReq(http.MethodPost, "/", body, f.patient), httptest.NewRecorder()))
	expectStatus(t, err, http.StatusBadRequest)
}

func TestHandler_BookAppointment_BadDate(t *testing.T) {
	h, f, e := newTestHandler(t)
	body := `{"doctor_id":"` + f.doctor.ID.String() + `","date":"June 1st","time":"10:00"}`
	err := h.BookAppointment(e.NewContext(jsonReq(http.MethodPost, "/", body, f.patient), httptest.NewRecorder()))
	expectStatus(t, err, http.StatusBadRequest)
	msg, _ := err.(*echo.HTTPError).Message.(string)
	if !strings.HasPrefix(msg, "invalid request body: ") || strings.Contains(msg, "code=") {
		t.Errorf("expected a flat bind message, got %q", msg)
	}
}

func TestHandler_UpdateAppointment_MalformedBody(t *testing.T) {
	h, f, e := newTestHandler(t)
	a := f.book(t, f.patient, june1, "10:00")

	c := e.NewContext(jsonReq(http.MethodPut, "/", `{"reason":`, f.patient), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues(a.ID.String())
	err := h.UpdateAppointment(c)
	expectStatus(t, err, http.StatusBadRequest)
	if msg, _ := err.(*echo.HTTPError).Message.(string); strings.Contains(msg, "code=") {
		t.Errorf("expected echo's status prefix to be stripped, got %q", msg)
	}
}

func TestHandler_RoutesLeaveUnknownPathsAlone(t *testing.T) {
	h, f, e := newTestHandler(t)
	api := e.Group("/api/v1", func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			c.SetRequest(asActor(c.Request(), f.doctor))
			return next(c)
		}
	})
	h.RegisterRoutes(api)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/no-such-thing", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for a doctor on an unknown path, got %d", rec.Code)
	}

	body := `{"doctor_id":"` + f.doctor.ID.String() + `","date":"2024-06-01","time":"10:00"}`
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, jsonReq(http.MethodPost, "/api/v1/appointments", body, f.doctor))
	if rec.Code != http.StatusForbidden {
		t.Errorf("expected 403 for a doctor booking, got %d", rec.Code)
	}
}

func TestHandler_UpdateAppointment_OtherPatient(t *testing.T) {
	h, f, e := newTestHandler(t)
	a := f.book(t, f.patient, june1, "10:00")

	c := e.NewContext(jsonReq(http.MethodPut, "/", `{"reason":"mine now"}`, f.patient2), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues(a.ID.String())
	expectStatus(t, h.UpdateAppointment(c), http.StatusForbidden)
}

func TestHandler_UpdateStatus(t *testing.T) {
	h, f, e := newTestHandler(t)
	a := f.book(t, f.patient, june1, "10:00")

	rec := httptest.NewRecorder()
	c := e.NewContext(jsonReq(http.MethodPatch, "/", `{"status":"confirmed"}`, f.doctor), rec)
	c.SetParamNames("id")
	c.SetParamValues(a.ID.String())
	if err := h.UpdateStatus(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(rec.Body.String(), `"status":"confirmed"`) {
		t.Errorf("expected confirmed in body, got %s", rec.Body.String())
	}

	c = e.NewContext(jsonReq(http.MethodPatch, "/", `{"status":"confirmed"}`, f.doctor), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues(a.ID.String())
	expectStatus(t, h.UpdateStatus(c), http.StatusBadRequest)
}

func TestHandler_CancelAppointment(t *testing.T) {
	h, f, e := newTestHandler(t)
	a := f.book(t, f.patient, june1, "10:00")

	rec := httptest.NewRecorder()
	c := e.NewContext(asActor(httptest.NewRequest(http.MethodPost, "/", nil), f.patient), rec)
	c.SetParamNames("id")
	c.SetParamValues(a.ID.String())
	if err := h.CancelAppointment(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rec = httptest.NewRecorder()
	c = e.NewContext(asActor(httptest.NewRequest(http.MethodGet, "/", nil), f.patient), rec)
	c.SetParamNames("id")
	c.SetParamValues(a.ID.String())
	if err := h.GetAppointment(c); err != nil {
		t.Fatalf("expected cancelled appointment to be readable: %v", err)
	}
	if !strings.Contains(rec.Body.String(), `"status":"cancelled"`) {
		t.Errorf("expected cancelled status, got %s", rec.Body.String())
	}
}

func TestHandler_GetAppointment_Errors(t *testing.T) {
	h, f, e := newTestHandler(t)

	c := e.NewContext(asActor(httptest.NewRequest(http.MethodGet, "/", nil), f.admin), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues("nope")
	expectStatus(t, h.GetAppointment(c), http.StatusBadRequest)

	c = e.NewContext(asActor(httptest.NewRequest(http.MethodGet, "/", nil), f.admin), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues(f.doctor.ID.String())
	expectStatus(t, h.GetAppointment(c), http.StatusNotFound)

	c = e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	expectStatus(t, h.GetAppointment(c), http.StatusUnauthorized)
}

func TestHandler_ListAppointments(t *testing.T) {
	h, f, e := newTestHandler(t)
	f.book(t, f.patient, june1, "10:00")
	f.book(t, f.patient2, june1, "11:00")

	rec := httptest.NewRecorder()
	c := e.NewContext(asActor(httptest.NewRequest(http.MethodGet, "/?date=2024-06-01", nil), f.patient), rec)
	if err := h.ListAppointments(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(rec.Body.String(), `"total":1`) {
		t.Errorf("expected the patient's single appointment, got %s", rec.Body.String())
	}

	c = e.NewContext(asActor(httptest.NewRequest(http.MethodGet, "/?doctor_id=xyz", nil), f.admin), httptest.NewRecorder())
	expectStatus(t, h.ListAppointments(c), http.StatusBadRequest)
}

func TestHandler_Availability(t *testing.T) {
	h, f, e := newTestHandler(t)
	f.book(t, f.patient, june1, "10:00")

	rec := httptest.NewRecorder()
	c := e.NewContext(asActor(httptest.NewRequest(http.MethodGet, "/?date=2024-06-01", nil), f.patient), rec)
	c.SetParamNames("id")
	c.SetParamValues(f.doctor.ID.String())
	if err := h.Availability(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var env struct {
		response.Envelope
		Data availabilityResponse `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(env.Data.Slots) != 15 {
		t.Errorf("expected 15 slots, got %d", len(env.Data.Slots))
	}

	c = e.NewContext(asActor(httptest.NewRequest(http.MethodGet, "/", nil), f.patient), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues(f.doctor.ID.String())
	expectStatus(t, h.Availability(c), http.StatusBadRequest)

	c = e.NewContext(asActor(httptest.NewRequest(http.MethodGet, "/?date=2024-06-01", nil), f.patient), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues(f.patient2.ID.String())
	expectStatus(t, h.Availability(c), http.StatusNotFound)
}

func TestHandler_CheckConflict(t *testing.T) {
	h, f, e := newTestHandler(t)
	f.book(t, f.patient, june1, "10:00")

	rec := httptest.NewRecorder()
	c := e.NewContext(asActor(httptest.NewRequest(http.MethodGet, "/?date=2024-06-01&time=10:00", nil), f.patient2), rec)
	c.SetParamNames("id")
	c.SetParamValues(f.doctor.ID.String())
	if err := h.CheckConflict(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(rec.Body.String(), `"conflict":true`) || !strings.Contains(rec.Body.String(), `"available":false`) {
		t.Errorf("expected a conflict, got %s", rec.Body.String())
	}

	c = e.NewContext(asActor(httptest.NewRequest(http.MethodGet, "/?date=2024-06-01&time=25:00", nil), f.patient2), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues(f.doctor.ID.String())
	expectStatus(t, h.CheckConflict(c), http.StatusBadRequest)
}
