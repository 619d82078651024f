package identity

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/medcare/medcare/internal/platform/auth"
	"github.com/medcare/medcare/pkg/response"
)

func newTestHandler() (*Handler, *echo.Echo) {
	return NewHandler(newTestService()), echo.New()
}

func jsonRequest(method, body string) *http.Request {
	req := httptest.NewRequest(method, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return req
}

func assertHTTPStatus(t *testing.T, err error, want int) {
	t.Helper()
	he, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected *echo.HTTPError with %d, got %v", want, err)
	}
	if he.Code != want {
		t.Errorf("expected %d, got %d (%v)", want, he.Code, he.Message)
	}
}

func TestHandler_Register(t *testing.T) {
	h, e := newTestHandler()
	rec := httptest.NewRecorder()
	c := e.NewContext(jsonRequest(http.MethodPost, `{"name":"Jane","email":"jane@example.com","password":"12345678"}`), rec)

	if err := h.Register(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "password") {
		t.Error("password hash must not be serialized")
	}
	var env response.Envelope
	json.Unmarshal(rec.Body.Bytes(), &env)
	if !env.Success {
		t.Errorf("expected success envelope, got %s", rec.Body.String())
	}
}

func TestHandler_Register_Errors(t *testing.T) {
	h, e := newTestHandler()
	body := `{"name":"Jane","email":"jane@example.com","password":"12345678"}`
	h.Register(e.NewContext(jsonRequest(http.MethodPost, body), httptest.NewRecorder()))

	err := h.Register(e.NewContext(jsonRequest(http.MethodPost, body), httptest.NewRecorder()))
	assertHTTPStatus(t, err, http.StatusConflict)

	err = h.Register(e.NewContext(jsonRequest(http.MethodPost, `{"name":"","email":"x","password":"1"}`), httptest.NewRecorder()))
	assertHTTPStatus(t, err, http.StatusBadRequest)
}

func TestHandler_Login(t *testing.T) {
	h, e := newTestHandler()
	h.svc.SeedDemo(context.Background())

	rec := httptest.NewRecorder()
	c := e.NewContext(jsonRequest(http.MethodPost, `{"email":"doctor@medcare.local","password":"`+DemoPassword+`"}`), rec)
	if err := h.Login(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(rec.Body.String(), `"token"`) {
		t.Errorf("expected token in body, got %s", rec.Body.String())
	}

	err := h.Login(e.NewContext(jsonRequest(http.MethodPost, `{"email":"doctor@medcare.local","password":"nope-nope"}`), httptest.NewRecorder()))
	assertHTTPStatus(t, err, http.StatusUnauthorized)
}

func TestHandler_Me(t *testing.T) {
	h, e := newTestHandler()
	users, _ := h.svc.SeedDemo(context.Background())
	patient := users[2]

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(auth.WithActor(req.Context(), auth.Actor{ID: patient.ID, Role: patient.Role}))
	rec := httptest.NewRecorder()
	if err := h.Me(e.NewContext(req, rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(rec.Body.String(), patient.Email) {
		t.Errorf("expected own profile, got %s", rec.Body.String())
	}

	err := h.Me(e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder()))
	assertHTTPStatus(t, err, http.StatusUnauthorized)
}

func TestHandler_GetUser(t *testing.T) {
	h, e := newTestHandler()
	users, _ := h.svc.SeedDemo(context.Background())

	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues(users[0].ID.String())
	if err := h.GetUser(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	c = e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues("not-a-uuid")
	assertHTTPStatus(t, h.GetUser(c), http.StatusBadRequest)
}

func TestHandler_ListDoctors(t *testing.T) {
	h, e := newTestHandler()
	h.svc.SeedDemo(context.Background())

	rec := httptest.NewRecorder()
	if err := h.ListDoctors(e.NewContext(httptest.NewRequest(http.MethodGet, "/?limit=5", nil), rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(rec.Body.String(), `"total":1`) {
		t.Errorf("expected one doctor, got %s", rec.Body.String())
	}
}
