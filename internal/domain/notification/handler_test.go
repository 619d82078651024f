package notification

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/medcare/medcare/internal/platform/auth"
)

func actorRequest(method, target string, uid uuid.UUID) *http.Request {
	req := httptest.NewRequest(method, target, nil)
	return req.WithContext(auth.WithActor(req.Context(), auth.Actor{ID: uid, Role: auth.RolePatient}))
}

func TestHandler_ListAndCount(t *testing.T) {
	svc := newTestService(nil)
	h := NewHandler(svc)
	e := echo.New()
	uid := uuid.New()
	svc.Notify(context.Background(), &Notification{UserID: uid, Title: "hello", Message: "m"})
	svc.Notify(context.Background(), &Notification{UserID: uuid.New(), Title: "someone else", Message: "m"})

	rec := httptest.NewRecorder()
	if err := h.List(e.NewContext(actorRequest(http.MethodGet, "/?unread=true", uid), rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "hello") || strings.Contains(body, "someone else") {
		t.Errorf("expected only the caller's inbox, got %s", body)
	}

	rec = httptest.NewRecorder()
	if err := h.UnreadCount(e.NewContext(actorRequest(http.MethodGet, "/", uid), rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(rec.Body.String(), `"count":1`) {
		t.Errorf("expected count 1, got %s", rec.Body.String())
	}
}

func TestHandler_EmptyListIsArray(t *testing.T) {
	h := NewHandler(newTestService(nil))
	rec := httptest.NewRecorder()
	h.List(echo.New().NewContext(actorRequest(http.MethodGet, "/", uuid.New()), rec))
	if !strings.Contains(rec.Body.String(), `"items":[]`) {
		t.Errorf("expected empty array, got %s", rec.Body.String())
	}
}

func TestHandler_MarkRead(t *testing.T) {
	svc := newTestService(nil)
	h := NewHandler(svc)
	e := echo.New()
	uid := uuid.New()
	n := &Notification{UserID: uid, Title: "t", Message: "m"}
	svc.Notify(context.Background(), n)

	c := e.NewContext(actorRequest(http.MethodPost, "/", uid), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues(n.ID.String())
	if err := h.MarkRead(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	c = e.NewContext(actorRequest(http.MethodPost, "/", uuid.New()), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues(n.ID.String())
	err := h.MarkRead(c)
	if he, ok := err.(*echo.HTTPError); !ok || he.Code != http.StatusNotFound {
		t.Errorf("expected 404 for another user's notification, got %v", err)
	}

	c = e.NewContext(actorRequest(http.MethodPost, "/", uid), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues("bad")
	if he, ok := h.MarkRead(c).(*echo.HTTPError); !ok || he.Code != http.StatusBadRequest {
		t.Error("expected 400 for a malformed id")
	}
}

func TestHandler_RequiresCaller(t *testing.T) {
	h := NewHandler(newTestService(nil))
	err := h.MarkAllRead(echo.New().NewContext(httptest.NewRequest(http.MethodPost, "/", nil), httptest.NewRecorder()))
	if he, ok := err.(*echo.HTTPError); !ok || he.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %v", err)
	}
}
