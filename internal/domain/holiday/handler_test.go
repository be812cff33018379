package holiday

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinicsched/scheduler/internal/platform/auth"
)

func newTestHandler(t *testing.T) (*Handler, *mockRepo, *echo.Echo) {
	svc, repo := newTestService(t)
	return NewHandler(svc, "us"), repo, echo.New()
}

func expectCode(t *testing.T, err error, code int) {
	t.Helper()
	var he *echo.HTTPError
	if !errors.As(err, &he) || he.Code != code {
		t.Fatalf("expected HTTPError %d, got %v", code, err)
	}
}

func TestHandler_ListHolidays(t *testing.T) {
	h, _, e := newTestHandler(t)
	req := httptest.NewRequest(http.MethodGet, "/?year=2024", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.ListHolidays(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var out struct {
		Country  string    `json:"country"`
		Year     int       `json:"year"`
		Holidays []Holiday `json:"holidays"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Country != "US" || out.Year != 2024 || len(out.Holidays) != 11 {
		t.Errorf("unexpected response %s %d %d", out.Country, out.Year, len(out.Holidays))
	}
	if out.Holidays[0].Date.String() != "2024-01-01" {
		t.Errorf("expected date to round-trip, got %s", out.Holidays[0].Date)
	}
}

func TestHandler_ListHolidays_BadInput(t *testing.T) {
	h, _, e := newTestHandler(t)
	for _, q := range []string{"?country=ZZ", "?year=abc", "?year=12"} {
		t.Run(q, func(t *testing.T) {
			c := e.NewContext(httptest.NewRequest(http.MethodGet, "/"+q, nil), httptest.NewRecorder())
			expectCode(t, h.ListHolidays(c), http.StatusBadRequest)
		})
	}
}

func TestHandler_UpdateHoliday(t *testing.T) {
	h, repo, e := newTestHandler(t)
	h.svc.EnsureYear(context.Background(), "US", 2024)
	var id uuid.UUID
	for k, v := range repo.holidays {
		if v.Name == "Christmas Day" {
			id = k
		}
	}

	req := httptest.NewRequest(http.MethodPatch, "/", strings.NewReader(`{"suppressed":true}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(id.String())

	if err := h.UpdateHoliday(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !repo.holidays[id].Suppressed {
		t.Error("expected holiday suppressed")
	}
}

func TestHandler_UpdateHoliday_Errors(t *testing.T) {
	h, _, e := newTestHandler(t)
	tests := []struct {
		name string
		id   string
		body string
		code int
	}{
		{"invalid id", "nope", `{"suppressed":true}`, http.StatusBadRequest},
		{"empty body", uuid.NewString(), `{}`, http.StatusBadRequest},
		{"not found", uuid.NewString(), `{"recognized":false}`, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPatch, "/", strings.NewReader(tt.body))
			req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
			c := e.NewContext(req, httptest.NewRecorder())
			c.SetParamNames("id")
			c.SetParamValues(tt.id)
			expectCode(t, h.UpdateHoliday(c), tt.code)
		})
	}
}

func TestHandler_RoutesRequireAdminForUpdates(t *testing.T) {
	h, _, e := newTestHandler(t)
	h.RegisterRoutes(e.Group("/api/v1"))

	req := httptest.NewRequest(http.MethodPatch, "/api/v1/holidays/"+uuid.NewString(), strings.NewReader(`{"suppressed":true}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req = req.WithContext(auth.WithIdentity(req.Context(), "u", []string{auth.RoleStaff}, uuid.Nil))
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Errorf("expected 403 for staff, got %d", rec.Code)
	}
}
