package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

func contextWith(p Principal) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(WithPrincipal(context.Background(), p))
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func okHandler(c echo.Context) error { return c.String(http.StatusOK, "ok") }

func TestRequireRole_Allowed(t *testing.T) {
	c, rec := contextWith(Principal{UserID: uuid.New(), Role: RoleDoctor})
	if err := RequireRole(RoleDoctor)(okHandler)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestRequireRole_AdminPassesAll(t *testing.T) {
	c, _ := contextWith(Principal{UserID: uuid.New(), Role: RoleAdmin})
	if err := RequireRole(RolePatient)(okHandler)(c); err != nil {
		t.Fatalf("admin should pass: %v", err)
	}
}

func TestRequireRole_Denied(t *testing.T) {
	c, _ := contextWith(Principal{UserID: uuid.New(), Role: RolePatient})
	err := RequireRole(RoleDoctor)(okHandler)(c)
	expectStatus(t, err, http.StatusForbidden)
}

func TestRequireRole_NoPrincipal(t *testing.T) {
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	err := RequireRole(RoleDoctor)(okHandler)(c)
	expectStatus(t, err, http.StatusForbidden)
}

func TestProfileID(t *testing.T) {
	doctorID := uuid.New()
	c, _ := contextWith(Principal{UserID: uuid.New(), Role: RoleDoctor, ProfileID: doctorID})

	got, err := ProfileID(c, RoleDoctor)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != doctorID {
		t.Errorf("expected %s, got %s", doctorID, got)
	}

	_, err = ProfileID(c, RolePatient)
	expectStatus(t, err, http.StatusForbidden)
}

func TestProfileID_AdminHasNoProfile(t *testing.T) {
	c, _ := contextWith(Principal{UserID: uuid.New(), Role: RoleAdmin})
	_, err := ProfileID(c, RoleDoctor)
	expectStatus(t, err, http.StatusForbidden)
}
