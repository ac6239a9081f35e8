//go:build !integration

package web

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"guia-paracuru/internal/usecase"
)

const (
	testSecret = "test-admin-jwt-secret-please-change"
	testKey    = "test-admin-key"
)

func newTestLogger() *zerolog.Logger {
	logger := zerolog.Nop()
	return &logger
}

func TestAuthMiddleware(t *testing.T) {
	dummyHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	auth := NewAuthManager(testSecret, false, "", time.Minute)
	server := NewServer(nil, nil, testKey, auth, newTestLogger())
	protected := server.authMiddleware(dummyHandler)

	send := func(mutate func(r *http.Request)) int {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/stats", nil)
		mutate(req)
		rr := httptest.NewRecorder()
		protected.ServeHTTP(rr, req)
		return rr.Code
	}

	t.Run("no credentials -> 401", func(t *testing.T) {
		if code := send(func(*http.Request) {}); code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", code)
		}
	})

	t.Run("wrong scheme -> 401", func(t *testing.T) {
		code := send(func(r *http.Request) { r.Header.Set("Authorization", "Basic aaa.bbb.ccc") })
		if code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", code)
		}
	})

	t.Run("bearer but invalid jwt -> 401", func(t *testing.T) {
		code := send(func(r *http.Request) { r.Header.Set("Authorization", "Bearer invalid.jwt.token") })
		if code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", code)
		}
	})

	t.Run("token signed with another secret -> 401", func(t *testing.T) {
		other := NewAuthManager("another-secret", false, "", time.Minute)
		token, _ := other.Mint(httptest.NewRecorder())
		code := send(func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+token) })
		if code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", code)
		}
	})

	t.Run("expired token -> 401", func(t *testing.T) {
		stale := NewAuthManager(testSecret, false, "", time.Minute)
		stale.now = func() time.Time { return time.Now().Add(-time.Hour) }
		token, _ := stale.Mint(httptest.NewRecorder())
		code := send(func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+token) })
		if code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", code)
		}
	})

	t.Run("token without the admin issuer -> 401", func(t *testing.T) {
		claims := AdminClaims{Role: "admin", RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		}}
		token, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
		code := send(func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+token) })
		if code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", code)
		}
	})

	t.Run("valid bearer jwt -> 200", func(t *testing.T) {
		token, err := auth.Mint(httptest.NewRecorder())
		if err != nil || token == "" {
			t.Fatalf("failed to mint test token: %v", err)
		}
		code := send(func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+token) })
		if code != http.StatusOK {
			t.Fatalf("expected 200, got %d", code)
		}
	})

	t.Run("valid session cookie -> 200", func(t *testing.T) {
		token, _ := auth.Mint(httptest.NewRecorder())
		code := send(func(r *http.Request) { r.AddCookie(&http.Cookie{Name: "admin_session", Value: token}) })
		if code != http.StatusOK {
			t.Fatalf("expected 200, got %d", code)
		}
	})

	t.Run("no auth manager configured -> 401", func(t *testing.T) {
		protectedNoAuth := NewServer(nil, nil, testKey, nil, newTestLogger()).authMiddleware(dummyHandler)
		rr := httptest.NewRecorder()
		protectedNoAuth.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/admin/stats", nil))
		if rr.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", rr.Code)
		}
	})
}

func TestAdminLoginLogoutFlow(t *testing.T) {
	auth := NewAuthManager(testSecret, false, "", time.Minute)
	h := NewServer(newMockSettingsUC(), &mockStatsUC{}, testKey, auth, newTestLogger()).Handler()

	var sessionCookie *http.Cookie

	t.Run("login with wrong key -> 401", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/auth/login", bytes.NewBufferString(`{"key":"wrong"}`))
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		if rr.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", rr.Code)
		}
	})

	t.Run("login with correct key -> 204 + cookie set", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/auth/login", bytes.NewBufferString(`{"key":"test-admin-key"}`))
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		if rr.Code != http.StatusNoContent {
			t.Fatalf("expected 204, got %d", rr.Code)
		}
		for _, c := range rr.Result().Cookies() {
			if c.Name == "admin_session" {
				sessionCookie = c
				break
			}
		}
		if sessionCookie == nil || sessionCookie.Value == "" || !sessionCookie.HttpOnly {
			t.Fatal("expected an http-only admin_session cookie")
		}
	})

	t.Run("protected route with cookie -> 200", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/settings", nil)
		req.AddCookie(sessionCookie)
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rr.Code)
		}
	})

	t.Run("logout -> 204 and cookie cleared", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/auth/logout", nil)
		req.AddCookie(sessionCookie)
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		if rr.Code != http.StatusNoContent {
			t.Fatalf("expected 204, got %d", rr.Code)
		}
		cleared := false
		for _, c := range rr.Result().Cookies() {
			cleared = cleared || (c.Name == "admin_session" && c.MaxAge < 0)
		}
		if !cleared {
			t.Error("expected the session cookie to be expired")
		}
	})

	t.Run("after logout without cookie -> 401", func(t *testing.T) {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/admin/settings", nil))
		if rr.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", rr.Code)
		}
	})
}

func TestSettingsAndStats(t *testing.T) {
	auth := NewAuthManager(testSecret, false, "", time.Minute)
	token, _ := auth.Mint(httptest.NewRecorder())

	call := func(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
		req.Header.Set("Authorization", "Bearer "+token)
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		return rr
	}

	t.Run("should read and update premium terms", func(t *testing.T) {
		// --- Arrange ---
		settings := newMockSettingsUC()
		h := NewServer(settings, &mockStatsUC{}, testKey, auth, newTestLogger()).Handler()

		// --- Act ---
		put := call(h, http.MethodPut, "/api/v1/admin/settings", `{"premium_price":"4.9","premium_duration_days":15}`)
		get := call(h, http.MethodGet, "/api/v1/admin/settings", "")

		// --- Assert ---
		if put.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", put.Code, put.Body.String())
		}
		var got settingsPayload
		if err := json.Unmarshal(get.Body.Bytes(), &got); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if got.PremiumPrice != "4.90" || got.PremiumDurationDays != 15 {
			t.Errorf("unexpected settings %+v", got)
		}
	})

	t.Run("should reject invalid terms with 400", func(t *testing.T) {
		h := NewServer(newMockSettingsUC(), &mockStatsUC{}, testKey, auth, newTestLogger()).Handler()

		for _, body := range []string{
			`{"premium_price":"abc","premium_duration_days":30}`,
			`{"premium_price":"0","premium_duration_days":30}`,
			`{"premium_price":"1.99","premium_duration_days":0}`,
			`not json`,
		} {
			if rr := call(h, http.MethodPut, "/api/v1/admin/settings", body); rr.Code != http.StatusBadRequest {
				t.Errorf("expected 400 for %s, got %d", body, rr.Code)
			}
		}
	})

	t.Run("should report revenue and active entitlements", func(t *testing.T) {
		stats := &mockStatsUC{
			rev: usecase.Revenue{
				Day:   decimal.RequireFromString("1.99"),
				Week:  decimal.RequireFromString("3.98"),
				Month: decimal.RequireFromString("5.97"),
			},
			active: 2,
		}
		h := NewServer(newMockSettingsUC(), stats, testKey, auth, newTestLogger()).Handler()

		rr := call(h, http.MethodGet, "/api/v1/admin/stats", "")

		var got statsResponse
		if err := json.Unmarshal(rr.Body.Bytes(), &got); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if got.Revenue.Day != "1.99" || got.Revenue.Month != "5.97" || got.ActiveEntitlements != 2 {
			t.Errorf("unexpected stats %+v", got)
		}
	})

	t.Run("should answer 500 when stats fail", func(t *testing.T) {
		h := NewServer(newMockSettingsUC(), &mockStatsUC{err: errors.New("db down")}, testKey, auth, newTestLogger()).Handler()

		if rr := call(h, http.MethodGet, "/api/v1/admin/stats", ""); rr.Code != http.StatusInternalServerError {
			t.Errorf("expected 500, got %d", rr.Code)
		}
	})
}
