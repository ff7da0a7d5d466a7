package identity_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/exposechain/exposechain/internal/identity"
)

func newTestTokenIssuer(t *testing.T, ttl time.Duration) *identity.TokenIssuer {
	t.Helper()
	ti, err := identity.NewTokenIssuer("test-secret", "", ttl)
	if err != nil {
		t.Fatal(err)
	}
	return ti
}

func TestNewTokenIssuer_requiresSecret(t *testing.T) {
	if _, err := identity.NewTokenIssuer("", "", 0); err != identity.ErrNoSecret {
		t.Errorf("got %v, want ErrNoSecret", err)
	}
}

func TestTokenIssuer_Issue(t *testing.T) {
	ti := newTestTokenIssuer(t, time.Hour)

	token, err := ti.Issue("ops", nil)
	if err != nil {
		t.Fatalf("Issue() error: %v", err)
	}
	if parts := strings.Split(token, "."); len(parts) != 3 {
		t.Errorf("expected 3-part JWT, got %d parts", len(parts))
	}
}

func TestTokenIssuer_Verify_valid(t *testing.T) {
	ti := newTestTokenIssuer(t, time.Hour)

	token, err := ti.Issue("ops", []string{identity.ScopeScan})
	if err != nil {
		t.Fatal(err)
	}
	claims, err := ti.Verify(token)
	if err != nil {
		t.Fatalf("Verify() error: %v", err)
	}
	if claims.Subject != "ops" {
		t.Errorf("Subject: got %q, want ops", claims.Subject)
	}
	if claims.Issuer != identity.DefaultIssuer {
		t.Errorf("Issuer: got %q", claims.Issuer)
	}
	if !identity.HasScope(claims, identity.ScopeScan) || identity.HasScope(claims, identity.ScopeDiscover) {
		t.Errorf("Scopes: got %v", claims.Scopes)
	}
}

func TestTokenIssuer_Verify_expired(t *testing.T) {
	ti := newTestTokenIssuer(t, time.Nanosecond)

	token, err := ti.Issue("ops", nil)
	if err != nil {
		t.Fatal(err)
	}
	time.Sleep(10 * time.Millisecond)

	if _, err := ti.Verify(token); err == nil {
		t.Error("expected error for expired token")
	}
}

func TestTokenIssuer_Verify_wrongSecret(t *testing.T) {
	other, _ := identity.NewTokenIssuer("other-secret", "", time.Hour)
	token, _ := other.Issue("ops", nil)

	if _, err := newTestTokenIssuer(t, time.Hour).Verify(token); err == nil {
		t.Error("expected error for token signed with another secret")
	}
}

func TestHasScope_unscopedTokenIsUnrestricted(t *testing.T) {
	if !identity.HasScope(&identity.Claims{}, identity.ScopeDiscover) {
		t.Error("unscoped token should grant every scope")
	}
	if identity.HasScope(nil, identity.ScopeDiscover) {
		t.Error("nil claims should grant nothing")
	}
}

func TestRequireToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	ti := newTestTokenIssuer(t, time.Hour)
	scoped, _ := ti.Issue("ops", []string{identity.ScopeDiscover})
	full, _ := ti.Issue("ops", nil)

	r := gin.New()
	r.POST("/scan", identity.RequireToken(ti, identity.ScopeScan), func(c *gin.Context) {
		c.String(http.StatusOK, identity.ClaimsFromCtx(c).Subject)
	})

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"garbage", "Bearer nope", http.StatusUnauthorized},
		{"wrong scope", "Bearer " + scoped, http.StatusForbidden},
		{"valid", "Bearer " + full, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/scan", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			if w.Code != tt.want {
				t.Errorf("status: got %d, want %d", w.Code, tt.want)
			}
		})
	}
}

func TestRequireToken_nilIssuerIsOpen(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/scan", identity.RequireToken(nil, identity.ScopeScan), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/scan", nil))
	if w.Code != http.StatusNoContent {
		t.Errorf("status: got %d", w.Code)
	}
}
