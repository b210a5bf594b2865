package auth

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

func newAuthRouter(signer *Signer, seen *uuid.UUID) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	handler := func(c *gin.Context) {
		if id, ok := GetUserID(c.Request.Context()); ok {
			*seen = id
		}
		c.Status(http.StatusOK)
	}
	r.GET("/private", RequireAuth(signer), handler)
	r.GET("/admin", RequireAuth(signer), RequireRole(RoleAdmin), handler)
	r.GET("/maybe", OptionalAuth(signer), handler)
	r.GET("/login", func(c *gin.Context) {
		tok, _ := signer.GenerateToken(Identity{UserID: uuid.New()})
		SetTokenCookie(c, tok, true)
		c.Status(http.StatusOK)
	})
	r.GET("/logout", func(c *gin.Context) {
		ClearTokenCookie(c, false)
		c.Status(http.StatusOK)
	})
	return r
}

func TestAuthMiddleware(t *testing.T) {
	signer, _ := newTestSigner(t)
	userID := uuid.New()
	userTok, _ := signer.GenerateToken(Identity{UserID: userID, Role: RoleUser})
	adminTok, _ := signer.GenerateToken(Identity{UserID: uuid.New(), Role: RoleAdmin})

	tests := []struct {
		name       string
		path       string
		setup      func(*http.Request)
		wantStatus int
		wantUser   bool
	}{
		{
			name:       "bearer header",
			path:       "/private",
			setup:      func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+userTok.Value) },
			wantStatus: http.StatusOK,
			wantUser:   true,
		},
		{
			name:       "cookie",
			path:       "/private",
			setup:      func(r *http.Request) { r.AddCookie(&http.Cookie{Name: CookieName, Value: userTok.Value}) },
			wantStatus: http.StatusOK,
			wantUser:   true,
		},
		{
			name:       "missing token",
			path:       "/private",
			setup:      func(r *http.Request) {},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "header without bearer prefix",
			path:       "/private",
			setup:      func(r *http.Request) { r.Header.Set("Authorization", userTok.Value) },
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "garbage token",
			path:       "/private",
			setup:      func(r *http.Request) { r.Header.Set("Authorization", "Bearer nope") },
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "user on admin route",
			path:       "/admin",
			setup:      func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+userTok.Value) },
			wantStatus: http.StatusForbidden,
		},
		{
			name:       "admin on admin route",
			path:       "/admin",
			setup:      func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+adminTok.Value) },
			wantStatus: http.StatusOK,
		},
		{
			name:       "optional auth without token",
			path:       "/maybe",
			setup:      func(r *http.Request) {},
			wantStatus: http.StatusOK,
		},
		{
			name:       "optional auth with bad token",
			path:       "/maybe",
			setup:      func(r *http.Request) { r.Header.Set("Authorization", "Bearer nope") },
			wantStatus: http.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var seen uuid.UUID
			r := newAuthRouter(signer, &seen)

			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			tt.setup(req)
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (body %s)", w.Code, tt.wantStatus, w.Body.String())
			}
			if tt.wantUser && seen != userID {
				t.Errorf("context user = %s, want %s", seen, userID)
			}
		})
	}
}

func TestTokenCookie(t *testing.T) {
	signer, _ := newTestSigner(t)
	var seen uuid.UUID
	r := newAuthRouter(signer, &seen)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/login", nil))
	set := w.Header().Get("Set-Cookie")
	for _, want := range []string{CookieName + "=", "HttpOnly", "Secure", "SameSite=Strict", "Path=/"} {
		if !strings.Contains(set, want) {
			t.Errorf("Set-Cookie %q missing %q", set, want)
		}
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/logout", nil))
	if set := w.Header().Get("Set-Cookie"); !strings.Contains(set, "Max-Age=0") {
		t.Errorf("logout cookie should expire immediately, got %q", set)
	}
}
