package auth

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type contextKey string

const (
	tokenHeader = "Authorization"
	tokenPrefix = "Bearer "

	// CookieName is the httpOnly cookie carrying the access token
	CookieName = "jwt"

	UserClaimsKey contextKey = "user_claims"
	UserIDKey     contextKey = "user_id"
)

// RequireAuth rejects requests without a valid token.
// The token is read from the Authorization header first, then from the jwt cookie.
func RequireAuth(signer *Signer) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, ok := extractToken(c)
		if !ok {
			abortUnauthorized(c, "not authorized, no token")
			return
		}

		claims, err := signer.ValidateToken(raw)
		if err != nil {
			abortUnauthorized(c, "invalid or expired token")
			return
		}

		if !attachClaims(c, claims) {
			abortUnauthorized(c, "invalid token subject")
			return
		}
		c.Next()
	}
}

// OptionalAuth attaches claims when a valid token is present and never rejects
func OptionalAuth(signer *Signer) gin.HandlerFunc {
	return func(c *gin.Context) {
		if raw, ok := extractToken(c); ok {
			if claims, err := signer.ValidateToken(raw); err == nil {
				attachClaims(c, claims)
			}
		}
		c.Next()
	}
}

// RequireRole must run after RequireAuth
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := GetUserClaims(c.Request.Context())
		if !ok {
			abortUnauthorized(c, "not authorized")
			return
		}
		for _, r := range roles {
			if claims.Role == r {
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
			"success": false,
			"error":   "FORBIDDEN",
			"message": "user role " + claims.Role + " is not authorized to access this route",
		})
	}
}

// SetTokenCookie writes the access token as an httpOnly, SameSite=Strict cookie
func SetTokenCookie(c *gin.Context, tok *Token, secure bool) {
	c.SetSameSite(http.SameSiteStrictMode)
	maxAge := int(time.Until(tok.ExpiresAt).Seconds())
	if maxAge < 0 {
		maxAge = 0
	}
	c.SetCookie(CookieName, tok.Value, maxAge, "/", "", secure, true)
}

// ClearTokenCookie expires the access token cookie
func ClearTokenCookie(c *gin.Context, secure bool) {
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(CookieName, "", -1, "/", "", secure, true)
}

// GetUserClaims retrieves the full claims from the context.
func GetUserClaims(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(UserClaimsKey).(*Claims)
	return claims, ok
}

// GetUserID retrieves the user ID from the context.
func GetUserID(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(UserIDKey).(uuid.UUID)
	return id, ok
}

// WithClaims returns a context carrying claims, as RequireAuth does
func WithClaims(ctx context.Context, claims *Claims) context.Context {
	ctx = context.WithValue(ctx, UserClaimsKey, claims)
	if id, err := claims.UserID(); err == nil {
		ctx = context.WithValue(ctx, UserIDKey, id)
	}
	return ctx
}

func attachClaims(c *gin.Context, claims *Claims) bool {
	if _, err := claims.UserID(); err != nil {
		return false
	}
	c.Request = c.Request.WithContext(WithClaims(c.Request.Context(), claims))
	return true
}

func extractToken(c *gin.Context) (string, bool) {
	if header := c.GetHeader(tokenHeader); strings.HasPrefix(header, tokenPrefix) {
		if token := strings.TrimSpace(strings.TrimPrefix(header, tokenPrefix)); token != "" {
			return token, true
		}
	}
	if cookie, err := c.Cookie(CookieName); err == nil && cookie != "" {
		return cookie, true
	}
	return "", false
}

func abortUnauthorized(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"success": false,
		"error":   "UNAUTHORIZED",
		"message": msg,
	})
}
