package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/floroz/winbid/internal/domain/registration"
	"github.com/floroz/winbid/internal/domain/users"
	"github.com/floroz/winbid/internal/validation"
	"github.com/floroz/winbid/pkg/auth"
)

type RegistrationService interface {
	Initiate(ctx context.Context, cmd registration.InitiateCommand) (*registration.Pending, error)
	Resend(ctx context.Context, cmd registration.ResendCommand) (*registration.Pending, error)
	Verify(ctx context.Context, cmd registration.VerifyCommand) (*registration.Registered, error)
}

type UserService interface {
	Login(ctx context.Context, email, password string) (*users.User, *auth.Token, error)
	GetMe(ctx context.Context, userID uuid.UUID) (*users.User, error)
	GetUser(ctx context.Context, id, requesterID uuid.UUID, requesterAdmin bool) (*users.User, error)
	ListUsers(ctx context.Context, limit, offset int, requesterAdmin bool) ([]*users.User, error)
	UpdateUser(ctx context.Context, cmd users.UpdateUserCommand) (*users.User, error)
	DeleteUser(ctx context.Context, id, requesterID uuid.UUID, requesterAdmin bool) error
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type AuthHandler struct {
	responder
	registration RegistrationService
	users        UserService
	secureCookie bool
}

func NewAuthHandler(reg RegistrationService, users UserService, secureCookie bool, r responder) *AuthHandler {
	return &AuthHandler{
		responder:    r,
		registration: reg,
		users:        users,
		secureCookie: secureCookie,
	}
}

// Initiate handles POST /api/auth/register/initiate
func (h *AuthHandler) Initiate(c *gin.Context) {
	var cmd registration.InitiateCommand
	if err := c.ShouldBindJSON(&cmd); err != nil {
		h.fail(c, validation.Field("body", "invalid request payload"))
		return
	}

	pending, err := h.registration.Initiate(c.Request.Context(), cmd)
	if err != nil {
		h.fail(c, err)
		return
	}
	JSONResponse(c, http.StatusOK, pending, "verification code sent to your email")
}

// Resend handles POST /api/auth/register/resend-otp
func (h *AuthHandler) Resend(c *gin.Context) {
	var cmd registration.ResendCommand
	if err := c.ShouldBindJSON(&cmd); err != nil {
		h.fail(c, validation.Field("body", "invalid request payload"))
		return
	}

	pending, err := h.registration.Resend(c.Request.Context(), cmd)
	if err != nil {
		h.fail(c, err)
		return
	}
	JSONResponse(c, http.StatusOK, pending, "a new verification code was sent")
}

// Verify handles POST /api/auth/register/verify-otp and signs the new user in
func (h *AuthHandler) Verify(c *gin.Context) {
	var cmd registration.VerifyCommand
	if err := c.ShouldBindJSON(&cmd); err != nil {
		h.fail(c, validation.Field("body", "invalid request payload"))
		return
	}

	result, err := h.registration.Verify(c.Request.Context(), cmd)
	if err != nil {
		h.fail(c, err)
		return
	}

	auth.SetTokenCookie(c, result.Token, h.secureCookie)
	h.logger.Info("User registered", "user_id", result.User.ID)
	JSONResponse(c, http.StatusCreated, gin.H{"user": result.User}, "registration complete")
}

// Login handles POST /api/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, validation.Field("body", "invalid request payload"))
		return
	}

	user, token, err := h.users.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		h.fail(c, err)
		return
	}

	auth.SetTokenCookie(c, token, h.secureCookie)
	JSONResponse(c, http.StatusOK, gin.H{"user": user}, "")
}

// Logout handles GET /api/auth/logout
func (h *AuthHandler) Logout(c *gin.Context) {
	auth.ClearTokenCookie(c, h.secureCookie)
	JSONResponse(c, http.StatusOK, nil, "logged out")
}

// Me handles GET /api/auth/me
func (h *AuthHandler) Me(c *gin.Context) {
	userID, _, ok := currentUser(c)
	if !ok {
		h.fail(c, errUnauthenticated)
		return
	}

	user, err := h.users.GetMe(c.Request.Context(), userID)
	if err != nil {
		h.fail(c, err)
		return
	}
	JSONResponse(c, http.StatusOK, user, "")
}
