package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/floroz/winbid/internal/domain/bids"
	"github.com/floroz/winbid/internal/domain/users"
	"github.com/floroz/winbid/internal/domain/userstats"
	"github.com/floroz/winbid/internal/validation"
)

type StatsService interface {
	GetUserStats(ctx context.Context, userID uuid.UUID) (*userstats.UserStats, error)
}

// UpdateUserRequest leaves absent fields untouched
type UpdateUserRequest struct {
	FirstName   *string `json:"firstName"`
	LastName    *string `json:"lastName"`
	PhoneNumber *string `json:"phoneNumber"`
}

type ProfileResponse struct {
	User *users.User `json:"user"`
	Bids []*bids.Bid `json:"bids"`
}

type UserHandler struct {
	responder
	users UserService
	stats StatsService
	bids  BidService
}

func NewUserHandler(users UserService, stats StatsService, bidService BidService, r responder) *UserHandler {
	return &UserHandler{responder: r, users: users, stats: stats, bids: bidService}
}

// ListUsers handles GET /api/users?limit&offset
func (h *UserHandler) ListUsers(c *gin.Context) {
	_, isAdmin, ok := currentUser(c)
	if !ok {
		h.fail(c, errUnauthenticated)
		return
	}
	limit, err := queryInt(c, "limit", 50)
	if err != nil {
		h.fail(c, err)
		return
	}
	offset, err := queryInt(c, "offset", 0)
	if err != nil {
		h.fail(c, err)
		return
	}

	list, err := h.users.ListUsers(c.Request.Context(), limit, offset, isAdmin)
	if err != nil {
		h.fail(c, err)
		return
	}
	JSONResponse(c, http.StatusOK, list, "")
}

// Profile handles GET /api/users/profile: the caller's account and their bids
func (h *UserHandler) Profile(c *gin.Context) {
	userID, _, ok := currentUser(c)
	if !ok {
		h.fail(c, errUnauthenticated)
		return
	}
	ctx := c.Request.Context()

	user, err := h.users.GetMe(ctx, userID)
	if err != nil {
		h.fail(c, err)
		return
	}
	placed, err := h.bids.GetBidsByUser(ctx, userID)
	if err != nil {
		h.fail(c, err)
		return
	}
	JSONResponse(c, http.StatusOK, ProfileResponse{User: user, Bids: placed}, "")
}

// UpdateUser handles PUT /api/users/:id. Only profile fields can change.
func (h *UserHandler) UpdateUser(c *gin.Context) {
	requesterID, isAdmin, ok := currentUser(c)
	if !ok {
		h.fail(c, errUnauthenticated)
		return
	}
	id, ok := parseParam(c, h.responder, "id")
	if !ok {
		return
	}

	var req UpdateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, validation.Field("body", "invalid request payload"))
		return
	}

	user, err := h.users.UpdateUser(c.Request.Context(), users.UpdateUserCommand{
		UserID:         id,
		RequesterID:    requesterID,
		RequesterAdmin: isAdmin,
		FirstName:      req.FirstName,
		LastName:       req.LastName,
		PhoneNumber:    req.PhoneNumber,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	JSONResponse(c, http.StatusOK, user, "user updated")
}

// DeleteUser handles DELETE /api/users/:id
func (h *UserHandler) DeleteUser(c *gin.Context) {
	requesterID, isAdmin, ok := currentUser(c)
	if !ok {
		h.fail(c, errUnauthenticated)
		return
	}
	id, ok := parseParam(c, h.responder, "id")
	if !ok {
		return
	}

	if err := h.users.DeleteUser(c.Request.Context(), id, requesterID, isAdmin); err != nil {
		h.fail(c, err)
		return
	}
	JSONResponse(c, http.StatusOK, nil, "user deleted")
}

// GetUser handles GET /api/users/:id. Only the user or an admin may read it.
func (h *UserHandler) GetUser(c *gin.Context) {
	requesterID, isAdmin, ok := currentUser(c)
	if !ok {
		h.fail(c, errUnauthenticated)
		return
	}
	id, ok := parseParam(c, h.responder, "id")
	if !ok {
		return
	}

	user, err := h.users.GetUser(c.Request.Context(), id, requesterID, isAdmin)
	if err != nil {
		h.fail(c, err)
		return
	}
	JSONResponse(c, http.StatusOK, user, "")
}

// GetUserStats handles GET /api/users/:id/stats
func (h *UserHandler) GetUserStats(c *gin.Context) {
	id, ok := parseParam(c, h.responder, "id")
	if !ok {
		return
	}
	stats, err := h.stats.GetUserStats(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	JSONResponse(c, http.StatusOK, stats, "")
}
