package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/floroz/winbid/internal/domain/bids"
	"github.com/floroz/winbid/internal/validation"
	"github.com/floroz/winbid/pkg/auth"
)

type BidService interface {
	PlaceBid(ctx context.Context, cmd bids.PlaceBidCommand) (*bids.SettlementResult, error)
	GetBid(ctx context.Context, bidID uuid.UUID) (*bids.Bid, error)
	GetBidsForProduct(ctx context.Context, productID uuid.UUID) ([]*bids.Bid, error)
	GetBidsByUser(ctx context.Context, userID uuid.UUID) ([]*bids.Bid, error)
	GetHighestBid(ctx context.Context, productID uuid.UUID) (*bids.Bid, error)
	DeleteBid(ctx context.Context, bidID uuid.UUID, requester bids.Requester) error
}

type PlaceBidRequest struct {
	ProductID string          `json:"productId" binding:"required"`
	Amount    decimal.Decimal `json:"amount"`
}

type BidHandler struct {
	responder
	service BidService
}

func NewBidHandler(service BidService, r responder) *BidHandler {
	return &BidHandler{responder: r, service: service}
}

// PlaceBid handles POST /api/bids
func (h *BidHandler) PlaceBid(c *gin.Context) {
	userID, _, ok := currentUser(c)
	if !ok {
		h.failBid(c, errUnauthenticated)
		return
	}

	var req PlaceBidRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.failBid(c, validation.Field("body", "invalid request payload"))
		return
	}
	productID, err := uuid.Parse(req.ProductID)
	if err != nil {
		h.failBid(c, validation.Field("productId", "must be a valid id"))
		return
	}

	result, err := h.service.PlaceBid(c.Request.Context(), bids.PlaceBidCommand{
		ProductID: productID,
		UserID:    userID,
		Amount:    req.Amount,
	})
	if err != nil {
		h.failBid(c, err)
		return
	}

	h.logger.Info("Bid placed",
		"bid_id", result.Bid.ID,
		"product_id", productID,
		"user_id", userID,
		"complete", result.IsBiddingComplete,
	)
	bidSuccess(c, http.StatusCreated, result)
}

// GetBid handles GET /api/bids/:id
func (h *BidHandler) GetBid(c *gin.Context) {
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	bid, err := h.service.GetBid(c.Request.Context(), id)
	if err != nil {
		h.failBid(c, err)
		return
	}
	bidSuccess(c, http.StatusOK, bid)
}

// GetBidsForProduct handles GET /api/bids/product/:productId
func (h *BidHandler) GetBidsForProduct(c *gin.Context) {
	id, ok := h.pathID(c, "productId")
	if !ok {
		return
	}
	list, err := h.service.GetBidsForProduct(c.Request.Context(), id)
	if err != nil {
		h.failBid(c, err)
		return
	}
	bidSuccess(c, http.StatusOK, nonNil(list))
}

// GetHighestBid handles GET /api/bids/product/:productId/highest.
// data is null when the product has no bids.
func (h *BidHandler) GetHighestBid(c *gin.Context) {
	id, ok := h.pathID(c, "productId")
	if !ok {
		return
	}
	bid, err := h.service.GetHighestBid(c.Request.Context(), id)
	if err != nil {
		h.failBid(c, err)
		return
	}
	bidSuccess(c, http.StatusOK, bid)
}

// GetBidsByUser handles GET /api/bids/user/:userId
func (h *BidHandler) GetBidsByUser(c *gin.Context) {
	id, ok := h.pathID(c, "userId")
	if !ok {
		return
	}
	list, err := h.service.GetBidsByUser(c.Request.Context(), id)
	if err != nil {
		h.failBid(c, err)
		return
	}
	bidSuccess(c, http.StatusOK, nonNil(list))
}

// DeleteBid handles DELETE /api/bids/:id
func (h *BidHandler) DeleteBid(c *gin.Context) {
	userID, isAdmin, ok := currentUser(c)
	if !ok {
		h.failBid(c, errUnauthenticated)
		return
	}
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	if err := h.service.DeleteBid(c.Request.Context(), id, bids.Requester{UserID: userID, IsAdmin: isAdmin}); err != nil {
		h.failBid(c, err)
		return
	}
	bidSuccess(c, http.StatusOK, nil)
}

func (h *BidHandler) pathID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		h.failBid(c, validation.Field(name, "must be a valid id"))
		return uuid.Nil, false
	}
	return id, true
}

// currentUser reads the identity RequireAuth or OptionalAuth attached
func currentUser(c *gin.Context) (uuid.UUID, bool, bool) {
	claims, ok := auth.GetUserClaims(c.Request.Context())
	if !ok {
		return uuid.Nil, false, false
	}
	id, err := claims.UserID()
	if err != nil {
		return uuid.Nil, false, false
	}
	return id, claims.IsAdmin(), true
}

// nonNil makes empty lists encode as [] rather than null
func nonNil[T any](list []T) []T {
	if list == nil {
		return []T{}
	}
	return list
}
