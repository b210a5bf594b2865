package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/floroz/winbid/internal/domain/winners"
)

type WinnerService interface {
	ListWinners(ctx context.Context, limit, offset int) ([]*winners.Winner, error)
	GetWinner(ctx context.Context, id uuid.UUID) (*winners.Winner, error)
	GetWinnersByUser(ctx context.Context, userID uuid.UUID) ([]*winners.Winner, error)
	GetWinnerByProduct(ctx context.Context, productID uuid.UUID) (*winners.Winner, error)
}

type WinnerHandler struct {
	responder
	service WinnerService
}

func NewWinnerHandler(service WinnerService, r responder) *WinnerHandler {
	return &WinnerHandler{responder: r, service: service}
}

func (h *WinnerHandler) ListWinners(c *gin.Context) {
	limit, err := queryInt(c, "limit", 0)
	if err != nil {
		h.fail(c, err)
		return
	}
	offset, err := queryInt(c, "offset", 0)
	if err != nil {
		h.fail(c, err)
		return
	}

	list, err := h.service.ListWinners(c.Request.Context(), limit, offset)
	if err != nil {
		h.fail(c, err)
		return
	}
	JSONResponse(c, http.StatusOK, nonNil(list), "")
}

func (h *WinnerHandler) GetWinner(c *gin.Context) {
	id, ok := parseParam(c, h.responder, "id")
	if !ok {
		return
	}
	w, err := h.service.GetWinner(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	JSONResponse(c, http.StatusOK, w, "")
}

func (h *WinnerHandler) GetWinnersByUser(c *gin.Context) {
	id, ok := parseParam(c, h.responder, "userId")
	if !ok {
		return
	}
	list, err := h.service.GetWinnersByUser(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	JSONResponse(c, http.StatusOK, nonNil(list), "")
}

func (h *WinnerHandler) GetWinnerByProduct(c *gin.Context) {
	id, ok := parseParam(c, h.responder, "productId")
	if !ok {
		return
	}
	w, err := h.service.GetWinnerByProduct(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	JSONResponse(c, http.StatusOK, w, "")
}
