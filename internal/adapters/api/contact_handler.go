package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/floroz/winbid/internal/domain/contact"
	"github.com/floroz/winbid/internal/validation"
)

type ContactService interface {
	Submit(ctx context.Context, cmd contact.SubmitCommand, userID *uuid.UUID) (*contact.Message, error)
}

type ContactHandler struct {
	responder
	service ContactService
}

func NewContactHandler(service ContactService, r responder) *ContactHandler {
	return &ContactHandler{responder: r, service: service}
}

// Submit handles POST /api/contact. Signed-in senders are linked to their account.
func (h *ContactHandler) Submit(c *gin.Context) {
	var cmd contact.SubmitCommand
	if err := c.ShouldBindJSON(&cmd); err != nil {
		h.fail(c, validation.Field("body", "invalid request payload"))
		return
	}

	var sender *uuid.UUID
	if id, _, ok := currentUser(c); ok {
		sender = &id
	}

	msg, err := h.service.Submit(c.Request.Context(), cmd, sender)
	if err != nil {
		h.fail(c, err)
		return
	}
	JSONResponse(c, http.StatusCreated, gin.H{"id": msg.ID}, "thank you, we will get back to you soon")
}
