package api

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/floroz/winbid/internal/domain/bids"
	"github.com/floroz/winbid/internal/domain/products"
	"github.com/floroz/winbid/internal/domain/registration"
	"github.com/floroz/winbid/internal/domain/users"
	"github.com/floroz/winbid/internal/domain/userstats"
	"github.com/floroz/winbid/internal/domain/winners"
	"github.com/floroz/winbid/internal/ratelimit"
	"github.com/floroz/winbid/internal/validation"
)

func TestMapErrorToHTTP(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"validation", validation.Field("email", "is required"), http.StatusBadRequest, CodeValidation},
		{"invalid bid", fmt.Errorf("%w: amount too small", bids.ErrInvalidBid), http.StatusBadRequest, CodeValidation},
		{"invalid product", products.ErrInvalidProduct, http.StatusBadRequest, CodeValidation},
		{"session expired", registration.ErrSessionExpired, http.StatusNotFound, CodeSessionExpired},
		{"session missing", registration.ErrSessionNotFound, http.StatusNotFound, CodeSessionExpired},
		{"invalid otp", registration.ErrInvalidOTP, http.StatusBadRequest, CodeInvalidOTP},
		{"email mismatch", registration.ErrEmailMismatch, http.StatusBadRequest, CodeInvalidEmail},
		{"unauthenticated", errUnauthenticated, http.StatusUnauthorized, CodeUnauthorized},
		{"bad credentials", users.ErrInvalidCredentials, http.StatusUnauthorized, CodeInvalidCredentials},
		{"bid not found", bids.ErrBidNotFound, http.StatusNotFound, CodeNotFound},
		{"product not found", fmt.Errorf("failed to get product: %w", products.ErrProductNotFound), http.StatusNotFound, CodeNotFound},
		{"winner not found", winners.ErrWinnerNotFound, http.StatusNotFound, CodeNotFound},
		{"user not found", users.ErrUserNotFound, http.StatusNotFound, CodeNotFound},
		{"stats not found", userstats.ErrStatsNotFound, http.StatusNotFound, CodeNotFound},
		{"forbidden", products.ErrForbidden, http.StatusForbidden, CodeForbidden},
		{"bidding closed", bids.ErrBiddingClosed, http.StatusConflict, CodeConflict},
		{"admin deleting self", users.ErrCannotDeleteSelf, http.StatusForbidden, CodeForbidden},
		{"user in use", users.ErrUserInUse, http.StatusConflict, CodeConflict},
		{"product busy", bids.ErrProductBusy, http.StatusConflict, CodeConflict},
		{"target locked", products.ErrTargetLocked, http.StatusConflict, CodeConflict},
		{"duplicate", &users.DuplicateEntryError{Fields: []string{"email"}}, http.StatusConflict, CodeDuplicate},
		{"rate limited", &ratelimit.LimitError{Policy: "otp", ResetAt: time.Now().Add(time.Minute)}, http.StatusTooManyRequests, CodeRateLimited},
		{"unknown", errors.New("connection reset"), http.StatusInternalServerError, CodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, code, msg := MapErrorToHTTP(tt.err)
			assert.Equal(t, tt.wantStatus, status)
			assert.Equal(t, tt.wantCode, code)
			assert.NotEmpty(t, msg)
		})
	}
}

func TestMapErrorToHTTP_HidesInternalDetail(t *testing.T) {
	_, _, msg := MapErrorToHTTP(errors.New("pq: password authentication failed for user admin"))
	assert.Equal(t, internalMessage, msg)
}

func TestErrorExtras(t *testing.T) {
	reset := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("rate limit carries reset time", func(t *testing.T) {
		extra := errorExtras(&ratelimit.LimitError{Policy: "otp", ResetAt: reset})
		assert.Equal(t, gin.H{"resetTime": "2026-03-01T12:00:00Z"}, extra)
	})

	t.Run("duplicate names every field", func(t *testing.T) {
		extra := errorExtras(&users.DuplicateEntryError{Fields: []string{"email", "username"}})
		assert.Equal(t, map[string]string{
			"email":    "email already exists",
			"username": "username already exists",
		}, extra["errors"])
	})

	t.Run("validation fields", func(t *testing.T) {
		extra := errorExtras(fmt.Errorf("wrapped: %w", validation.Field("otp", "must be 6 digits")))
		assert.Equal(t, map[string]string{"otp": "must be 6 digits"}, extra["errors"])
	})

	t.Run("plain errors have none", func(t *testing.T) {
		assert.Nil(t, errorExtras(errors.New("boom")))
	})
}
