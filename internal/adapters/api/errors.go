package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/floroz/winbid/internal/domain/bids"
	"github.com/floroz/winbid/internal/domain/products"
	"github.com/floroz/winbid/internal/domain/registration"
	"github.com/floroz/winbid/internal/domain/users"
	"github.com/floroz/winbid/internal/domain/userstats"
	"github.com/floroz/winbid/internal/domain/winners"
	"github.com/floroz/winbid/internal/ratelimit"
	"github.com/floroz/winbid/internal/validation"
)

// Error codes carried in the "error" field
const (
	CodeValidation         = "VALIDATION_ERROR"
	CodeNotFound           = "NOT_FOUND"
	CodeUnauthorized       = "UNAUTHORIZED"
	CodeInvalidCredentials = "INVALID_CREDENTIALS"
	CodeForbidden          = "FORBIDDEN"
	CodeConflict           = "CONFLICT"
	CodeRateLimited        = "RATE_LIMIT_EXCEEDED"
	CodeDuplicate          = "DUPLICATE_ENTRY"
	CodeSessionExpired     = "SESSION_EXPIRED"
	CodeInvalidOTP         = "INVALID_OTP"
	CodeInvalidEmail       = "INVALID_EMAIL"
	CodeInternal           = "INTERNAL_ERROR"
)

const internalMessage = "an unexpected error occurred"

// errUnauthenticated is raised when a protected handler runs without claims
var errUnauthenticated = errors.New("not authorized, no token")

// MapErrorToHTTP maps domain/service errors to an HTTP status, error code and message
func MapErrorToHTTP(err error) (int, string, string) {
	var (
		limitErr *ratelimit.LimitError
		dupErr   *users.DuplicateEntryError
	)
	switch {
	case errors.As(err, &limitErr):
		return http.StatusTooManyRequests, CodeRateLimited, "too many requests, please try again later"
	case errors.As(err, &dupErr):
		return http.StatusConflict, CodeDuplicate, "an account with these details already exists"

	case errors.Is(err, validation.ErrInvalid),
		errors.Is(err, bids.ErrInvalidBid),
		errors.Is(err, products.ErrInvalidProduct):
		return http.StatusBadRequest, CodeValidation, err.Error()

	case errors.Is(err, registration.ErrSessionExpired),
		errors.Is(err, registration.ErrSessionNotFound):
		return http.StatusNotFound, CodeSessionExpired, "registration session expired, please start again"
	case errors.Is(err, registration.ErrInvalidOTP):
		return http.StatusBadRequest, CodeInvalidOTP, "invalid verification code"
	case errors.Is(err, registration.ErrEmailMismatch):
		return http.StatusBadRequest, CodeInvalidEmail, "email does not match the registration"

	case errors.Is(err, errUnauthenticated):
		return http.StatusUnauthorized, CodeUnauthorized, err.Error()
	case errors.Is(err, users.ErrInvalidCredentials):
		return http.StatusUnauthorized, CodeInvalidCredentials, "invalid email or password"

	case errors.Is(err, bids.ErrBidNotFound),
		errors.Is(err, products.ErrProductNotFound),
		errors.Is(err, winners.ErrWinnerNotFound),
		errors.Is(err, users.ErrUserNotFound),
		errors.Is(err, userstats.ErrStatsNotFound):
		return http.StatusNotFound, CodeNotFound, err.Error()

	case errors.Is(err, bids.ErrForbidden),
		errors.Is(err, products.ErrForbidden),
		errors.Is(err, users.ErrForbidden),
		errors.Is(err, users.ErrCannotDeleteSelf):
		return http.StatusForbidden, CodeForbidden, err.Error()

	case errors.Is(err, bids.ErrBiddingClosed),
		errors.Is(err, bids.ErrBidLocked),
		errors.Is(err, bids.ErrProductBusy),
		errors.Is(err, products.ErrProductClosed),
		errors.Is(err, products.ErrCannotDelete),
		errors.Is(err, products.ErrTargetLocked),
		errors.Is(err, products.ErrProductChanged),
		errors.Is(err, users.ErrUserInUse):
		return http.StatusConflict, CodeConflict, err.Error()

	default:
		return http.StatusInternalServerError, CodeInternal, internalMessage
	}
}

// errorExtras returns the additional body fields for typed errors
func errorExtras(err error) gin.H {
	var (
		limitErr *ratelimit.LimitError
		dupErr   *users.DuplicateEntryError
		valErr   *validation.Error
	)
	switch {
	case errors.As(err, &limitErr):
		return gin.H{"resetTime": limitErr.ResetAt.UTC().Format(time.RFC3339)}
	case errors.As(err, &dupErr):
		fields := make(map[string]string, len(dupErr.Fields))
		for _, f := range dupErr.Fields {
			fields[f] = f + " already exists"
		}
		return gin.H{"errors": fields}
	case errors.As(err, &valErr):
		return gin.H{"errors": valErr.Fields}
	}
	return nil
}

// responder writes failures consistently across handlers
type responder struct {
	logger  *slog.Logger
	metrics Metrics
	now     func() time.Time
}

func (r responder) fail(c *gin.Context, err error) {
	r.write(c, err, JSONError)
}

func (r responder) failBid(c *gin.Context, err error) {
	r.write(c, err, bidFailure)
}

func (r responder) write(c *gin.Context, err error, send func(*gin.Context, int, string, string, gin.H)) {
	status, code, message := MapErrorToHTTP(err)

	var limitErr *ratelimit.LimitError
	if errors.As(err, &limitErr) {
		c.Header("Retry-After", strconv.Itoa(limitErr.RetryAfter(r.now())))
		r.metrics.RateLimited(limitErr.Policy)
	}

	if status >= http.StatusInternalServerError {
		r.logger.Error("Request failed",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"error", err,
		)
	} else {
		r.logger.Debug("Request rejected", "path", c.FullPath(), "status", status, "error", err)
	}

	send(c, status, code, message, errorExtras(err))
}
