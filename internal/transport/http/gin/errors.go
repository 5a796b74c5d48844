package httpgin

import (
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/kirinyoku/oneday/internal/service/admin"
	"github.com/kirinyoku/oneday/internal/service/coupon"
	"github.com/kirinyoku/oneday/internal/service/query"
	"github.com/kirinyoku/oneday/internal/service/reservation"
)

func respondErr(c *gin.Context, err error) {
	if err == nil {
		c.Status(http.StatusNoContent)
		return
	}

	var rl *reservation.RateLimitedError
	var inv *reservation.InvalidStateError

	switch {
	// reservation service
	case errors.As(err, &rl):
		c.Header("Retry-After", retryAfter(rl.RetryAfter.Seconds()))
		c.JSON(http.StatusTooManyRequests, ErrorResponse{Error: "too many hold requests"})
	case errors.Is(err, reservation.ErrRateLimited):
		c.Header("Retry-After", "60")
		c.JSON(http.StatusTooManyRequests, ErrorResponse{Error: "too many hold requests"})
	case errors.Is(err, reservation.ErrSessionNotFound),
		errors.Is(err, query.ErrSessionNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "session not found"})
	case errors.Is(err, reservation.ErrReservationNotFound),
		errors.Is(err, query.ErrReservationNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "reservation not found"})
	case errors.Is(err, reservation.ErrNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "not found"})
	case errors.Is(err, reservation.ErrConflict):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "session is full"})
	case errors.Is(err, reservation.ErrDuplicateActiveReservation):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "active reservation already exists for this session"})
	case errors.Is(err, reservation.ErrSessionStarted):
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{Error: "session already started"})
	case errors.Is(err, reservation.ErrHoldExpired):
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{Error: "hold expired"})
	case errors.As(err, &inv):
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{Error: inv.Error()})
	case errors.Is(err, reservation.ErrInvalidState):
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{Error: "invalid reservation state"})
	case errors.Is(err, reservation.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid input"})
	case reservation.IsTransient(err):
		c.Header("Retry-After", "1")
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "busy, retry"})

	// query and admin services
	case errors.Is(err, query.ErrInvalidStatus),
		errors.Is(err, admin.ErrInvalidStatus):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid status"})
	case errors.Is(err, admin.ErrInvalidSession):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: unwrapMsg(err, admin.ErrInvalidSession)})

	// coupon service
	case errors.Is(err, coupon.ErrTemplateNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "coupon template not found"})
	case errors.Is(err, coupon.ErrCouponNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "coupon not found"})
	case errors.Is(err, coupon.ErrCouponUnusable):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "coupon is used or expired"})
	case errors.Is(err, coupon.ErrInvalidTemplate):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: unwrapMsg(err, coupon.ErrInvalidTemplate)})
	case errors.Is(err, coupon.ErrInvalidAmount):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "amount must be positive"})

	default:
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
	}
}

// retryAfter renders whole seconds, rounded up and at least one.
func retryAfter(sec float64) string {
	n := int(math.Ceil(sec))
	if n < 1 {
		n = 1
	}
	return strconv.Itoa(n)
}

// unwrapMsg strips the operation prefix so the client sees the sentinel
// and its detail only.
func unwrapMsg(err, sentinel error) string {
	msg := err.Error()
	if i := strings.Index(msg, sentinel.Error()); i >= 0 {
		return msg[i:]
	}
	return sentinel.Error()
}
