package httpgin

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	redisrepo "github.com/kirinyoku/oneday/internal/repository/redis"
	"github.com/kirinyoku/oneday/internal/scheduler"
	"github.com/kirinyoku/oneday/internal/service"
	"github.com/kirinyoku/oneday/internal/service/admin"
	"github.com/kirinyoku/oneday/internal/service/coupon"
)

const idemLockTTL = 60 * time.Second

// Deps are the optional collaborators of the router. Any of them may be
// nil: without Idem holds are not deduplicated, without Hub the watch
// endpoint is not mounted.
type Deps struct {
	Idem     *redisrepo.IdempotencyStore
	Hub      *Hub
	Sweepers []*scheduler.Job
}

func NewRouter(
	svcs *service.Services,
	deps Deps,
	logger *slog.Logger,
	middlewares ...gin.HandlerFunc,
) *gin.Engine {
	if logger == nil {
		logger = slog.Default()
	}

	r := gin.New()

	r.Use(gin.Recovery(), LoggingMiddleware(logger), RequestIDMiddleware(), CORS())
	for _, m := range middlewares {
		if m != nil {
			r.Use(m)
		}
	}

	// Swagger UI
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// health
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Public API
	r.GET("/sessions/:id", handleGetSession(svcs))
	r.GET("/sessions/:id/availability", handleGetAvailability(svcs))
	if deps.Hub != nil {
		r.GET("/sessions/:id/watch", handleWatchSession(svcs, deps.Hub))
	}
	r.POST("/sessions/:id/holds", handleCreateHold(svcs, deps.Idem, logger))

	r.GET("/reservations/:id", handleGetReservation(svcs))
	r.POST("/reservations/:id/pay", handleConfirmPayment(svcs))
	r.POST("/reservations/:id/cancel", handleRequestCancellation(svcs))

	r.GET("/users/:id/reservations", handleListUserReservations(svcs))
	r.GET("/users/:id/coupons", handleMyCoupons(svcs))
	r.POST("/users/:id/coupons/:couponId/redeem", handleRedeemCoupon(svcs))

	// Admin-API
	// TODO: add admin middleware once an identity provider is wired in
	adm := r.Group("/admin")
	{
		adm.POST("/sessions", handleCreateSession(svcs))

		adm.GET("/reservations", handleListReservations(svcs))
		adm.GET("/reservations/cancel-requests", handleListCancelRequests(svcs))
		adm.POST("/reservations/:id/approve-cancel", handleApproveCancellation(svcs))
		adm.POST("/reservations/:id/reject-cancel", handleRejectCancellation(svcs))

		adm.GET("/coupon-templates", handleListTemplates(svcs))
		adm.POST("/coupon-templates", handleCreateTemplate(svcs))
		adm.PATCH("/coupon-templates/:id", handleSetTemplateActive(svcs))

		adm.POST("/sweeps/:name", handleTriggerSweep(deps.Sweepers))
	}

	return r
}

// --- Handlers with Swagger annotations ---

// @Summary  Get session
// @Tags     sessions
// @Param    id  path  int  true  "Session ID"
// @Success  200  {object}  domain.Session
// @Failure  404  {object}  ErrorResponse
// @Router   /sessions/{id} [get]
func handleGetSession(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		s, err := svcs.Query.Session(c.Request.Context(), id)
		if err != nil {
			respondErr(c, err)
			return
		}
		// ETag + Cache-Control 60s
		writeJSONWithCache(c, http.StatusOK, s, "public, max-age=60", true)
	}
}

// @Summary  Get seat availability
// @Tags     sessions
// @Param    id  path  int  true  "Session ID"
// @Success  200  {object}  query.Availability
// @Failure  404  {object}  ErrorResponse
// @Router   /sessions/{id}/availability [get]
func handleGetAvailability(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		a, err := svcs.Query.Availability(c.Request.Context(), id)
		if err != nil {
			respondErr(c, err)
			return
		}
		// ETag + Cache-Control 5s
		writeJSONWithCache(c, http.StatusOK, a, "public, max-age=5", true)
	}
}

// @Summary      Watch session changes
// @Description  Server-Sent Events. The first event is the current availability,
// @Description  then one event per reservation change of the session.
// @Tags         sessions
// @Produce      text/event-stream
// @Param        id  path  int  true  "Session ID"
// @Success      200  {string}  string  "event stream"
// @Failure      404  {object}  ErrorResponse
// @Router       /sessions/{id}/watch [get]
func handleWatchSession(svcs *service.Services, hub *Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		ctx := c.Request.Context()

		a, err := svcs.Query.Availability(ctx, id)
		if err != nil {
			respondErr(c, err)
			return
		}

		ch, cancel := hub.Subscribe(id)
		defer cancel()

		c.Header("Cache-Control", "no-cache")
		c.Header("X-Accel-Buffering", "no")
		c.SSEvent("availability", a)
		c.Writer.Flush()

		keepalive := time.NewTicker(25 * time.Second)
		defer keepalive.Stop()

		c.Stream(func(_ io.Writer) bool {
			select {
			case <-ctx.Done():
				return false
			case ev := <-ch:
				c.SSEvent(string(ev.Type), ev)
				return true
			case <-keepalive.C:
				_, _ = c.Writer.WriteString(": ping\n\n")
				return true
			}
		})
	}
}

// @Summary  Create hold (idempotent)
// @Tags     reservations
// @Param    id   path  int  true  "Session ID"
// @Param    Idempotency-Key  header  string  false  "replays the first response for the same key"
// @Param    req  body  CreateHoldRequest  true  "payload"
// @Header   201  {string}  Idempotency-Key  "echo"
// @Success  201  {object}  domain.Reservation
// @Failure  400  {object}  ErrorResponse
// @Failure  404  {object}  ErrorResponse
// @Failure  409  {object}  ErrorResponse  "sold out / duplicate / idem in progress"
// @Failure  422  {object}  ErrorResponse  "session started"
// @Failure  429  {object}  ErrorResponse  "rate limited"
// @Failure  503  {object}  ErrorResponse  "lock timeout"
// @Router   /sessions/{id}/holds [post]
func handleCreateHold(
	svcs *service.Services,
	idem *redisrepo.IdempotencyStore,
	logger *slog.Logger,
) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		var req CreateHoldRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		ctx := c.Request.Context()

		idemKey := strings.TrimSpace(c.GetHeader("Idempotency-Key"))
		var idemStorageKey string
		if idem != nil && idemKey != "" {
			key := redisrepo.KeyIdemHold(sessionID, req.UserID, idemKey)

			state, payload, err := idem.Begin(ctx, key, idemLockTTL)
			switch {
			case err != nil:
				// proceed without replay protection
				logger.WarnContext(ctx, "idempotency store unavailable", slog.Any("err", err))
			case state == redisrepo.IdemDone:
				c.Header("Idempotency-Key", idemKey)
				c.Data(http.StatusCreated, "application/json; charset=utf-8", []byte(payload))
				return
			case state == redisrepo.IdemInFlight:
				c.Header("Retry-After", "1")
				c.JSON(http.StatusConflict, ErrorResponse{Error: "idempotency key in progress"})
				return
			default:
				idemStorageKey = key
			}
		}

		res, err := svcs.Reservation.CreateHold(
			ctx,
			sessionID,
			req.UserID,
			time.Duration(req.TTLSec)*time.Second,
		)
		if err != nil {
			if idemStorageKey != "" {
				_ = idem.Release(ctx, idemStorageKey)
			}
			respondErr(c, err)
			return
		}

		if idemStorageKey != "" {
			if b, err := json.Marshal(res); err == nil {
				_ = idem.SaveResult(ctx, idemStorageKey, string(b))
			}
			c.Header("Idempotency-Key", idemKey)
		}

		c.JSON(http.StatusCreated, res)
	}
}

// @Summary  Get reservation
// @Tags     reservations
// @Param    id  path  int  true  "Reservation ID"
// @Success  200  {object}  domain.Reservation
// @Failure  404  {object}  ErrorResponse
// @Router   /reservations/{id} [get]
func handleGetReservation(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		r, err := svcs.Query.GetReservation(c.Request.Context(), id)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, r)
	}
}

// @Summary  Confirm payment of a hold
// @Tags     reservations
// @Param    id   path  int  true  "Reservation ID"
// @Param    req  body  ConfirmPaymentRequest  false  "payload"
// @Success  200  {object}  domain.Reservation
// @Failure  404  {object}  ErrorResponse
// @Failure  422  {object}  ErrorResponse  "not a hold / hold expired"
// @Router   /reservations/{id}/pay [post]
func handleConfirmPayment(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		var req ConfirmPaymentRequest
		if !bindOptionalJSON(c, &req) {
			return
		}
		r, err := svcs.Reservation.ConfirmPayment(c.Request.Context(), id, req.PaymentRef)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, r)
	}
}

// @Summary  Request cancellation
// @Tags     reservations
// @Param    id   path  int  true  "Reservation ID"
// @Param    req  body  RequestCancellationRequest  true  "payload"
// @Success  200  {object}  domain.Reservation  "CANCELED for a hold, CANCEL_REQUESTED for a paid seat"
// @Failure  404  {object}  ErrorResponse
// @Failure  422  {object}  ErrorResponse
// @Router   /reservations/{id}/cancel [post]
func handleRequestCancellation(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		var req RequestCancellationRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		r, err := svcs.Reservation.RequestCancellation(c.Request.Context(), id, req.UserID, req.Reason)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, r)
	}
}

// @Summary  List a user's reservations, newest first
// @Tags     users
// @Param    id      path   int     true   "User ID"
// @Param    status  query  string  false  "ALL or a reservation status"
// @Success  200  {array}   domain.Reservation
// @Failure  400  {object}  ErrorResponse
// @Router   /users/{id}/reservations [get]
func handleListUserReservations(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		list, err := svcs.Query.ListForUser(c.Request.Context(), userID, c.Query("status"))
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, list)
	}
}

// @Summary  List a user's usable coupons
// @Tags     users
// @Param    id  path  int  true  "User ID"
// @Success  200  {array}  domain.IssuedCoupon
// @Router   /users/{id}/coupons [get]
func handleMyCoupons(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		list, err := svcs.Coupon.MyCoupons(c.Request.Context(), userID)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, list)
	}
}

// @Summary  Redeem a coupon against an amount
// @Tags     users
// @Param    id        path  int  true  "User ID"
// @Param    couponId  path  int  true  "Issued coupon ID"
// @Param    req       body  RedeemCouponRequest  true  "payload"
// @Success  200  {object}  coupon.Redemption
// @Failure  404  {object}  ErrorResponse
// @Failure  409  {object}  ErrorResponse  "used or expired"
// @Router   /users/{id}/coupons/{couponId}/redeem [post]
func handleRedeemCoupon(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		couponID, ok := parseInt64Param(c, "couponId")
		if !ok {
			return
		}
		var req RedeemCouponRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		out, err := svcs.Coupon.Redeem(c.Request.Context(), userID, couponID, req.AmountCents)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, out)
	}
}

// @Summary  Create session
// @Tags     admin
// @Param    req  body  CreateSessionRequest  true  "payload"
// @Success  201  {object}  domain.Session
// @Failure  400  {object}  ErrorResponse
// @Router   /admin/sessions [post]
func handleCreateSession(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateSessionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		starts, err := parseRFC3339(req.StartsAt)
		if err != nil {
			badRequest(c, "invalid starts_at (RFC3339)")
			return
		}
		s, err := svcs.Admin.CreateSession(c.Request.Context(), admin.SessionInput{
			Title:      req.Title,
			StartsAt:   starts,
			Capacity:   req.Capacity,
			PriceCents: req.PriceCents,
		})
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusCreated, s)
	}
}

// @Summary  List reservations by status
// @Tags     admin
// @Param    status  query  string  false  "ALL or a reservation status"
// @Success  200  {array}   domain.Reservation
// @Failure  400  {object}  ErrorResponse
// @Router   /admin/reservations [get]
func handleListReservations(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		list, err := svcs.Admin.ListByStatus(c.Request.Context(), c.Query("status"))
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, list)
	}
}

// @Summary  List pending cancellation requests
// @Tags     admin
// @Success  200  {array}  domain.Reservation
// @Router   /admin/reservations/cancel-requests [get]
func handleListCancelRequests(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		list, err := svcs.Admin.CancelRequests(c.Request.Context())
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, list)
	}
}

// @Summary  Approve a cancellation request
// @Tags     admin
// @Param    id  path  int  true  "Reservation ID"
// @Success  200  {object}  domain.Reservation
// @Failure  404  {object}  ErrorResponse
// @Failure  422  {object}  ErrorResponse  "not requested / session started"
// @Router   /admin/reservations/{id}/approve-cancel [post]
func handleApproveCancellation(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		r, err := svcs.Reservation.ApproveCancellation(c.Request.Context(), id)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, r)
	}
}

// @Summary  Reject a cancellation request
// @Tags     admin
// @Param    id  path  int  true  "Reservation ID"
// @Success  200  {object}  domain.Reservation
// @Failure  404  {object}  ErrorResponse
// @Failure  422  {object}  ErrorResponse
// @Router   /admin/reservations/{id}/reject-cancel [post]
func handleRejectCancellation(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		r, err := svcs.Reservation.RejectCancellation(c.Request.Context(), id)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, r)
	}
}

// @Summary  List coupon templates
// @Tags     admin
// @Success  200  {array}  domain.CouponTemplate
// @Router   /admin/coupon-templates [get]
func handleListTemplates(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		list, err := svcs.Coupon.ListTemplates(c.Request.Context())
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, list)
	}
}

// @Summary  Create coupon template
// @Tags     admin
// @Param    req  body  CreateTemplateRequest  true  "payload"
// @Success  201  {object}  domain.CouponTemplate
// @Failure  400  {object}  ErrorResponse
// @Router   /admin/coupon-templates [post]
func handleCreateTemplate(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateTemplateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		active := true
		if req.Active != nil {
			active = *req.Active
		}
		t, err := svcs.Coupon.CreateTemplate(c.Request.Context(), coupon.TemplateInput{
			Name:          req.Name,
			DiscountType:  req.DiscountType,
			DiscountValue: req.DiscountValue,
			ValidDays:     req.ValidDays,
			Active:        active,
		})
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusCreated, t)
	}
}

// @Summary  Activate or deactivate a coupon template
// @Tags     admin
// @Param    id   path  int  true  "Template ID"
// @Param    req  body  SetTemplateActiveRequest  true  "payload"
// @Success  200  {object}  domain.CouponTemplate
// @Failure  404  {object}  ErrorResponse
// @Router   /admin/coupon-templates/{id} [patch]
func handleSetTemplateActive(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		var req SetTemplateActiveRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		t, err := svcs.Coupon.SetTemplateActive(c.Request.Context(), id, *req.Active)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, t)
	}
}

// @Summary      Run a sweeper now
// @Description  Joins the run in progress if the sweeper is already running.
// @Tags         admin
// @Param        name  path  string  true  "expiry or completion"
// @Success      200  {object}  SweepResponse
// @Failure      404  {object}  ErrorResponse
// @Router       /admin/sweeps/{name} [post]
func handleTriggerSweep(jobs []*scheduler.Job) gin.HandlerFunc {
	byName := make(map[string]*scheduler.Job, len(jobs))
	for _, j := range jobs {
		if j != nil {
			byName[j.Name()] = j
		}
	}

	return func(c *gin.Context) {
		name := c.Param("name")
		job, ok := byName[name]
		if !ok {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "unknown sweeper " + strconv.Quote(name)})
			return
		}
		n, shared, err := job.Trigger(c.Request.Context())
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, SweepResponse{Sweeper: name, Count: n, Shared: shared})
	}
}

// --- Helpers ---

func parseInt64Param(c *gin.Context, name string) (int64, bool) {
	s := c.Param(name)
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil || v <= 0 {
		badRequest(c, "invalid "+name)
		return 0, false
	}
	return v, true
}

// bindOptionalJSON binds the body when there is one.
func bindOptionalJSON(c *gin.Context, v any) bool {
	if c.Request.ContentLength == 0 {
		return true
	}
	if err := c.ShouldBindJSON(v); err != nil {
		badRequest(c, err.Error())
		return false
	}
	return true
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: msg})
}
