package httpgin

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kirinyoku/oneday/internal/clock"
	"github.com/kirinyoku/oneday/internal/domain"
	"github.com/kirinyoku/oneday/internal/repository/memory"
	redisrepo "github.com/kirinyoku/oneday/internal/repository/redis"
	"github.com/kirinyoku/oneday/internal/scheduler"
	"github.com/kirinyoku/oneday/internal/service"
	"github.com/kirinyoku/oneday/internal/service/coupon"
	"github.com/kirinyoku/oneday/internal/service/query"
	"github.com/kirinyoku/oneday/internal/service/reservation"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func init() {
	gin.SetMode(gin.TestMode)
}

type harness struct {
	router *gin.Engine
	svcs   *service.Services
	store  *memory.Store
	clock  *clock.Fake
	hub    *Hub
}

func newHarness(t *testing.T, limiter reservation.Limiter, idem *redisrepo.IdempotencyStore) *harness {
	t.Helper()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := memory.New()
	clk := clock.NewFake(t0)
	hub := NewHub()

	svcs := service.NewServices(store, nil, hub, limiter, clk, log, service.Config{})
	jobs := []*scheduler.Job{
		scheduler.NewJob("expiry", time.Minute, svcs.Expiry.Sweep, log),
		scheduler.NewJob("completion", time.Minute, svcs.Completion.Sweep, log),
	}

	return &harness{
		router: NewRouter(svcs, Deps{Idem: idem, Hub: hub, Sweepers: jobs}, log),
		svcs:   svcs,
		store:  store,
		clock:  clk,
		hub:    hub,
	}
}

// do sends a request; hdr holds header name/value pairs.
func (h *harness) do(t *testing.T, method, path string, body any, hdr ...string) *httptest.ResponseRecorder {
	t.Helper()

	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	}

	req := httptest.NewRequest(method, path, rd)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(hdr); i += 2 {
		req.Header.Set(hdr[i], hdr[i+1])
	}

	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)
	return w
}

func (h *harness) createSession(t *testing.T, capacity int, startsIn time.Duration) int64 {
	t.Helper()
	w := h.do(t, http.MethodPost, "/admin/sessions", gin.H{
		"title":       "Pottery",
		"starts_at":   h.clock.Now().Add(startsIn).Format(time.RFC3339),
		"capacity":    capacity,
		"price_cents": 4500,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decode[domain.Session](t, w).ID
}

func (h *harness) hold(t *testing.T, sessionID, userID int64) *httptest.ResponseRecorder {
	t.Helper()
	return h.do(t, http.MethodPost, holdsPath(sessionID), gin.H{"user_id": userID})
}

func holdsPath(sessionID int64) string {
	return "/sessions/" + strconv.FormatInt(sessionID, 10) + "/holds"
}

func resPath(id int64, action string) string {
	p := "/reservations/" + strconv.FormatInt(id, 10)
	if action != "" {
		p += "/" + action
	}
	return p
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestHoldAndPay(t *testing.T) {
	h := newHarness(t, nil, nil)
	sid := h.createSession(t, 3, 48*time.Hour)

	w := h.hold(t, sid, 7)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	r := decode[domain.Reservation](t, w)
	assert.Equal(t, domain.StatusHold, r.Status)
	require.NotNil(t, r.HoldExpiresAt)
	assert.True(t, t0.Add(10*time.Minute).Equal(*r.HoldExpiresAt))

	w = h.hold(t, sid, 7)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "active reservation")

	w = h.do(t, http.MethodGet, "/sessions/"+strconv.FormatInt(sid, 10)+"/availability", nil)
	require.Equal(t, http.StatusOK, w.Code)
	a := decode[query.Availability](t, w)
	assert.Equal(t, 1, a.Reserved)
	assert.Equal(t, 2, a.Remaining)
	etag := w.Header().Get("ETag")
	require.NotEmpty(t, etag)

	w = h.do(t, http.MethodGet, "/sessions/"+strconv.FormatInt(sid, 10)+"/availability", nil,
		"If-None-Match", etag)
	assert.Equal(t, http.StatusNotModified, w.Code)
	assert.Empty(t, w.Body.Bytes())

	w = h.do(t, http.MethodPost, resPath(r.ID, "pay"), gin.H{"payment_ref": "pg-123"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	paid := decode[domain.Reservation](t, w)
	assert.Equal(t, domain.StatusPaid, paid.Status)
	assert.Equal(t, "pg-123", paid.PaymentRef)
	assert.Nil(t, paid.HoldExpiresAt)

	w = h.do(t, http.MethodPost, resPath(r.ID, "pay"), nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = h.do(t, http.MethodGet, resPath(r.ID, ""), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, domain.StatusPaid, decode[domain.Reservation](t, w).Status)
}

func TestHoldOnFullSession(t *testing.T) {
	h := newHarness(t, nil, nil)
	sid := h.createSession(t, 1, 48*time.Hour)

	require.Equal(t, http.StatusCreated, h.hold(t, sid, 1).Code)

	w := h.hold(t, sid, 2)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "session is full", decode[ErrorResponse](t, w).Error)
}

func TestHoldOnStartedSession(t *testing.T) {
	h := newHarness(t, nil, nil)
	sid := h.createSession(t, 1, time.Hour)

	h.clock.Advance(time.Hour)
	w := h.hold(t, sid, 1)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "session already started", decode[ErrorResponse](t, w).Error)
}

func TestPayAfterDeadline(t *testing.T) {
	h := newHarness(t, nil, nil)
	sid := h.createSession(t, 1, 48*time.Hour)

	w := h.do(t, http.MethodPost, holdsPath(sid), gin.H{"user_id": 1, "ttl_sec": 60})
	require.Equal(t, http.StatusCreated, w.Code)
	r := decode[domain.Reservation](t, w)

	h.clock.Advance(2 * time.Minute)
	w = h.do(t, http.MethodPost, resPath(r.ID, "pay"), nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "hold expired", decode[ErrorResponse](t, w).Error)
}

func TestHoldIdempotencyKeyReplays(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	h := newHarness(t, nil, redisrepo.NewIdempotencyStore(rdb, time.Hour))
	sid := h.createSession(t, 5, 48*time.Hour)

	body := gin.H{"user_id": 3}
	first := h.do(t, http.MethodPost, holdsPath(sid), body, "Idempotency-Key", "abc")
	require.Equal(t, http.StatusCreated, first.Code, first.Body.String())
	assert.Equal(t, "abc", first.Header().Get("Idempotency-Key"))

	again := h.do(t, http.MethodPost, holdsPath(sid), body, "Idempotency-Key", "abc")
	require.Equal(t, http.StatusCreated, again.Code, again.Body.String())
	assert.JSONEq(t, first.Body.String(), again.Body.String())

	s, err := h.store.Sessions().Get(context.Background(), sid)
	require.NoError(t, err)
	assert.Equal(t, 1, s.Reserved)

	// a failed attempt frees the key for a later retry
	full := h.createSession(t, 1, 48*time.Hour)
	require.Equal(t, http.StatusCreated, h.hold(t, full, 4).Code)
	w := h.do(t, http.MethodPost, holdsPath(full), body, "Idempotency-Key", "xyz")
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.False(t, mr.Exists(redisrepo.KeyIdemHold(full, 3, "xyz")))
}

func TestHoldRateLimited(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	h := newHarness(t, redisrepo.NewSlidingWindowLimiter(rdb, "holds", 1, time.Minute), nil)
	a := h.createSession(t, 2, 48*time.Hour)
	b := h.createSession(t, 2, 48*time.Hour)

	require.Equal(t, http.StatusCreated, h.hold(t, a, 1).Code)

	w := h.hold(t, b, 1)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	sec, err := strconv.Atoi(w.Header().Get("Retry-After"))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, sec, 1)

	require.Equal(t, http.StatusCreated, h.hold(t, b, 2).Code)
}

func TestCancellationFlow(t *testing.T) {
	h := newHarness(t, nil, nil)
	sid := h.createSession(t, 2, 48*time.Hour)

	w := h.hold(t, sid, 4)
	require.Equal(t, http.StatusCreated, w.Code)
	r := decode[domain.Reservation](t, w)
	require.Equal(t, http.StatusOK, h.do(t, http.MethodPost, resPath(r.ID, "pay"), nil).Code)

	w = h.do(t, http.MethodPost, resPath(r.ID, "cancel"), gin.H{"user_id": 5, "reason": "not mine"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = h.do(t, http.MethodPost, resPath(r.ID, "cancel"), gin.H{"user_id": 4, "reason": "sick"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, domain.StatusCancelRequested, decode[domain.Reservation](t, w).Status)

	w = h.do(t, http.MethodGet, "/admin/reservations/cancel-requests", nil)
	require.Equal(t, http.StatusOK, w.Code)
	pending := decode[[]domain.Reservation](t, w)
	require.Len(t, pending, 1)
	assert.Equal(t, "sick", pending[0].CancelReason)

	w = h.do(t, http.MethodPost, "/admin/reservations/"+strconv.FormatInt(r.ID, 10)+"/approve-cancel", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, domain.StatusCanceled, decode[domain.Reservation](t, w).Status)

	w = h.do(t, http.MethodPost, "/admin/reservations/"+strconv.FormatInt(r.ID, 10)+"/reject-cancel", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	s, err := h.store.Sessions().Get(context.Background(), sid)
	require.NoError(t, err)
	assert.Equal(t, 0, s.Reserved)

	w = h.do(t, http.MethodGet, "/admin/reservations?status=canceled", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]domain.Reservation](t, w), 1)

	w = h.do(t, http.MethodGet, "/users/4/reservations?status=ALL", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]domain.Reservation](t, w), 1)
}

func TestRejectCancellationRestoresPaid(t *testing.T) {
	h := newHarness(t, nil, nil)
	sid := h.createSession(t, 2, 48*time.Hour)

	r := decode[domain.Reservation](t, h.hold(t, sid, 4))
	require.Equal(t, http.StatusOK, h.do(t, http.MethodPost, resPath(r.ID, "pay"), nil).Code)
	require.Equal(t, http.StatusOK,
		h.do(t, http.MethodPost, resPath(r.ID, "cancel"), gin.H{"user_id": 4}).Code)

	w := h.do(t, http.MethodPost, "/admin/reservations/"+strconv.FormatInt(r.ID, 10)+"/reject-cancel", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, domain.StatusPaid, decode[domain.Reservation](t, w).Status)
}

func TestBadRequests(t *testing.T) {
	h := newHarness(t, nil, nil)
	sid := h.createSession(t, 2, 48*time.Hour)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
	}{
		{"non-numeric id", http.MethodGet, "/sessions/abc", nil, http.StatusBadRequest},
		{"zero id", http.MethodGet, "/reservations/0", nil, http.StatusBadRequest},
		{"unknown session", http.MethodGet, "/sessions/999", nil, http.StatusNotFound},
		{"unknown reservation", http.MethodGet, "/reservations/999", nil, http.StatusNotFound},
		{"missing user", http.MethodPost, holdsPath(sid), gin.H{}, http.StatusBadRequest},
		{"negative ttl", http.MethodPost, holdsPath(sid), gin.H{"user_id": 1, "ttl_sec": -5}, http.StatusBadRequest},
		{"hold unknown session", http.MethodPost, holdsPath(999), gin.H{"user_id": 1}, http.StatusNotFound},
		{"bad status filter", http.MethodGet, "/users/1/reservations?status=SOLD", nil, http.StatusBadRequest},
		{"bad admin status filter", http.MethodGet, "/admin/reservations?status=SOLD", nil, http.StatusBadRequest},
		{"bad starts_at", http.MethodPost, "/admin/sessions",
			gin.H{"title": "x", "starts_at": "tomorrow", "capacity": 1}, http.StatusBadRequest},
		{"bad discount type", http.MethodPost, "/admin/coupon-templates",
			gin.H{"name": "x", "discount_type": "BOGUS", "discount_value": 5, "valid_days": 1}, http.StatusBadRequest},
		{"percent over 100", http.MethodPost, "/admin/coupon-templates",
			gin.H{"name": "x", "discount_type": "PERCENT", "discount_value": 120, "valid_days": 1}, http.StatusBadRequest},
		{"unknown template", http.MethodPatch, "/admin/coupon-templates/999",
			gin.H{"active": false}, http.StatusNotFound},
		{"unknown sweeper", http.MethodPost, "/admin/sweeps/vacuum", nil, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := h.do(t, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
		})
	}
}

func TestTriggerExpirySweep(t *testing.T) {
	h := newHarness(t, nil, nil)
	sid := h.createSession(t, 1, 48*time.Hour)
	require.Equal(t, http.StatusCreated, h.hold(t, sid, 1).Code)

	h.clock.Advance(11 * time.Minute)
	w := h.do(t, http.MethodPost, "/admin/sweeps/expiry", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	got := decode[SweepResponse](t, w)
	assert.Equal(t, "expiry", got.Sweeper)
	assert.Equal(t, 1, got.Count)

	require.Equal(t, http.StatusCreated, h.hold(t, sid, 2).Code)
}

func TestCompletionRewardAndRedeem(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil, nil)

	w := h.do(t, http.MethodPost, "/admin/coupon-templates", gin.H{
		"name": "Thank you", "discount_type": "PERCENT", "discount_value": 10, "valid_days": 7,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	tpl := decode[domain.CouponTemplate](t, w)
	assert.True(t, tpl.Active)

	sid := h.createSession(t, 2, time.Hour)
	r := decode[domain.Reservation](t, h.hold(t, sid, 9))
	require.Equal(t, http.StatusOK, h.do(t, http.MethodPost, resPath(r.ID, "pay"), nil).Code)

	h.clock.Advance(2 * time.Hour)
	w = h.do(t, http.MethodPost, "/admin/sweeps/completion", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, 1, decode[SweepResponse](t, w).Count)

	w = h.do(t, http.MethodGet, "/users/9/coupons", nil)
	require.Equal(t, http.StatusOK, w.Code)
	wallet := decode[[]domain.IssuedCoupon](t, w)
	require.Len(t, wallet, 1)
	require.NotNil(t, wallet[0].ReservationID)
	assert.Equal(t, r.ID, *wallet[0].ReservationID)

	redeem := "/users/9/coupons/" + strconv.FormatInt(wallet[0].ID, 10) + "/redeem"

	w = h.do(t, http.MethodPost, "/users/8/coupons/"+strconv.FormatInt(wallet[0].ID, 10)+"/redeem",
		gin.H{"amount_cents": 10000})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = h.do(t, http.MethodPost, redeem, gin.H{"amount_cents": 10000})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	out := decode[coupon.Redemption](t, w)
	assert.Equal(t, 9000, out.DiscountedCents)

	w = h.do(t, http.MethodPost, redeem, gin.H{"amount_cents": 10000})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = h.do(t, http.MethodPatch, "/admin/coupon-templates/"+strconv.FormatInt(tpl.ID, 10), gin.H{"active": false})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.False(t, decode[domain.CouponTemplate](t, w).Active)

	active, err := h.svcs.Coupon.ActiveTemplate(ctx)
	require.NoError(t, err)
	assert.Nil(t, active)
}

func TestWatchStreamsSessionEvents(t *testing.T) {
	h := newHarness(t, nil, nil)
	sid := h.createSession(t, 2, 48*time.Hour)

	srv := httptest.NewServer(h.router)
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		srv.URL+"/sessions/"+strconv.FormatInt(sid, 10)+"/watch", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/event-stream")

	rd := bufio.NewReader(resp.Body)
	readUntil(t, rd, "availability")
	assert.Equal(t, 1, h.hub.Watchers(sid))

	w := h.hold(t, sid, 1)
	require.Equal(t, http.StatusCreated, w.Code)

	readUntil(t, rd, "reservation.hold_created")
}

// readUntil consumes the stream up to a line containing want.
func readUntil(t *testing.T, rd *bufio.Reader, want string) {
	t.Helper()
	for {
		line, err := rd.ReadString('\n')
		require.NoError(t, err, "stream ended before %q", want)
		if strings.Contains(line, want) {
			return
		}
	}
}
