package commerce

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marlowe/storefront-backend/internal/checkouterr"
	"github.com/marlowe/storefront-backend/internal/platform/logger"
)

func newTestClient(t *testing.T, maxRetries int, handler http.HandlerFunc) Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	log, err := logger.New("development")
	require.NoError(t, err)
	c, err := New(log, Config{
		BaseURL:        srv.URL,
		PublishableKey: "pk_test",
		Timeout:        5 * time.Second,
		MaxRetries:     maxRetries,
	})
	require.NoError(t, err)
	return c
}

func TestIdempotentRetryHonorsRetryAfter(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, 2, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"cart":{"id":"cart_1"}}`))
	})

	start := time.Now()
	cart, err := c.GetCart(context.Background(), "cart_1")
	require.NoError(t, err)
	assert.Equal(t, "cart_1", cart.ID)
	assert.Equal(t, int32(2), calls.Load())
	// Retry-After: 1 beats the 500ms base backoff, minus jitter headroom.
	assert.GreaterOrEqual(t, time.Since(start), 700*time.Millisecond)
}

func TestIdempotentRetriesStopAtLimit(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, 1, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	_, err := c.GetCart(context.Background(), "cart_1")
	require.Error(t, err)
	assert.True(t, checkouterr.Is(err, checkouterr.CodeBackend))
	assert.Equal(t, int32(2), calls.Load())
}

func TestNonIdempotentCallNeverRetried(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, 3, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	_, err := c.CompleteCart(context.Background(), "cart_1")
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load(), "a completion that timed out may have taken effect")
}

func TestBackendErrorMapping(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		code   checkouterr.Code
	}{
		{name: "missing_cart", status: http.StatusNotFound, body: `{"message":"cart not found"}`, code: checkouterr.CodeNoCart},
		{name: "inventory", status: http.StatusConflict, body: `{"code":"insufficient_inventory","message":"out of stock"}`, code: checkouterr.CodeInsufficientInventory},
		{name: "points", status: http.StatusConflict, body: `{"code":"insufficient_points","message":"balance too low"}`, code: checkouterr.CodeInsufficientBalance},
		{name: "bad_request", status: http.StatusBadRequest, body: `{"type":"email","message":"invalid email"}`, code: checkouterr.CodeValidation},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := newTestClient(t, 0, func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			})
			_, err := c.GetCart(context.Background(), "cart_1")
			require.Error(t, err)
			assert.True(t, checkouterr.Is(err, tc.code), "got %v", err)
		})
	}
}
