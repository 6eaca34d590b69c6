package commerce

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/marlowe/storefront-backend/internal/checkouterr"
	"github.com/marlowe/storefront-backend/internal/pkg/httpx"
	"github.com/marlowe/storefront-backend/internal/platform/ctxutil"
	"github.com/marlowe/storefront-backend/internal/platform/envutil"
	"github.com/marlowe/storefront-backend/internal/platform/logger"
	"github.com/marlowe/storefront-backend/internal/types"
)

// cartFields is the full projection requested after every write. A write
// response is never trusted as the new source of truth; the coordinator
// re-fetches with this projection instead.
const cartFields = "*items,*items.variant,*shipping_methods,*promotions,*payment_collection.payment_sessions,*shipping_address,*billing_address,metadata"

// Client is the storefront's view of the commerce backend. All pricing,
// tax, inventory and order state is owned on the other side of it.
type Client interface {
	GetCart(ctx context.Context, cartID string) (*types.Cart, error)
	CreateCart(ctx context.Context, in CreateCartInput) (*types.Cart, error)
	UpdateCart(ctx context.Context, cartID string, in UpdateCartInput) (*types.Cart, error)
	ResetCart(ctx context.Context, cartID string) error
	CompleteCart(ctx context.Context, cartID string) (*CompleteResult, error)

	AddLineItem(ctx context.Context, cartID, variantID string, quantity int) (*types.Cart, error)
	UpdateLineItem(ctx context.Context, cartID, lineItemID string, quantity int) (*types.Cart, error)
	RemoveLineItem(ctx context.Context, cartID, lineItemID string) error

	ListShippingOptions(ctx context.Context, cartID string) ([]types.ShippingOption, error)
	CalculateShippingOption(ctx context.Context, cartID, optionID string) (*CalculatedRate, error)
	AddShippingMethod(ctx context.Context, cartID, optionID string, amount int64) (*types.Cart, error)
	ClearShippingMethods(ctx context.Context, cartID string) error

	LoyaltyAccount(ctx context.Context) (*types.LoyaltyAccount, error)
	ApplyLoyalty(ctx context.Context, cartID string) (*types.Cart, error)
	RemoveLoyalty(ctx context.Context, cartID string) (*types.Cart, error)

	AttachCustomer(ctx context.Context, cartID string) (*types.Cart, error)
	AttachAttribution(ctx context.Context, cartID, repCode string) error
}

type Config struct {
	BaseURL        string
	PublishableKey string
	Timeout        time.Duration
	MaxRetries     int
}

func ConfigFromEnv() Config {
	return Config{
		BaseURL:        strings.TrimSpace(os.Getenv("COMMERCE_BASE_URL")),
		PublishableKey: strings.TrimSpace(os.Getenv("COMMERCE_PUBLISHABLE_KEY")),
		Timeout:        envutil.Duration("COMMERCE_TIMEOUT", 20*time.Second),
		MaxRetries:     envutil.Int("COMMERCE_MAX_RETRIES", 3),
	}
}

func NewFromEnv(log *logger.Logger) (Client, error) {
	return New(log, ConfigFromEnv())
}

func New(log *logger.Logger, cfg Config) (Client, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("missing COMMERCE_BASE_URL")
	}
	if strings.TrimSpace(cfg.PublishableKey) == "" {
		return nil, fmt.Errorf("missing COMMERCE_PUBLISHABLE_KEY")
	}
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}

	return &client{
		log:        log.With("client", "CommerceClient"),
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

type client struct {
	log        *logger.Logger
	cfg        Config
	httpClient *http.Client
}

// BackendError is the commerce backend's structured error body. Completion
// rejections arrive inside a 200 response carrying one of these.
type BackendError struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// do runs one backend call. Only idempotent calls are retried; a cart
// completion or line-item add that timed out may have taken effect.
func (c *client) do(ctx context.Context, method, path string, body any, out any, idempotent bool) error {
	var payload []byte
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		payload = raw
	}

	maxRetries := 0
	if idempotent {
		maxRetries = c.cfg.MaxRetries
	}
	backoff := 500 * time.Millisecond

	for attempt := 0; ; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		resp, err := c.doOnce(ctx, method, path, payload, out)
		if err == nil {
			return nil
		}

		if !httpx.IsRetryableError(err) || attempt == maxRetries {
			return err
		}

		// A throttling backend names its own pause.
		sleepFor := httpx.RetryAfterDuration(resp, backoff, 10*time.Second)
		sleepFor = httpx.JitterSleep(sleepFor)

		c.log.Warn("commerce call retrying",
			"method", method,
			"path", path,
			"attempt", attempt+1,
			"max_retries", maxRetries,
			"sleep", sleepFor.String(),
			"error", err.Error(),
		)

		if err := httpx.SleepCtx(ctx, sleepFor); err != nil {
			return err
		}
		backoff *= 2
	}
}

// doOnce returns the response alongside any error so the retry loop can
// honor a Retry-After header; it is nil when the transport itself failed.
func (c *client) doOnce(ctx context.Context, method, path string, payload []byte, out any) (*http.Response, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("x-publishable-api-key", c.cfg.PublishableKey)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if tok := ctxutil.AuthToken(ctx); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, checkouterr.Backend(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return resp, checkouterr.Backend(fmt.Errorf("read response: %w", err))
	}

	if resp.StatusCode >= 400 {
		return resp, c.mapError(resp.StatusCode, raw)
	}
	if out == nil || len(raw) == 0 {
		return resp, nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return resp, checkouterr.Backend(fmt.Errorf("decode response: %w", err))
	}
	return resp, nil
}

func (c *client) mapError(status int, raw []byte) error {
	var be BackendError
	_ = json.Unmarshal(raw, &be)
	msg := strings.TrimSpace(be.Message)
	if msg == "" {
		msg = strings.TrimSpace(string(raw))
	}
	if msg == "" {
		msg = http.StatusText(status)
	}
	err := fmt.Errorf("%s", msg)

	switch strings.ToLower(be.Code) {
	case "insufficient_balance", "insufficient_points":
		return checkouterr.New(status, checkouterr.CodeInsufficientBalance, err)
	case "insufficient_inventory":
		return checkouterr.New(status, checkouterr.CodeInsufficientInventory, err)
	}

	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return checkouterr.Ownership(err)
	case status == http.StatusNotFound:
		return checkouterr.New(status, checkouterr.CodeNoCart, err)
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		return checkouterr.Validation(be.Type, err)
	default:
		return checkouterr.New(status, checkouterr.CodeBackend, err)
	}
}
