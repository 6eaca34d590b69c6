package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/marlowe/storefront-backend/internal/platform/ctxutil"
	"github.com/marlowe/storefront-backend/internal/services"
)

// RepCookieName holds a sales-rep referral code captured from the ?rep=
// query parameter, so attribution survives until the cart is created.
const RepCookieName = "_storefront_rep"

// AttachRequestContext guarantees a device cookie (the key of the durable
// identity channel), captures referral attribution, and seeds the request
// data the services read from context.
func AttachRequestContext(secureCookies bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		deviceID, err := c.Cookie(services.DeviceCookieName)
		if err != nil || strings.TrimSpace(deviceID) == "" {
			deviceID = uuid.NewString()
			c.SetSameSite(http.SameSiteLaxMode)
			c.SetCookie(services.DeviceCookieName, deviceID, int((365 * 24 * time.Hour).Seconds()), "/", "", secureCookies, true)
		}

		if rep := strings.TrimSpace(c.Query("rep")); rep != "" {
			if existing, err := c.Cookie(RepCookieName); err != nil || existing == "" {
				c.SetSameSite(http.SameSiteLaxMode)
				c.SetCookie(RepCookieName, rep, int((30 * 24 * time.Hour).Seconds()), "/", "", secureCookies, true)
			}
		}

		ctx := ctxutil.WithRequestData(c.Request.Context(), &ctxutil.RequestData{
			DeviceID: deviceID,
		})
		td := &ctxutil.TraceData{RequestID: uuid.NewString()}
		if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
			td.TraceID = sc.TraceID().String()
		}
		ctx = ctxutil.WithTraceData(ctx, td)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
