package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/marlowe/storefront-backend/internal/platform/ctxutil"
	"github.com/marlowe/storefront-backend/internal/services"
)

// ginCookies adapts a gin request to the identity store's cookie channel.
type ginCookies struct {
	c      *gin.Context
	secure bool
}

func newCookieChannel(c *gin.Context, secure bool) services.CookieChannel {
	return &ginCookies{c: c, secure: secure}
}

func (g *ginCookies) DeviceID() string {
	if rd := ctxutil.GetRequestData(g.c.Request.Context()); rd != nil && rd.DeviceID != "" {
		return rd.DeviceID
	}
	id, err := g.c.Cookie(services.DeviceCookieName)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(id)
}

func (g *ginCookies) CartCookie() (string, bool) {
	id, err := g.c.Cookie(services.CartCookieName)
	if err != nil || strings.TrimSpace(id) == "" {
		return "", false
	}
	return strings.TrimSpace(id), true
}

func (g *ginCookies) SetCartCookie(cartID string, ttl time.Duration) {
	g.c.SetSameSite(http.SameSiteLaxMode)
	g.c.SetCookie(services.CartCookieName, cartID, int(ttl.Seconds()), "/", "", g.secure, true)
}

func (g *ginCookies) ClearCartCookie() {
	g.c.SetSameSite(http.SameSiteLaxMode)
	g.c.SetCookie(services.CartCookieName, "", -1, "/", "", g.secure, true)
}
