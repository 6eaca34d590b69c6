package middleware

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/marlowe/storefront-backend/internal/platform/ctxutil"
	"github.com/marlowe/storefront-backend/internal/platform/logger"
)

// AuthMiddleware verifies customer tokens issued by the commerce backend's
// auth service. This layer never issues tokens; it only needs the customer
// id for gating and passes the raw token through to backend calls.
type AuthMiddleware struct {
	log    *logger.Logger
	secret []byte
}

func NewAuthMiddleware(log *logger.Logger, secret string) *AuthMiddleware {
	return &AuthMiddleware{
		log:    log.With("middleware", "AuthMiddleware"),
		secret: []byte(secret),
	}
}

// Optional decorates the request with customer identity when a valid
// token is present. Guest requests pass through untouched.
func (am *AuthMiddleware) Optional() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := bearerToken(c)
		if tokenString == "" {
			c.Next()
			return
		}
		customerID, err := am.verify(tokenString)
		if err != nil {
			am.log.Debug("invalid customer token ignored", "error", err)
			c.Next()
			return
		}
		am.decorate(c, customerID, tokenString)
		c.Next()
	}
}

// Require rejects requests without a valid customer token. Used for the
// loyalty endpoints, which are meaningless for guests.
func (am *AuthMiddleware) Require() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := bearerToken(c)
		if tokenString == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing or invalid token"})
			return
		}
		customerID, err := am.verify(tokenString)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing or invalid token"})
			return
		}
		am.decorate(c, customerID, tokenString)
		c.Next()
	}
}

func (am *AuthMiddleware) decorate(c *gin.Context, customerID, tokenString string) {
	ctx := c.Request.Context()
	rd := ctxutil.GetRequestData(ctx)
	if rd == nil {
		rd = &ctxutil.RequestData{}
	}
	rd.CustomerID = customerID
	rd.AuthToken = tokenString
	c.Request = c.Request.WithContext(ctxutil.WithRequestData(ctx, rd))
}

func (am *AuthMiddleware) verify(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return am.secret, nil
	})
	if err != nil {
		return "", err
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return "", fmt.Errorf("invalid token")
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return "", fmt.Errorf("token missing subject")
	}
	return sub, nil
}

func bearerToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if len(authHeader) > 7 && strings.EqualFold(authHeader[:7], "Bearer ") {
		return authHeader[7:]
	}
	return ""
}
