package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/marlowe/storefront-backend/internal/checkouterr"
)

type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
	Field   string `json:"field,omitempty"`
	// ReopenStep tells the checkout UI which step to rewind to when the
	// failure invalidates the one being viewed.
	ReopenStep string `json:"reopen_step,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

func RespondError(c *gin.Context, status int, code string, err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	c.JSON(status, ErrorEnvelope{
		Error: APIError{
			Message: msg,
			Code:    code,
		},
	})
}

// RespondCheckoutError maps the checkout error taxonomy onto the envelope.
// Every failure is scoped to the section that owns the action; none crash
// the checkout view.
func RespondCheckoutError(c *gin.Context, err error) {
	var ce *checkouterr.Error
	if !errors.As(err, &ce) {
		RespondError(c, http.StatusBadGateway, string(checkouterr.CodeBackend), err)
		return
	}
	status := ce.Status
	if status == 0 {
		status = http.StatusBadGateway
	}
	c.JSON(status, ErrorEnvelope{
		Error: APIError{
			Message: ce.Error(),
			Code:    string(ce.Code),
			Field:   ce.Field,
		},
	})
}

func RespondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}
