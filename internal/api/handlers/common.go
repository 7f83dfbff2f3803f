package handlers

import (
	"errors"
	"net/http"

	"github.com/GradientHair/GradientHair/internal/utils"
	"github.com/gin-gonic/gin"
)

type APIError struct {
	Code    utils.Code `json:"code"`
	Message string     `json:"message"`
}

// writeError answers with the error's code and its safe message; anything without
// one gets the status text.
func writeError(c *gin.Context, err error) {
	status := utils.HTTPStatus(err)
	_ = c.Error(err)

	body := APIError{Code: utils.CodeOf(err), Message: http.StatusText(status)}
	var ae *utils.AppError
	if errors.As(err, &ae) && ae.Message != "" {
		body.Message = ae.Message
	}
	c.JSON(status, body)
}

func requireUserID(c *gin.Context) (string, bool) {
	if v, ok := c.Get("user_id"); ok {
		if s, ok := v.(string); ok && s != "" {
			return s, true
		}
	}

	writeError(c, utils.E(utils.CodeUnauthorized, "Auth", "unauthorized", nil))
	return "", false
}

func isAdmin(c *gin.Context) bool {
	return c.GetString("role") == "admin"
}
