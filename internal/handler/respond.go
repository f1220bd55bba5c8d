// Package handler exposes Chronicle over HTTP: the JSON API under
// /api/v1 and the cookie-based web surface. All error responses share
// the {code, message} shape produced from the errs taxonomy.
package handler

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/chroniclehq/chronicle/internal/errs"
)

// respondError writes the taxonomy {code, message} body for err. Causes
// stay in the logs; clients only ever see the safe message.
func respondError(c *gin.Context, logger *zap.Logger, err error) {
	code := errs.CodeOf(err)
	status := errs.HTTPStatus(code)
	if code == errs.CodeInternal {
		logger.Error("request failed",
			zap.String("path", c.Request.URL.Path),
			zap.Error(err),
		)
	}
	c.AbortWithStatusJSON(status, gin.H{
		"code":    string(code),
		"message": errs.MessageOf(err),
	})
}

// respondBindError reports a malformed request body as ValidationFailed.
func respondBindError(c *gin.Context, err error) {
	c.AbortWithStatusJSON(errs.HTTPStatus(errs.CodeValidationFailed), gin.H{
		"code":    string(errs.CodeValidationFailed),
		"message": "invalid request body: " + err.Error(),
	})
}
