package middleware

import (
	"log/slog"

	"github.com/gin-gonic/gin"

	"github.com/jorgegrios/sistemaPOS-sub000/internal/shared/apperr"
)

// Fail records an error on the context and stops the chain; ErrorHandler
// renders it after the handlers return.
func Fail(c *gin.Context, err error) {
	_ = c.Error(err)
	c.Abort()
}

func ErrorHandler(l *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}

		err := c.Errors.Last().Err
		status := apperr.HTTPStatus(err)

		if status >= 500 {
			l.LogAttrs(c.Request.Context(), slog.LevelError, "request_failed",
				slog.String("request_id", GetRequestID(c)),
				slog.String("path", c.Request.URL.Path),
				slog.Any("err", err),
			)
		}

		body := gin.H{"error": apperr.PublicMessage(err)}
		if ae, ok := apperr.As(err); ok {
			body["code"] = string(ae.Kind)
			if len(ae.Fields) > 0 {
				body["fields"] = ae.Fields
			}
		}
		c.JSON(status, body)
	}
}
