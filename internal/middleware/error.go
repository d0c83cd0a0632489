package middleware

import (
	"errors"

	"github.com/gin-gonic/gin"

	apperrors "ledgersync/internal/errors"
	"ledgersync/internal/logger"
)

// ErrorHandler renders the last error a handler attached with c.Error.
//
// AppErrors keep their code and status. Anything else came out of the
// backing document store (a dropped connection, a failed query) and is
// reported as UNAVAILABLE so remote clients treat it as a transport failure
// and retry on their next sync.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}
		err := c.Errors.Last().Err

		var appErr *apperrors.AppError
		if !errors.As(err, &appErr) {
			appErr = apperrors.Wrap(apperrors.ErrUnavailable, err)
		}

		if appErr.Internal != nil {
			logger.Named("gateway").Errorw("request failed",
				"request_id", c.GetString(requestIDKey),
				"code", appErr.Code,
				"internal", appErr.Internal.Error(),
				"method", c.Request.Method,
				"path", c.Request.URL.Path,
			)
		}
		abortWithError(c, appErr)
	}
}
