package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	apperrors "ledgersync/internal/errors"
	"ledgersync/internal/identity"
)

// SubjectKey is the gin context key holding the verified token subject.
const SubjectKey = "subject"

// Auth verifies the bearer token and sets its subject in the context.
func Auth(tokens *identity.Tokens) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			abortWithError(c, apperrors.WithMessage(apperrors.ErrUnauthenticated, "Authorization header is required"))
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			abortWithError(c, apperrors.WithMessage(apperrors.ErrUnauthenticated, "Invalid authorization header format"))
			return
		}

		subject, err := tokens.Verify(parts[1])
		if err != nil {
			abortWithError(c, apperrors.WithMessage(apperrors.ErrUnauthenticated, "Invalid or expired token"))
			return
		}

		c.Set(SubjectKey, subject)
		c.Next()
	}
}

// Subject returns the verified subject set by Auth.
func Subject(c *gin.Context) (string, bool) {
	v, ok := c.Get(SubjectKey)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok && s != ""
}

func abortWithError(c *gin.Context, appErr *apperrors.AppError) {
	c.AbortWithStatusJSON(appErr.StatusCode, gin.H{
		"error": gin.H{
			"code":    appErr.Code,
			"message": appErr.Message,
		},
	})
}
