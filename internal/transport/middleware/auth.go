package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/ds124wfegd/shortlink/internal/entity"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

const UserIDKey = "userID"

// KeyValidator resolves an API key to the id of its owner.
type KeyValidator interface {
	Validate(ctx context.Context, key string) (int64, error)
}

// Auth requires "Authorization: Bearer <api-key>".
func Auth(keys KeyValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		scheme, token, found := strings.Cut(c.GetHeader("Authorization"), " ")
		if !found || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer api-key"})
			return
		}

		userID, err := keys.Validate(c.Request.Context(), strings.TrimSpace(token))
		if err != nil {
			var appErr *entity.AppError
			if errors.As(err, &appErr) && appErr.Kind != entity.KindInternal {
				c.AbortWithStatusJSON(appErr.Status(), gin.H{"error": appErr.Message})
				return
			}
			logrus.WithError(err).Error("api key validation failed")
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
			return
		}

		c.Set(UserIDKey, userID)
		c.Next()
	}
}
