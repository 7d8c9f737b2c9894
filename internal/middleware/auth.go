package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"marketplace-service/internal/auth"
	"marketplace-service/internal/models"
)

const (
	ContextUserID  = "userID"
	ContextAccount = "account"
)

// TokenValidator validates bearer tokens.
type TokenValidator interface {
	ValidateToken(token string) (auth.Claims, error)
}

// UserDirectory records authenticated users so their names can be resolved later.
type UserDirectory interface {
	UpsertUser(ctx context.Context, account models.Account) error
}

// AuthMiddleware validates the Authorization header and stores the caller in
// the gin context. users may be nil.
func AuthMiddleware(validator TokenValidator, users UserDirectory, logger logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization"})
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization header"})
			return
		}

		claims, err := validator.ValidateToken(parts[1])
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		account, err := claims.Account()
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unknown role"})
			return
		}

		if users != nil {
			if err := users.UpsertUser(c.Request.Context(), account); err != nil {
				logger.WithError(err).WithField("user_id", account.AccountID()).Warn("failed to record user")
			}
		}

		c.Set(ContextUserID, account.AccountID())
		c.Set(ContextAccount, account)
		c.Next()
	}
}

// AccountFrom returns the authenticated account set by AuthMiddleware.
func AccountFrom(c *gin.Context) (models.Account, bool) {
	v, ok := c.Get(ContextAccount)
	if !ok {
		return nil, false
	}
	account, ok := v.(models.Account)
	return account, ok
}
