package middleware

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/lms-core-api/internal/models"
	"github.com/noah-isme/lms-core-api/pkg/response"
)

// ContextAccessKey is the gin context key storing the resolved *models.AccessContext.
const ContextAccessKey = "currentAccess"

type accessResolver interface {
	Resolve(ctx context.Context, claims *models.JWTClaims) (*models.AccessContext, error)
}

// Access resolves the caller's per-course grants once per request. Anonymous requests get an empty
// AccessContext so services can apply catalogue visibility rules.
func Access(resolver accessResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := claimsFrom(c)
		if claims == nil {
			c.Set(ContextAccessKey, &models.AccessContext{})
			c.Next()
			return
		}
		access, err := resolver.Resolve(c.Request.Context(), claims)
		if err != nil {
			response.Error(c, err)
			c.Abort()
			return
		}
		c.Set(ContextAccessKey, access)
		c.Next()
	}
}

func claimsFrom(c *gin.Context) *models.JWTClaims {
	value, exists := c.Get(ContextUserKey)
	if !exists {
		return nil
	}
	claims, _ := value.(*models.JWTClaims)
	return claims
}
