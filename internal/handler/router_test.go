package handler

import (
	"net/http"
	"net/http/httptest"
	"strings"

	"github.com/gin-gonic/gin"

	internalmiddleware "github.com/noah-isme/lms-core-api/internal/middleware"
	"github.com/noah-isme/lms-core-api/internal/models"
)

// testRouter fakes authentication: X-Test-Role and X-Test-User become claims, X-Test-Grant becomes a
// per-course grant in the form "courseID:level".
func testRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(func(c *gin.Context) {
		role := c.GetHeader("X-Test-Role")
		if role == "" {
			c.Next()
			return
		}
		userID := c.GetHeader("X-Test-User")
		if userID == "" {
			userID = "test-user"
		}
		claims := &models.JWTClaims{UserID: userID, Role: models.UserRole(role)}
		access := &models.AccessContext{UserID: userID, Role: claims.Role, Grants: map[string]models.PermissionLevel{}}
		if grant := c.GetHeader("X-Test-Grant"); grant != "" {
			if courseID, level, ok := strings.Cut(grant, ":"); ok {
				access.Grants[courseID] = models.PermissionLevel(level)
			}
		}
		c.Set(internalmiddleware.ContextUserKey, claims)
		c.Set(internalmiddleware.ContextAccessKey, access)
		c.Next()
	})
	return router
}

func performRequest(r http.Handler, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}
