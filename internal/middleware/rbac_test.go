package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/peerlearn/peerlearn-api/internal/models"
)

func runWithClaims(claims *models.JWTClaims, handler gin.HandlerFunc) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	_, engine := gin.CreateTestContext(w)
	engine.GET("/guarded", func(c *gin.Context) {
		if claims != nil {
			c.Set(ContextUserKey, claims)
		}
		c.Next()
	}, handler, func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	req := httptest.NewRequest(http.MethodGet, "/guarded", nil)
	engine.ServeHTTP(w, req)
	return w
}

func TestRequireRolesAllowsListedRole(t *testing.T) {
	w := runWithClaims(&models.JWTClaims{UserID: "u1", Role: models.RoleTeacher}, RequireRoles("", models.RoleTeacher))
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestRequireRolesRejectsOtherRoles(t *testing.T) {
	w := runWithClaims(&models.JWTClaims{UserID: "u1", Role: models.RoleStudent}, RequireRoles("Only teachers can access this resource", models.RoleTeacher))
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), "Only teachers can access this resource")
}

func TestRequireRolesWithoutClaims(t *testing.T) {
	w := runWithClaims(nil, RequireRoles("", models.RoleTeacher))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
