package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/peerlearn/peerlearn-api/internal/models"
	appErrors "github.com/peerlearn/peerlearn-api/pkg/errors"
)

type stubTokens map[string]*models.JWTClaims

func (s stubTokens) ValidateToken(token string) (*models.JWTClaims, error) {
	if claims, ok := s[token]; ok {
		return claims, nil
	}
	return nil, appErrors.Clone(appErrors.ErrUnauthorized, "Invalid token")
}

func serveWithAuth(mw gin.HandlerFunc, header string) (*httptest.ResponseRecorder, *models.JWTClaims) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	_, engine := gin.CreateTestContext(w)
	var seen *models.JWTClaims
	engine.GET("/x", mw, func(c *gin.Context) {
		if v, ok := c.Get(ContextUserKey); ok {
			seen = v.(*models.JWTClaims)
		}
		c.Status(http.StatusNoContent)
	})
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	engine.ServeHTTP(w, req)
	return w, seen
}

func TestJWT(t *testing.T) {
	tokens := stubTokens{"good": {UserID: "u1", Role: models.RoleStudent}}

	w, claims := serveWithAuth(JWT(tokens), "Bearer good")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "u1", claims.UserID)

	w, _ = serveWithAuth(JWT(tokens), "bearer   good")
	assert.Equal(t, http.StatusNoContent, w.Code)

	for _, header := range []string{"", "Bearer", "Basic good", "Bearer forged"} {
		w, claims = serveWithAuth(JWT(tokens), header)
		assert.Equal(t, http.StatusUnauthorized, w.Code, header)
		assert.Nil(t, claims)
	}
}

func TestOptionalJWTNeverBlocks(t *testing.T) {
	tokens := stubTokens{"good": {UserID: "u1"}}

	w, claims := serveWithAuth(OptionalJWT(tokens), "Bearer good")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "u1", claims.UserID)

	w, claims = serveWithAuth(OptionalJWT(tokens), "Bearer forged")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Nil(t, claims)
}

type recordingObserver struct {
	routes   []string
	statuses []int
}

func (r *recordingObserver) ObserveHTTPRequest(_, route string, status int, _ time.Duration) {
	r.routes = append(r.routes, route)
	r.statuses = append(r.statuses, status)
}

func TestMetricsLabelsByRouteTemplate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	obs := &recordingObserver{}
	engine := gin.New()
	engine.Use(Metrics(obs))
	engine.GET("/notes/:id", func(c *gin.Context) { c.Status(http.StatusOK) })

	for _, path := range []string{"/notes/123", "/notes/456", "/wp-admin"} {
		engine.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	assert.Equal(t, []string{"/notes/:id", "/notes/:id", unmatchedRoute}, obs.routes)
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusNotFound}, obs.statuses)
}
