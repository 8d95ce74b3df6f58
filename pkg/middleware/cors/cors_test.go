package cors

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestPolicyMatching(t *testing.T) {
	p := NewPolicy([]string{"http://localhost:3000/", "https://*.peerlearn.app"})

	assert.True(t, p.Allows("http://localhost:3000"))
	assert.True(t, p.Allows("https://web.peerlearn.app"))
	assert.True(t, p.Allows("HTTPS://Staging.PeerLearn.app"))
	assert.False(t, p.Allows("https://peerlearn.app.evil.com"))
	assert.False(t, p.Allows("http://web.peerlearn.app"))
	assert.False(t, p.Allows("https://.peerlearn.app"))
	assert.False(t, p.AllowsAny())

	assert.True(t, NewPolicy(nil).Allows("https://anything.example"))
	assert.True(t, NewPolicy([]string{"*"}).AllowsAny())
}

func TestMiddlewareHeaders(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(New([]string{"http://localhost:3000"}))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))
	assert.Contains(t, w.Header().Get("Access-Control-Expose-Headers"), "Content-Disposition")

	req = httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Origin", "http://evil.test")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodOptions, "/x", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
}
