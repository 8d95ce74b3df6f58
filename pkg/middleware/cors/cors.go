package cors

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	allowHeaders  = "Authorization, Content-Type, X-Requested-With, X-Request-ID"
	allowMethods  = "GET, POST, PUT, PATCH, DELETE, OPTIONS"
	exposeHeaders = "Content-Disposition, X-Request-ID"
)

// Policy decides which browser origins may call the API. It is shared by the
// HTTP middleware and the websocket upgrader.
type Policy struct {
	any      bool
	exact    map[string]struct{}
	suffixes []string
}

// NewPolicy parses allowed origins. An empty list or "*" allows every origin.
// Entries like "https://*.peerlearn.app" match any subdomain of that host.
func NewPolicy(origins []string) *Policy {
	p := &Policy{exact: make(map[string]struct{}, len(origins))}
	for _, origin := range origins {
		origin = normalize(origin)
		switch {
		case origin == "":
		case origin == "*":
			p.any = true
		case strings.Contains(origin, "://*."):
			scheme, host, _ := strings.Cut(origin, "://*")
			p.suffixes = append(p.suffixes, scheme+"://|"+host)
		default:
			p.exact[origin] = struct{}{}
		}
	}
	if len(p.exact) == 0 && len(p.suffixes) == 0 {
		p.any = true
	}
	return p
}

// AllowsAny reports whether every origin is accepted.
func (p *Policy) AllowsAny() bool { return p.any }

// Allows reports whether origin may access the API.
func (p *Policy) Allows(origin string) bool {
	if p.any {
		return true
	}
	origin = normalize(origin)
	if _, ok := p.exact[origin]; ok {
		return true
	}
	for _, rule := range p.suffixes {
		prefix, suffix, _ := strings.Cut(rule, "|")
		if strings.HasPrefix(origin, prefix) && strings.HasSuffix(origin, suffix) && len(origin) > len(prefix)+len(suffix) {
			return true
		}
	}
	return false
}

// New returns a CORS middleware for the given origins.
func New(allowedOrigins []string) gin.HandlerFunc {
	return Middleware(NewPolicy(allowedOrigins))
}

// Middleware applies policy to every request and answers preflights.
func Middleware(policy *Policy) gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Add("Vary", "Origin")
		origin := c.GetHeader("Origin")
		switch {
		case origin != "" && policy.Allows(origin):
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Credentials", "true")
		case origin == "" && policy.AllowsAny():
			h.Set("Access-Control-Allow-Origin", "*")
		}
		h.Set("Access-Control-Allow-Headers", allowHeaders)
		h.Set("Access-Control-Allow-Methods", allowMethods)
		h.Set("Access-Control-Expose-Headers", exposeHeaders)
		h.Set("Access-Control-Max-Age", "600")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func normalize(origin string) string {
	return strings.ToLower(strings.TrimRight(strings.TrimSpace(origin), "/"))
}
