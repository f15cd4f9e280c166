package utils

import (
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
)

// Hyperlink builds an absolute URL for key under path on the host that
// served the request. key is escaped as one path segment.
func Hyperlink(c *gin.Context, path string, key string) string {
	base := strings.TrimRight(path, "/") + "/"

	u := url.URL{
		Scheme:  requestScheme(c),
		Host:    c.Request.Host,
		Path:    base + key,
		RawPath: base + url.PathEscape(key),
	}
	return u.String()
}

// requestScheme honours X-Forwarded-Proto only for http and https.
func requestScheme(c *gin.Context) string {
	switch proto := strings.ToLower(strings.TrimSpace(c.GetHeader("X-Forwarded-Proto"))); proto {
	case "http", "https":
		return proto
	}
	if c.Request.TLS != nil {
		return "https"
	}
	return "http"
}
