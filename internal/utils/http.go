package utils

import (
	"net"
	"strings"

	"github.com/gin-gonic/gin"
)

// GetRealClientIP returns the caller's address behind a proxy. X-Real-IP wins,
// then the first X-Forwarded-For hop, then gin's own view. Header values that
// do not parse as an IP are ignored.
func GetRealClientIP(c *gin.Context) string {
	if ip := parseIP(c.GetHeader("X-Real-IP")); ip != "" {
		return ip
	}

	if xff := c.GetHeader("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := parseIP(first); ip != "" {
			return ip
		}
	}

	return c.ClientIP()
}

// parseIP accepts a bare address or host:port and returns the normalized IP
func parseIP(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	if host, _, err := net.SplitHostPort(value); err == nil {
		value = host
	}
	ip := net.ParseIP(value)
	if ip == nil {
		return ""
	}
	return ip.String()
}
