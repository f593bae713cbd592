package middleware

import (
	"net"
	"net/http"

	"github.com/gin-gonic/gin"
)

// IPWhitelist restricts a route group to the listed addresses. Entries may be
// plain IPs ("10.0.0.5") or CIDR ranges ("10.0.0.0/24"). An empty list allows
// everyone.
func IPWhitelist(entries []string) gin.HandlerFunc {
	exact := make(map[string]struct{})
	var nets []*net.IPNet
	for _, e := range entries {
		if _, n, err := net.ParseCIDR(e); err == nil {
			nets = append(nets, n)
			continue
		}
		exact[e] = struct{}{}
	}

	allowed := func(ipStr string) bool {
		if _, ok := exact[ipStr]; ok {
			return true
		}
		ip := net.ParseIP(ipStr)
		if ip == nil {
			return false
		}
		for _, n := range nets {
			if n.Contains(ip) {
				return true
			}
		}
		return false
	}

	return func(c *gin.Context) {
		if len(exact) == 0 && len(nets) == 0 {
			c.Next()
			return
		}
		if !allowed(c.ClientIP()) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "access denied"})
			return
		}
		c.Next()
	}
}
