package middleware

import (
	"net"
	"net/http"

	"github.com/gin-gonic/gin"
)

// IPWhitelist restricts requests to the given source addresses. Entries may
// be single IPs ("10.0.0.5") or CIDR ranges ("10.0.0.0/24"). An empty list
// allows everything.
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

	permitted := func(ip string) bool {
		if _, ok := exact[ip]; ok {
			return true
		}
		parsed := net.ParseIP(ip)
		if parsed == nil {
			return false
		}
		for _, n := range nets {
			if n.Contains(parsed) {
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
		if !permitted(c.ClientIP()) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "access denied"})
			return
		}
		c.Next()
	}
}
