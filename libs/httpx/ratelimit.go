package httpx

import (
	"net"
	"net/http"
	"strings"
)

// clientKey identifies the caller for rate limiting: the first
// X-Forwarded-For hop when present, the remote address otherwise.
func clientKey(r *http.Request) string {
	if ip := r.Header.Get("X-Forwarded-For"); ip != "" {
		parts := strings.Split(ip, ",")
		return strings.TrimSpace(parts[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil {
		return host
	}
	return r.RemoteAddr
}
