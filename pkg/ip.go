package pkg

import (
	"net"
	"net/http"
	"strings"
)

// ReadUserIP returns the client address, preferring the headers set by the reverse proxy.
func ReadUserIP(r *http.Request) string {
	if ipAddr := strings.TrimSpace(r.Header.Get("X-Real-Ip")); ipAddr != "" {
		return ipAddr
	}

	// client, proxy1, proxy2 ...
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
