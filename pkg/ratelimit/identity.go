package ratelimit

import (
	"encoding/base64"
	"encoding/json"
	"net"
	"net/http"
	"strings"
)

// Identity resolves who a request belongs to for rate-limiting purposes.
// Order: bearer-token subject claim, API-key prefix, client IP, "unknown".
// The JWT is not verified here; auth happens elsewhere and a forged
// subject only buys the caller its own bucket.
func Identity(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		if sub := jwtSubject(strings.TrimPrefix(auth, "Bearer ")); sub != "" {
			return sub
		}
	}
	if key := r.Header.Get("X-API-Key"); key != "" {
		if len(key) > 8 {
			key = key[:8]
		}
		return "key:" + key
	}
	if ip := clientIP(r); ip != "" {
		return "ip:" + ip
	}
	return "unknown"
}

// jwtSubject decodes the sub claim from a JWT payload segment.
func jwtSubject(token string) string {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return ""
	}
	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return ""
	}
	var claims struct {
		Sub string `json:"sub"`
	}
	if err := json.Unmarshal(payload, &claims); err != nil {
		return ""
	}
	return claims.Sub
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if first, _, ok := strings.Cut(fwd, ","); ok {
			return strings.TrimSpace(first)
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
