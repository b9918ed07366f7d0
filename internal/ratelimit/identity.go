package ratelimit

import (
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	// VisitorCookie is the long-lived opaque token assigned on first contact.
	VisitorCookie = "klaro_visitor"

	// visitorTokenTTL bounds how long one token keeps mapping to the same
	// identity. Throttling only, never authorization.
	visitorTokenTTL = 30 * 24 * time.Hour
)

// Identity derives the composite throttling key for a request: the visitor
// token joined with the caller's apparent network origin. If the request has
// no visitor cookie yet, a fresh token is minted and set on the response, so
// the same browser keeps the same identity on subsequent calls.
func Identity(w http.ResponseWriter, r *http.Request) string {
	token := ""
	if c, err := r.Cookie(VisitorCookie); err == nil && c.Value != "" {
		token = c.Value
	}
	if token == "" {
		token = uuid.New().String()
		http.SetCookie(w, &http.Cookie{
			Name:     VisitorCookie,
			Value:    token,
			Path:     "/",
			Expires:  time.Now().Add(visitorTokenTTL),
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
	}

	return token + ":" + clientIP(r)
}

// clientIP resolves the caller's network origin, trusting the first entry of
// X-Forwarded-For when a proxy set it.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		parts := strings.Split(fwd, ",")
		ip := strings.TrimSpace(parts[0])
		if ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
