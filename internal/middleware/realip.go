// Invigilo - Real-Time Exam Integrity Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/invigilo

package middleware

import (
	"net"
	"net/http"
	"strings"
)

// RealIP rewrites r.RemoteAddr from X-Forwarded-For or X-Real-IP, but
// only when the TCP peer is one of the configured trusted proxies.
// Requests arriving directly keep their socket address, so a client
// cannot spoof its IP by sending forwarding headers itself. Ban checks,
// rate limits and audit records all key on the resulting address.
func RealIP(trustedProxies []string) func(http.Handler) http.Handler {
	trusted := make(map[string]struct{}, len(trustedProxies))
	for _, p := range trustedProxies {
		trusted[strings.TrimSpace(p)] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			peer := remoteHost(r.RemoteAddr)
			if _, ok := trusted[peer]; ok {
				if ip := forwardedClientIP(r); ip != "" {
					r.RemoteAddr = ip
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// forwardedClientIP returns the first valid address from X-Forwarded-For,
// falling back to X-Real-IP.
func forwardedClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first := strings.TrimSpace(strings.Split(xff, ",")[0])
		if net.ParseIP(first) != nil {
			return first
		}
	}

	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		if net.ParseIP(xri) != nil {
			return xri
		}
	}

	return ""
}

// remoteHost strips the port from a host:port address. Bare addresses
// pass through unchanged, including bracketed IPv6.
func remoteHost(addr string) string {
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return strings.Trim(addr, "[]")
}

// ClientIP returns the request's client address without any port,
// assuming RealIP already ran.
func ClientIP(r *http.Request) string {
	return remoteHost(r.RemoteAddr)
}
