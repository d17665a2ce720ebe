// Invigilo - Real-Time Exam Integrity Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/invigilo

package middleware

import (
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/tomtom215/invigilo/internal/logging"
)

// slowRequestMS flags requests that should be fast but were not. The
// websocket endpoint never trips it because the hijacked connection is
// measured by the hub, not here.
const slowRequestMS = 1000

// Logger emits one structured log line per completed request. Server
// errors log at error level, client errors at warn, the rest at info.
func Logger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		durationMS := time.Since(start).Milliseconds()
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		evt := logging.Info()
		switch {
		case status >= http.StatusInternalServerError:
			evt = logging.Error()
		case status >= http.StatusBadRequest:
			evt = logging.Warn()
		}
		evt.Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Int64("duration_ms", durationMS).
			Int("bytes", ww.BytesWritten()).
			Str("remote_addr", r.RemoteAddr).
			Str("request_id", GetRequestID(r.Context())).
			Msg("Request completed")

		if durationMS > slowRequestMS {
			logging.Warn().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int64("duration_ms", durationMS).
				Int64("threshold_ms", slowRequestMS).
				Msg("Slow request detected")
		}
	})
}
