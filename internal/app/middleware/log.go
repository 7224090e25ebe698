package middleware

import (
	"net/http"
	"time"

	"backoffice/internal/app/logger"
	"github.com/justinas/alice"
	"github.com/rs/zerolog/hlog"
)

// Log injects the request logger, tags the request with an id and writes an access log line
func Log(l logger.Logger) func(next http.Handler) http.Handler {
	chain := alice.New(
		hlog.NewHandler(l.Logger),
		hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
			hlog.FromRequest(r).Info().
				Str("method", r.Method).
				Stringer("url", r.URL).
				Int("status", status).
				Int("size", size).
				Dur("duration", duration).
				Msg("")
		}),
		hlog.RemoteAddrHandler("ip"),
		hlog.UserAgentHandler("user_agent"),
		hlog.RequestIDHandler("req_id", "X-Request-Id"),
	)

	return chain.Then
}
