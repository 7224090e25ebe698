package middleware

import (
	"context"
	"net/http"
	"strings"

	"backoffice/internal/app/apperr"
	"backoffice/internal/app/handler"
	"backoffice/internal/app/logger"
	"backoffice/internal/app/session"
)

func Auth(jwt session.Reader) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			log := logger.Get(r.Context(), "Middleware.Auth")

			reqHeader := r.Header.Get("Authorization")
			splitToken := strings.Split(reqHeader, "Bearer ")
			if len(splitToken) != 2 {
				log.Debug().Msg("Invalid Authorization header")
				handler.WriteError(w, apperr.ErrUnauthorized)
				return
			}

			u, err := jwt.Read(r.Context(), splitToken[1])
			if err != nil {
				log.Debug().Err(err).Msg("Token validation failed")
				handler.WriteError(w, apperr.ErrUnauthorized)
				return
			}

			log.Debug().Str("user", u.Name).Msg("User authorized")
			r = r.WithContext(context.WithValue(r.Context(), handler.ContextKeyUser{}, u))
			next.ServeHTTP(w, r)
		})
	}
}

// Admin lets through only administrators. It must run after Auth.
func Admin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, err := handler.ReadContextUser(r.Context())
		if err != nil {
			handler.WriteError(w, err)
			return
		}
		if !u.IsAdmin() {
			l := logger.Get(r.Context(), "Middleware.Admin")
			l.Debug().Str("user", u.Name).Msg("Admin role required")
			handler.WriteError(w, apperr.ErrForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}
