package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
)

type contextKey string

// PrincipalContextKey is the key used to store/retrieve the Principal from context.
const PrincipalContextKey contextKey = "auth_principal"

// Middleware validates the caller before the handler runs and injects the Principal.
func Middleware(auther Auther, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// [PRE_AUTH]
			p, err := auther.Inspect(r)
			if err != nil {
				logger.Debug("AUTH_REJECTED", "path", r.URL.Path, "remote", r.RemoteAddr, "err", err)
				status := http.StatusUnauthorized
				if !errors.Is(err, ErrUnauthenticated) {
					status = http.StatusInternalServerError
				}
				http.Error(w, http.StatusText(status), status)
				return
			}

			// [ENRICHMENT]
			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
		})
	}
}

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, PrincipalContextKey, p)
}

// FromContext returns the zero (trust mode) Principal when none was injected.
func FromContext(ctx context.Context) Principal {
	p, _ := ctx.Value(PrincipalContextKey).(Principal)
	return p
}
