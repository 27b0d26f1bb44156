package middlewares

import (
	"context"
	"errors"
	"net/http"

	httperrors "github.com/dropDatabas3/momtrack/internal/http/errors"
	"github.com/dropDatabas3/momtrack/internal/http/helpers"
	"github.com/dropDatabas3/momtrack/internal/identity"
	"github.com/dropDatabas3/momtrack/internal/observability/logger"
)

// SessionResolver resuelve el valor de la cookie de sesión.
type SessionResolver interface {
	Current(ctx context.Context, sid string) (identity.Session, error)
}

// RequireSession exige una sesión válida; la deja en el contexto junto con
// un logger que ya lleva el user_id.
func RequireSession(resolver SessionResolver, cookieName string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			s, err := resolver.Current(ctx, helpers.ReadCookie(r, cookieName))
			if err != nil {
				if !errors.Is(err, identity.ErrNoSession) {
					logger.From(ctx).Error("session lookup failed", logger.Component("session"), logger.Err(err))
					httperrors.WriteError(w, httperrors.ErrServiceUnavailable.WithCause(err))
					return
				}
				httperrors.WriteError(w, httperrors.ErrUnauthorized)
				return
			}
			ctx = WithSession(ctx, s)
			ctx = logger.ToContext(ctx, logger.From(ctx).With(logger.UserID(s.User.ID)))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
