package middlewares

import (
	"context"

	"github.com/dropDatabas3/momtrack/internal/identity"
)

type ctxKey string

const (
	ctxSessionKey   ctxKey = "session"
	ctxRequestIDKey ctxKey = "request_id"
)

// WithSession inyecta la sesión resuelta en el contexto.
func WithSession(ctx context.Context, s identity.Session) context.Context {
	return context.WithValue(ctx, ctxSessionKey, s)
}

// GetSession obtiene la sesión del contexto. ok=false si RequireSession no corrió.
func GetSession(ctx context.Context) (identity.Session, bool) {
	s, ok := ctx.Value(ctxSessionKey).(identity.Session)
	return s, ok
}

// GetRequestID obtiene el request ID del contexto.
func GetRequestID(ctx context.Context) string {
	if s, ok := ctx.Value(ctxRequestIDKey).(string); ok {
		return s
	}
	return ""
}
