// Package audit escribe la traza de auditoría (altas, bajas, vinculaciones)
// como entradas del logger "audit". El sink es el mismo que el del logger.
package audit

import (
	"context"

	"go.uber.org/zap"

	"github.com/dropDatabas3/momtrack/internal/identity"
	"github.com/dropDatabas3/momtrack/internal/observability/logger"
)

// Log registra un evento de auditoría con los campos dados.
func Log(ctx context.Context, event string, fields ...zap.Field) {
	logger.From(ctx).Named("audit").Info(event, append(fields, zap.String("event", event))...)
}

// IdentityListener audita los cambios de identidad. Se registra con
// Provider.Subscribe.
func IdentityListener() identity.Listener {
	return func(ctx context.Context, e identity.Event) {
		Log(ctx, "identity."+e.Kind.String(), logger.UserID(e.UserID))
	}
}
