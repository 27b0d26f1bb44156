package audit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/dropDatabas3/momtrack/internal/identity"
	"github.com/dropDatabas3/momtrack/internal/observability/logger"
)

func TestIdentityListenerLogsEvent(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	ctx := logger.ToContext(context.Background(), zap.New(core))

	IdentityListener()(ctx, identity.Event{Kind: identity.Deleted, UserID: "u-1"})

	entries := logs.All()
	require.Len(t, entries, 1)
	e := entries[0]
	require.Equal(t, "audit", e.LoggerName)
	require.Equal(t, "identity.deleted", e.Message)
	fields := e.ContextMap()
	require.Equal(t, "u-1", fields["user_id"])
	require.Equal(t, "identity.deleted", fields["event"])
}

func TestLogKeepsCallerFields(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	ctx := logger.ToContext(context.Background(), zap.New(core))

	Log(ctx, "linking.rolled_back", logger.UserID("u-2"), logger.Phase("rolled_back"))

	require.Equal(t, 1, logs.FilterMessage("linking.rolled_back").Len())
	fields := logs.All()[0].ContextMap()
	require.Equal(t, "u-2", fields["user_id"])
	require.Equal(t, "rolled_back", fields["phase"])
}

func TestLogFallsBackToGlobalLogger(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	restore := logger.Replace(zap.New(core))
	defer restore()

	Log(context.Background(), "identity.signed_up", logger.UserID("u-3"))

	require.Equal(t, 1, logs.FilterMessage("identity.signed_up").Len())
}
