package mongo

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/momtrack/internal/store"
)

// Requiere un mongod real: MOMTRACK_TEST_MONGO_URI=mongodb://localhost:27017
func connect(t *testing.T) store.Connection {
	t.Helper()
	uri := os.Getenv("MOMTRACK_TEST_MONGO_URI")
	if uri == "" {
		t.Skip("MOMTRACK_TEST_MONGO_URI not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	conn, err := (&mongoAdapter{}).Connect(ctx, store.AdapterConfig{DSN: uri, Database: "momtrack_test"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestMongo_DocumentsMerge(t *testing.T) {
	conn := connect(t)
	ctx := context.Background()
	id := uuid.NewString()
	docs := conn.Documents()
	t.Cleanup(func() { _ = docs.Delete(ctx, id) })

	require.NoError(t, docs.Merge(ctx, id, map[string]any{"due_date": "2026-05-01", "huggingface_token": "a"}))
	require.NoError(t, docs.Merge(ctx, id, map[string]any{"huggingface_token": nil}))

	raw, err := docs.Get(ctx, id)
	require.NoError(t, err)
	var got map[string]any
	require.NoError(t, json.Unmarshal(raw, &got))
	require.Equal(t, "2026-05-01", got["due_date"])
	require.Nil(t, got["huggingface_token"])
}

func TestMongo_AccountsConflict(t *testing.T) {
	conn := connect(t)
	ctx := context.Background()
	email := uuid.NewString() + "@example.com"
	a := store.Account{ID: uuid.NewString(), Email: email, PasswordHash: "h", CreatedAt: time.Now()}
	t.Cleanup(func() { _ = conn.Accounts().Delete(ctx, a.ID) })

	require.NoError(t, conn.Accounts().Create(ctx, a))
	require.ErrorIs(t, conn.Accounts().Create(ctx, store.Account{ID: uuid.NewString(), Email: email}), store.ErrConflict)
}
