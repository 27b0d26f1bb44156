package sqlite

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/momtrack/internal/store"
)

func openTemp(t *testing.T) *Conn {
	t.Helper()
	c, err := Open(context.Background(), filepath.Join(t.TempDir(), "momtrack.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestMigrate_Idempotent(t *testing.T) {
	c := openTemp(t)
	res, err := c.Migrate(context.Background())
	require.NoError(t, err)
	require.Empty(t, res.Applied)
	require.Equal(t, []int{1}, res.Skipped)
}

func TestDocuments_MergePatch(t *testing.T) {
	ctx := context.Background()
	docs := openTemp(t).Documents()

	_, err := docs.Get(ctx, "u1")
	require.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, docs.Merge(ctx, "u1", map[string]any{"due_date": "2026-05-01", "huggingface_token": "a"}))
	require.NoError(t, docs.Merge(ctx, "u1", map[string]any{"huggingface_token": "b", "huggingface_expires_at": int64(1700000000000)}))
	require.NoError(t, docs.Merge(ctx, "u1", map[string]any{"huggingface_expires_at": nil}))

	raw, err := docs.Get(ctx, "u1")
	require.NoError(t, err)
	var got map[string]any
	require.NoError(t, json.Unmarshal(raw, &got))
	require.Equal(t, "2026-05-01", got["due_date"])
	require.Equal(t, "b", got["huggingface_token"])
	require.Nil(t, got["huggingface_expires_at"])

	require.NoError(t, docs.Delete(ctx, "u1"))
	require.NoError(t, docs.Delete(ctx, "u1"))
	_, err = docs.Get(ctx, "u1")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestAccounts(t *testing.T) {
	ctx := context.Background()
	accs := openTemp(t).Accounts()
	created := time.UnixMilli(1_700_000_000_123).UTC()

	a := store.Account{ID: "u1", Email: "mom@example.com", Name: "Mom", PasswordHash: "h", CreatedAt: created}
	require.NoError(t, accs.Create(ctx, a))
	require.ErrorIs(t, accs.Create(ctx, store.Account{ID: "u2", Email: "mom@example.com", PasswordHash: "h"}), store.ErrConflict)

	got, err := accs.GetByID(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, a, got)

	require.NoError(t, accs.Delete(ctx, "u1"))
	require.ErrorIs(t, accs.Delete(ctx, "u1"), store.ErrNotFound)
	_, err = accs.GetByEmail(ctx, "mom@example.com")
	require.ErrorIs(t, err, store.ErrNotFound)
}
