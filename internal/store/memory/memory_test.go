package memory

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/momtrack/internal/store"
)

func TestDocuments_MergeKeepsUnrelatedFields(t *testing.T) {
	ctx := context.Background()
	docs := New().Documents()

	require.NoError(t, docs.Merge(ctx, "u1", map[string]any{"due_date": "2026-05-01", "huggingface_token": "a"}))
	require.NoError(t, docs.Merge(ctx, "u1", map[string]any{"huggingface_token": nil}))

	raw, err := docs.Get(ctx, "u1")
	require.NoError(t, err)
	var got map[string]any
	require.NoError(t, json.Unmarshal(raw, &got))
	require.Equal(t, "2026-05-01", got["due_date"])
	require.Nil(t, got["huggingface_token"])
}

func TestDocuments_GetMissing(t *testing.T) {
	_, err := New().Documents().Get(context.Background(), "nope")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestAccounts_Lifecycle(t *testing.T) {
	ctx := context.Background()
	accs := New().Accounts()
	a := store.Account{ID: "u1", Email: "mom@example.com", Name: "Mom", PasswordHash: "h", CreatedAt: time.Now()}

	require.NoError(t, accs.Create(ctx, a))
	require.ErrorIs(t, accs.Create(ctx, store.Account{ID: "u2", Email: a.Email}), store.ErrConflict)

	got, err := accs.GetByEmail(ctx, a.Email)
	require.NoError(t, err)
	require.Equal(t, "u1", got.ID)

	require.NoError(t, accs.Delete(ctx, "u1"))
	require.ErrorIs(t, accs.Delete(ctx, "u1"), store.ErrNotFound)
	_, err = accs.GetByID(ctx, "u1")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestOpenRegistered(t *testing.T) {
	conn, err := store.Open(context.Background(), store.AdapterConfig{Driver: "memory"})
	require.NoError(t, err)
	require.Equal(t, "memory", conn.Name())
}
