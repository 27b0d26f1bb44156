package tokens

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/momtrack/internal/huggingface"
	"github.com/dropDatabas3/momtrack/internal/store/memory"
)

var now = time.UnixMilli(1_700_000_000_000)

type fakeRefresher struct {
	calls int32
	next  *huggingface.Token
	err   error
	delay time.Duration
}

func (f *fakeRefresher) Refresh(_ context.Context, rt string) (*huggingface.Token, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.err != nil {
		return nil, f.err
	}
	out := *f.next
	return &out, nil
}

func newRepo(t *testing.T, ref *fakeRefresher) (*Repository, *memory.Conn) {
	t.Helper()
	conn := memory.New()
	if ref == nil {
		ref = &fakeRefresher{err: errors.New("unexpected refresh")}
	}
	return New(conn.Documents(), ref, WithClock(func() time.Time { return now })), conn
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	ctx := context.Background()
	repo, _ := newRepo(t, nil)

	cases := map[string]*huggingface.Token{
		"future expiry": {
			AccessToken:  "hf_a",
			TokenType:    "Bearer",
			ExpiresAt:    time.UnixMilli(now.UnixMilli() + 3_600_000),
			RefreshToken: "hf_r",
			Scope:        "openid profile",
		},
		"no expiry": {AccessToken: "hf_b", TokenType: "bearer"},
	}
	for name, tok := range cases {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, repo.Save(ctx, name, tok))
			got, err := repo.Load(ctx, name)
			require.NoError(t, err)
			require.Equal(t, tok, got)
		})
	}
}

func TestSave_MergeKeepsOtherFields(t *testing.T) {
	ctx := context.Background()
	repo, conn := newRepo(t, nil)
	require.NoError(t, conn.Documents().Merge(ctx, "u1", map[string]any{"due_date": "2026-05-01"}))

	require.NoError(t, repo.Save(ctx, "u1", &huggingface.Token{AccessToken: "hf_a"}))

	raw, err := conn.Documents().Get(ctx, "u1")
	require.NoError(t, err)
	var doc map[string]any
	require.NoError(t, json.Unmarshal(raw, &doc))
	require.Equal(t, "2026-05-01", doc["due_date"])
	require.Equal(t, "hf_a", doc[FieldToken])
	require.Equal(t, "Bearer", doc[FieldTokenType])
	require.Nil(t, doc[FieldRefreshToken])
	require.Equal(t, now.UTC().Format(time.RFC3339), doc[FieldConnectedAt])
	require.Equal(t, now.UTC().Format(time.RFC3339), doc[FieldUpdatedAt])
}

func TestLoad_MissingDocument(t *testing.T) {
	repo, _ := newRepo(t, nil)
	got, err := repo.Load(context.Background(), "ghost")
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestLoad_ExpiredRefreshesOnceAndPersists(t *testing.T) {
	ctx := context.Background()
	fresh := &huggingface.Token{
		AccessToken:  "hf_new",
		TokenType:    "Bearer",
		ExpiresAt:    time.UnixMilli(now.UnixMilli() + 7_200_000),
		RefreshToken: "hf_r2",
	}
	ref := &fakeRefresher{next: fresh}
	repo, _ := newRepo(t, ref)

	require.NoError(t, repo.Save(ctx, "u1", &huggingface.Token{
		AccessToken:  "hf_old",
		ExpiresAt:    time.UnixMilli(now.UnixMilli() - 1),
		RefreshToken: "hf_r1",
	}))

	got, err := repo.Load(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, "hf_new", got.AccessToken)
	require.EqualValues(t, 1, atomic.LoadInt32(&ref.calls))

	again, err := repo.Load(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, fresh.ExpiresAt, again.ExpiresAt)
	require.Equal(t, "hf_r2", again.RefreshToken)
	require.EqualValues(t, 1, atomic.LoadInt32(&ref.calls), "persisted token must not refresh again")
}

func TestLoad_ConcurrentExpiredCollapseIntoOneRefresh(t *testing.T) {
	ctx := context.Background()
	ref := &fakeRefresher{
		next:  &huggingface.Token{AccessToken: "hf_new", ExpiresAt: time.UnixMilli(now.UnixMilli() + 60_000)},
		delay: 50 * time.Millisecond,
	}
	repo, _ := newRepo(t, ref)
	require.NoError(t, repo.Save(ctx, "u1", &huggingface.Token{
		AccessToken: "hf_old", ExpiresAt: time.UnixMilli(now.UnixMilli() - 1), RefreshToken: "hf_r",
	}))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tok, err := repo.Load(ctx, "u1")
			require.NoError(t, err)
			require.Equal(t, "hf_new", tok.AccessToken)
		}()
	}
	wg.Wait()
	require.EqualValues(t, 1, atomic.LoadInt32(&ref.calls))
}

func TestLoad_ExpiredWithoutRefreshToken(t *testing.T) {
	ctx := context.Background()
	repo, _ := newRepo(t, nil)
	require.NoError(t, repo.Save(ctx, "u1", &huggingface.Token{
		AccessToken: "hf_old", ExpiresAt: time.UnixMilli(now.UnixMilli() - 1),
	}))

	got, err := repo.Load(ctx, "u1")
	require.NoError(t, err)
	require.Nil(t, got)
	require.False(t, repo.IsValid(ctx, "u1"))
}

func TestLoad_RefreshFailureIsSwallowed(t *testing.T) {
	ctx := context.Background()
	ref := &fakeRefresher{err: &huggingface.TokenExchangeError{Grant: huggingface.GrantRefreshToken, Status: 400, Code: "invalid_grant"}}
	repo, _ := newRepo(t, ref)
	require.NoError(t, repo.Save(ctx, "u1", &huggingface.Token{
		AccessToken: "hf_old", ExpiresAt: time.UnixMilli(now.UnixMilli() - 1), RefreshToken: "hf_r",
	}))

	got, err := repo.Load(ctx, "u1")
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestClear_ThenLoadIsAbsent(t *testing.T) {
	ctx := context.Background()
	repo, _ := newRepo(t, nil)
	require.NoError(t, repo.Save(ctx, "u1", &huggingface.Token{AccessToken: "hf_a", RefreshToken: "hf_r"}))
	require.True(t, repo.IsValid(ctx, "u1"))

	require.NoError(t, repo.Clear(ctx, "u1"))
	require.NoError(t, repo.Clear(ctx, "u1"))

	got, err := repo.Load(ctx, "u1")
	require.NoError(t, err)
	require.Nil(t, got)
	require.False(t, repo.IsValid(ctx, "u1"))
}

func TestSave_PersistenceError(t *testing.T) {
	repo, conn := newRepo(t, nil)
	conn.FailWrites = errors.New("disk full")

	err := repo.Save(context.Background(), "u1", &huggingface.Token{AccessToken: "hf_a"})
	var pErr *PersistenceError
	require.ErrorAs(t, err, &pErr)
	require.Equal(t, "save", pErr.Op)
}
