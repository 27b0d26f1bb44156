package linking

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/momtrack/internal/cache"
	"github.com/dropDatabas3/momtrack/internal/identity"
)

type validatorStub struct {
	valid atomic.Bool
	calls atomic.Int32
}

func (v *validatorStub) IsValid(context.Context, string) bool {
	v.calls.Add(1)
	return v.valid.Load()
}

type subscriberStub struct{ fn identity.Listener }

func (s *subscriberStub) Subscribe(fn identity.Listener) func() {
	s.fn = fn
	return func() { s.fn = nil }
}

func TestTracker_StatusCaches(t *testing.T) {
	ctx := context.Background()
	v := &validatorStub{}
	v.valid.Store(true)
	tr := NewTracker(v, cache.NewMemory("", time.Minute), time.Minute)

	require.True(t, tr.Status(ctx, "u1"))
	require.True(t, tr.Status(ctx, "u1"))
	require.EqualValues(t, 1, v.calls.Load())

	v.valid.Store(false)
	require.False(t, tr.Refresh(ctx, "u1"))
	require.False(t, tr.Status(ctx, "u1"))
}

func TestTracker_FollowsIdentityEvents(t *testing.T) {
	ctx := context.Background()
	v := &validatorStub{}
	v.valid.Store(true)
	sub := &subscriberStub{}
	tr := NewTracker(v, cache.NewMemory("", time.Minute), time.Minute)
	detach := tr.Attach(sub)

	sub.fn(ctx, identity.Event{Kind: identity.SignedIn, UserID: "u1"})
	require.EqualValues(t, 1, v.calls.Load())

	sub.fn(ctx, identity.Event{Kind: identity.SignedOut, UserID: "u1"})
	require.True(t, tr.Status(ctx, "u1"))
	require.EqualValues(t, 2, v.calls.Load())

	detach()
	require.Nil(t, sub.fn)
}
