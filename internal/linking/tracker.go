package linking

import (
	"context"
	"strconv"
	"time"

	"github.com/dropDatabas3/momtrack/internal/cache"
	"github.com/dropDatabas3/momtrack/internal/identity"
	"github.com/dropDatabas3/momtrack/internal/observability/logger"
)

const trackerKeyPrefix = "hf_connected:"

// Validator responde si el usuario tiene un token utilizable.
type Validator interface {
	IsValid(ctx context.Context, uid string) bool
}

// Tracker es el read model del flag "Hugging Face conectado" que consume el
// banner del dashboard. Se recalcula en login, tras un link exitoso y tras
// un disconnect; en logout/baja se descarta.
type Tracker struct {
	v     Validator
	cache cache.Client
	ttl   time.Duration
}

func NewTracker(v Validator, c cache.Client, ttl time.Duration) *Tracker {
	return &Tracker{v: v, cache: c, ttl: ttl}
}

// Attach suscribe el tracker a los eventos de identidad.
func (t *Tracker) Attach(p interface {
	Subscribe(identity.Listener) func()
}) (detach func()) {
	return p.Subscribe(func(ctx context.Context, e identity.Event) {
		switch e.Kind {
		case identity.SignedIn:
			t.Refresh(ctx, e.UserID)
		case identity.SignedOut, identity.Deleted:
			t.Forget(ctx, e.UserID)
		}
	})
}

// Status devuelve el flag cacheado o lo evalúa.
func (t *Tracker) Status(ctx context.Context, uid string) bool {
	if raw, err := t.cache.Get(ctx, trackerKeyPrefix+uid); err == nil {
		if b, perr := strconv.ParseBool(raw); perr == nil {
			return b
		}
	}
	return t.Refresh(ctx, uid)
}

// Refresh fuerza la re-evaluación y cachea el resultado.
func (t *Tracker) Refresh(ctx context.Context, uid string) bool {
	ok := t.v.IsValid(ctx, uid)
	if err := t.cache.Set(ctx, trackerKeyPrefix+uid, strconv.FormatBool(ok), t.ttl); err != nil {
		logger.From(ctx).Warn("connection flag cache write failed",
			logger.Component("tracker"), logger.UserID(uid), logger.Err(err))
	}
	return ok
}

// Forget descarta el flag cacheado.
func (t *Tracker) Forget(ctx context.Context, uid string) {
	_ = t.cache.Delete(ctx, trackerKeyPrefix+uid)
}
