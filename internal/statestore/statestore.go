// Package statestore guarda el state CSRF del flujo OAuth.
//
// El state es de un solo uso y vale 5 minutos. Se escribe en un backend
// primario (durable) y, si esa escritura falla, solo el valor va al
// secundario (efímero). Toda validación consume el state en ambos backends,
// coincida o no. Los errores de storage nunca llegan al caller: un state que
// no se pudo leer simplemente no valida.
package statestore

import (
	"context"
	"crypto/subtle"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/dropDatabas3/momtrack/internal/cache"
	"github.com/dropDatabas3/momtrack/internal/observability/logger"
)

const (
	KeyState     = "hf_oauth_state"
	KeyTimestamp = "hf_oauth_state_timestamp"

	// Validity es la vida máxima de un state.
	Validity = 5 * time.Minute

	// los backends descartan solos un state abandonado poco después de expirar
	backendTTL = Validity + time.Minute
)

// Store persiste y valida states. Seguro para uso concurrente si los backends lo son.
type Store struct {
	durable   cache.Client
	ephemeral cache.Client
	now       func() time.Time
}

// Option configura un Store.
type Option func(*Store)

// WithClock reemplaza el reloj (tests).
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New crea un Store con el backend primario (durable) y el de fallback (ephemeral).
func New(durable, ephemeral cache.Client, opts ...Option) *Store {
	s := &Store{durable: durable, ephemeral: ephemeral, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

func key(scope, name string) string {
	if scope == "" {
		return name
	}
	return scope + ":" + name
}

// Store guarda state (y el instante actual en ms) para el flujo identificado por scope.
func (s *Store) Store(ctx context.Context, scope, state string) {
	log := logger.From(ctx).With(logger.Component("statestore"), logger.Op("Store"))

	ts := strconv.FormatInt(s.now().UnixMilli(), 10)
	err := s.durable.Set(ctx, key(scope, KeyState), state, backendTTL)
	if err == nil {
		err = s.durable.Set(ctx, key(scope, KeyTimestamp), ts, backendTTL)
	}
	if err == nil {
		return
	}

	log.Warn("durable backend write failed, falling back to ephemeral", logger.Err(err))
	// sin timestamp en el fallback: ese state no vence por edad, solo por TTL del backend
	if err := s.ephemeral.Set(ctx, key(scope, KeyState), state, backendTTL); err != nil {
		log.Error("ephemeral backend write failed, state not stored", logger.Err(err))
	}
}

// Validate consume el state guardado y reporta si coincide con candidate
// y tiene a lo sumo Validity de antigüedad.
func (s *Store) Validate(ctx context.Context, scope, candidate string) bool {
	log := logger.From(ctx).With(logger.Component("statestore"), logger.Op("Validate"))
	defer s.clear(ctx, scope)

	stored := s.read(ctx, log, s.durable, key(scope, KeyState))
	if stored == "" {
		stored = s.read(ctx, log, s.ephemeral, key(scope, KeyState))
	}

	if raw := s.read(ctx, log, s.durable, key(scope, KeyTimestamp)); raw != "" {
		if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
			if age := s.now().UnixMilli() - ms; age > Validity.Milliseconds() {
				log.Info("oauth state expired", logger.Int("age_ms", int(age)))
				return false
			}
		} else {
			log.Warn("unparseable state timestamp ignored", logger.Err(err))
		}
	}

	if stored == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(stored), []byte(candidate)) == 1
}

func (s *Store) read(ctx context.Context, log *zap.Logger, c cache.Client, k string) string {
	v, err := c.Get(ctx, k)
	if err != nil {
		if !cache.IsNotFound(err) {
			log.Warn("state backend read failed", logger.String("key", k), logger.Err(err))
		}
		return ""
	}
	return v
}

// clear borra state y timestamp de ambos backends.
func (s *Store) clear(ctx context.Context, scope string) {
	log := logger.From(ctx).With(logger.Component("statestore"), logger.Op("clear"))
	for _, c := range []cache.Client{s.durable, s.ephemeral} {
		for _, name := range []string{KeyState, KeyTimestamp} {
			if err := c.Delete(ctx, key(scope, name)); err != nil {
				log.Warn("state backend delete failed", logger.String("key", name), logger.Err(err))
			}
		}
	}
}
