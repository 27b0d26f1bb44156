// Package app cablea config, store, cache, servicios y router en un handler listo para servir.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dropDatabas3/momtrack/internal/audit"
	"github.com/dropDatabas3/momtrack/internal/cache"
	"github.com/dropDatabas3/momtrack/internal/config"
	authctrl "github.com/dropDatabas3/momtrack/internal/http/controllers/auth"
	healthctrl "github.com/dropDatabas3/momtrack/internal/http/controllers/health"
	hfctrl "github.com/dropDatabas3/momtrack/internal/http/controllers/huggingface"
	"github.com/dropDatabas3/momtrack/internal/http/helpers"
	mw "github.com/dropDatabas3/momtrack/internal/http/middlewares"
	"github.com/dropDatabas3/momtrack/internal/http/router"
	"github.com/dropDatabas3/momtrack/internal/huggingface"
	"github.com/dropDatabas3/momtrack/internal/identity"
	"github.com/dropDatabas3/momtrack/internal/linking"
	"github.com/dropDatabas3/momtrack/internal/metrics"
	"github.com/dropDatabas3/momtrack/internal/observability/logger"
	"github.com/dropDatabas3/momtrack/internal/rate"
	"github.com/dropDatabas3/momtrack/internal/security/token"
	"github.com/dropDatabas3/momtrack/internal/statestore"
	"github.com/dropDatabas3/momtrack/internal/store"
	"github.com/dropDatabas3/momtrack/internal/tokens"

	// Adapters se registran vía init()
	_ "github.com/dropDatabas3/momtrack/internal/store/memory"
	_ "github.com/dropDatabas3/momtrack/internal/store/mongo"
	_ "github.com/dropDatabas3/momtrack/internal/store/pg"
	_ "github.com/dropDatabas3/momtrack/internal/store/sqlite"
)

// connectionFlagTTL acota cuánto vive el flag cacheado del tracker.
const connectionFlagTTL = 5 * time.Minute

// App es la aplicación cableada.
type App struct {
	Handler http.Handler

	Store    store.Connection
	Identity *identity.Provider
	Tokens   *tokens.Repository
	Tracker  *linking.Tracker
	Linker   *linking.Linker
	OAuth    *huggingface.Client

	closers []func() error
}

// OpenStore conecta el store configurado.
func OpenStore(ctx context.Context, cfg *config.Config) (store.Connection, error) {
	return store.Open(ctx, store.AdapterConfig{
		Driver:       cfg.Storage.Driver,
		DSN:          cfg.Storage.DSN,
		Database:     cfg.Storage.Mongo.Database,
		MaxOpenConns: cfg.Storage.Postgres.MaxOpenConns,
	})
}

// Migrate aplica las migraciones embebidas si el backend las tiene.
// Devuelve nil, nil para backends sin esquema (memory, mongo).
func Migrate(ctx context.Context, conn store.Connection) (*store.MigrationResult, error) {
	m, ok := conn.(store.Migratable)
	if !ok {
		return nil, nil
	}
	res, err := m.Migrate(ctx)
	if err != nil {
		return nil, fmt.Errorf("migrate %s: %w", conn.Name(), err)
	}
	return res, nil
}

// New construye la App completa. version se expone en /readyz.
func New(ctx context.Context, cfg *config.Config, version string) (*App, error) {
	log := logger.From(ctx).With(logger.Component("app"))
	a := &App{}

	conn, err := OpenStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.Store = conn
	a.closers = append(a.closers, conn.Close)

	if res, err := Migrate(ctx, conn); err != nil {
		_ = a.Close()
		return nil, err
	} else if res != nil {
		log.Info("migrations applied", logger.String("driver", conn.Name()),
			logger.Int("applied", len(res.Applied)), logger.Int("skipped", len(res.Skipped)))
	}

	// durable: sesiones, CSRF state, flags. ephemeral: fallback del state.
	durable, err := cache.New(ctx, cache.Config{
		Kind:       cfg.Cache.Kind,
		Addr:       cfg.Cache.Redis.Addr,
		Password:   cfg.Cache.Redis.Password,
		DB:         cfg.Cache.Redis.DB,
		Prefix:     cfg.Cache.Redis.Prefix,
		DefaultTTL: cfg.Cache.Memory.DefaultTTL,
	})
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.closers = append(a.closers, durable.Close)
	ephemeral := cache.NewMemory("ephemeral", cfg.Cache.Memory.DefaultTTL)
	a.closers = append(a.closers, ephemeral.Close)

	states := statestore.New(durable, ephemeral)

	hc := cfg.HuggingFace
	a.OAuth = huggingface.New(huggingface.Config{
		ClientID:     hc.ClientID,
		ClientSecret: hc.ClientSecret,
		RedirectURI:  hc.RedirectURI,
		Scopes:       hc.Scopes,
		AuthorizeURL: hc.AuthorizeURL,
		TokenURL:     hc.TokenURL,
		UserInfoURL:  hc.UserInfoURL,
		InferenceURL: hc.InferenceURL,
		HTTPClient:   &http.Client{Timeout: hc.Timeout},
	}, states)
	if !a.OAuth.Configured() {
		log.Warn("huggingface client id/secret not configured; linking will report a configuration error")
	}

	a.Tokens = tokens.New(conn.Documents(), a.OAuth)
	a.Identity = identity.New(identity.Deps{
		Accounts:   conn.Accounts(),
		Documents:  conn.Documents(),
		Sessions:   durable,
		SessionTTL: cfg.Session.TTL,
	})
	a.Tracker = linking.NewTracker(a.Tokens, durable, connectionFlagTTL)
	a.Tracker.Attach(a.Identity)
	a.Identity.Subscribe(audit.IdentityListener())

	secret := []byte(cfg.Marker.Secret)
	if len(secret) == 0 {
		// dev: secreto efímero, los markers no sobreviven un reinicio
		s, err := token.GenerateOpaque(32)
		if err != nil {
			_ = a.Close()
			return nil, err
		}
		secret = []byte(s)
		log.Warn("marker secret not configured; using an ephemeral one")
	}
	markers := linking.NewMarkerCodec(secret, cfg.Marker.TTL)

	a.Linker = linking.New(linking.Deps{
		Identity:    a.Identity,
		OAuth:       a.OAuth,
		Tokens:      a.Tokens,
		Tracker:     a.Tracker,
		Markers:     markers,
		FrontendURL: cfg.Server.FrontendURL,
	})

	metricsHandler, err := a.registerMetrics(conn)
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	sessionCookie := helpers.CookieConfig{
		Name:     cfg.Session.CookieName,
		Domain:   cfg.Session.Domain,
		SameSite: helpers.ParseSameSite(cfg.Session.SameSite),
		Secure:   cfg.Session.Secure,
		TTL:      cfg.Session.TTL,
	}
	markerCookie := sessionCookie
	markerCookie.Name = cfg.Marker.CookieName
	markerCookie.TTL = cfg.Marker.TTL

	authLimiter, inferenceLimiter := limiters(cfg, durable)

	a.Handler = router.New(router.Deps{
		Auth: authctrl.NewController(authctrl.Deps{
			Identity:      a.Identity,
			Registrar:     a.Linker,
			Connections:   a.Tracker,
			SessionCookie: sessionCookie,
			MarkerCookie:  markerCookie,
		}),
		HuggingFace: hfctrl.NewController(hfctrl.Deps{
			Linker:        a.Linker,
			Tokens:        a.Tokens,
			Connections:   a.Tracker,
			API:           a.OAuth,
			SessionCookie: sessionCookie,
			MarkerCookie:  markerCookie,
			FrontendURL:   cfg.Server.FrontendURL,
		}),
		Health: healthctrl.NewController(version, map[string]healthctrl.Pinger{
			"store": conn,
			"cache": durable,
		}),
		Sessions:         a.Identity,
		SessionCookie:    cfg.Session.CookieName,
		CORSOrigins:      corsOrigins(cfg),
		AuthLimiter:      authLimiter,
		InferenceLimiter: inferenceLimiter,
		Metrics:          metricsHandler,
	})
	return a, nil
}

func (a *App) registerMetrics(conn store.Connection) (http.Handler, error) {
	if err := mw.RegisterMetrics(prometheus.DefaultRegisterer); err != nil {
		return nil, err
	}
	if err := metrics.RegisterDomain(prometheus.DefaultRegisterer); err != nil {
		return nil, err
	}
	if p, ok := conn.(interface{ Pool() *pgxpool.Pool }); ok {
		if err := prometheus.Register(metrics.NewPoolCollector(p.Pool)); err != nil {
			var already prometheus.AlreadyRegisteredError
			if !errors.As(err, &already) {
				return nil, err
			}
		}
	}
	return promhttp.Handler(), nil
}

// limiters elige el backend del rate limiter: redis si la cache es redis
// (compartido entre réplicas), si no en memoria.
func limiters(cfg *config.Config, durable cache.Client) (auth, inference rate.Limiter) {
	if !cfg.Rate.Enabled {
		return nil, nil
	}
	rl := cfg.Rate
	if rc, ok := durable.(*cache.RedisClient); ok {
		return rate.NewRedisLimiter(rc.Raw(), "rl:auth:", rl.Auth.Limit, rl.Auth.Window),
			rate.NewRedisLimiter(rc.Raw(), "rl:inference:", rl.Inference.Limit, rl.Inference.Window)
	}
	return rate.NewMemoryLimiter("rl:auth:", rl.Auth.Limit, rl.Auth.Window),
		rate.NewMemoryLimiter("rl:inference:", rl.Inference.Limit, rl.Inference.Window)
}

func corsOrigins(cfg *config.Config) []string {
	if len(cfg.Server.CORSAllowedOrigins) > 0 {
		return cfg.Server.CORSAllowedOrigins
	}
	return []string{cfg.Server.FrontendURL}
}

// Disconnect borra el link de un usuario (uso operativo desde el CLI).
func (a *App) Disconnect(ctx context.Context, uid string) error {
	if _, err := a.Identity.Lookup(ctx, uid); err != nil {
		return err
	}
	if err := a.Tokens.Clear(ctx, uid); err != nil {
		return err
	}
	a.Tracker.Refresh(ctx, uid)
	return nil
}

// Close libera recursos en orden inverso de apertura.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
