// Package router arma el árbol de rutas chi de la API.
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	authctrl "github.com/dropDatabas3/momtrack/internal/http/controllers/auth"
	healthctrl "github.com/dropDatabas3/momtrack/internal/http/controllers/health"
	hfctrl "github.com/dropDatabas3/momtrack/internal/http/controllers/huggingface"
	httperrors "github.com/dropDatabas3/momtrack/internal/http/errors"
	mw "github.com/dropDatabas3/momtrack/internal/http/middlewares"
	"github.com/dropDatabas3/momtrack/internal/rate"
)

// Deps contiene todo lo que el router necesita.
type Deps struct {
	Auth        *authctrl.Controller
	HuggingFace *hfctrl.Controller
	Health      *healthctrl.Controller

	Sessions      mw.SessionResolver
	SessionCookie string
	CORSOrigins   []string

	// Opcionales
	AuthLimiter      rate.Limiter
	InferenceLimiter rate.Limiter
	Metrics          http.Handler
}

// New devuelve el handler raíz.
func New(d Deps) http.Handler {
	r := chi.NewRouter()
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		httperrors.WriteError(w, httperrors.ErrNotFound)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		httperrors.WriteError(w, httperrors.ErrMethodNotAllowed)
	})

	// health y métricas: sin logging (muy frecuentes)
	r.Group(func(r chi.Router) {
		r.Use(mw.WithRecover(), mw.WithRequestID())
		r.Get("/readyz", d.Health.Readyz)
		if d.Metrics != nil {
			r.Method(http.MethodGet, "/metrics", d.Metrics)
		}
	})

	r.Group(func(r chi.Router) {
		r.Use(
			mw.WithRecover(),
			mw.WithRequestID(),
			mw.WithMetrics(),
			mw.WithLogging(),
			mw.WithSecurityHeaders(),
			mw.WithNoStore(),
		)

		// el callback lo navega el browser desde el proveedor: sin CORS
		r.Get("/auth/huggingface/callback", d.HuggingFace.Callback)

		r.Route("/api", func(r chi.Router) {
			r.Use(mw.WithCORS(d.CORSOrigins))
			requireSession := mw.RequireSession(d.Sessions, d.SessionCookie)

			r.Route("/auth", func(r chi.Router) {
				r.With(mw.WithRateLimit(mw.RateLimitConfig{Limiter: d.AuthLimiter})).Post("/register", d.Auth.Register)
				r.With(mw.WithRateLimit(mw.RateLimitConfig{Limiter: d.AuthLimiter})).Post("/login", d.Auth.Login)
				r.Post("/logout", d.Auth.Logout)
				r.With(requireSession).Get("/me", d.Auth.Me)
			})

			r.Route("/huggingface", func(r chi.Router) {
				r.Get("/connect", d.HuggingFace.Connect)

				r.Group(func(r chi.Router) {
					r.Use(requireSession)
					r.Get("/status", d.HuggingFace.Status)
					r.Delete("/connection", d.HuggingFace.Disconnect)
					r.Get("/whoami", d.HuggingFace.WhoAmI)
					r.With(mw.WithRateLimit(mw.RateLimitConfig{
						Limiter: d.InferenceLimiter,
						KeyFunc: mw.SessionRateKey,
					})).Post("/inference/*", d.HuggingFace.Inference)
				})
			})
		})
	})
	return r
}
