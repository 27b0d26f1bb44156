// Package huggingface implementa el cliente OAuth 2.0 contra Hugging Face:
// URL de autorización, canje de code, refresh, perfil del usuario y llamadas
// autenticadas a la API de inferencia.
//
// Los grants van por golang.org/x/oauth2 con las credenciales en el body
// (AuthStyleInParams). Perfil y API de inferencia son requests a mano.
package huggingface

import (
	"context"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/oauth2"
)

const (
	DefaultAuthorizeURL = "https://huggingface.co/oauth/authorize"
	DefaultTokenURL     = "https://huggingface.co/oauth/token"
	DefaultUserInfoURL  = "https://huggingface.co/api/whoami-v2"
	DefaultInferenceURL = "https://api-inference.huggingface.co"

	GrantAuthorizationCode = "authorization_code"
	GrantRefreshToken      = "refresh_token"
)

var DefaultScopes = []string{"openid", "profile", "email"}

// StateStore es lo que el cliente necesita del store de CSRF state.
type StateStore interface {
	Store(ctx context.Context, scope, state string)
	Validate(ctx context.Context, scope, candidate string) bool
}

// Config del cliente. Campos vacíos toman los defaults de Hugging Face.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	Scopes       []string

	AuthorizeURL string
	TokenURL     string
	UserInfoURL  string
	InferenceURL string

	// HTTPClient se usa para todas las llamadas (tests: httptest).
	HTTPClient *http.Client
}

// Client es el cliente OAuth de Hugging Face. Seguro para uso concurrente.
type Client struct {
	cfg    Config
	oauth  oauth2.Config
	states StateStore
	http   *http.Client
	tracer trace.Tracer
	now    func() time.Time
}

// Option configura un Client.
type Option func(*Client)

// WithClock reemplaza el reloj usado para calcular expiraciones absolutas.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// New crea el cliente. states puede ser nil solo si nunca se usa el flujo de autorización.
func New(cfg Config, states StateStore, opts ...Option) *Client {
	if cfg.AuthorizeURL == "" {
		cfg.AuthorizeURL = DefaultAuthorizeURL
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = DefaultTokenURL
	}
	if cfg.UserInfoURL == "" {
		cfg.UserInfoURL = DefaultUserInfoURL
	}
	if cfg.InferenceURL == "" {
		cfg.InferenceURL = DefaultInferenceURL
	}
	if len(cfg.Scopes) == 0 {
		cfg.Scopes = DefaultScopes
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 15 * time.Second}
	}

	c := &Client{
		cfg: cfg,
		oauth: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURI,
			Scopes:       cfg.Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   cfg.AuthorizeURL,
				TokenURL:  cfg.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		states: states,
		http:   hc,
		tracer: otel.Tracer("github.com/dropDatabas3/momtrack/internal/huggingface"),
		now:    time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Configured reporta si hay client id y secret.
func (c *Client) Configured() bool {
	return c.cfg.ClientID != "" && c.cfg.ClientSecret != ""
}

// oauthCtx inyecta nuestro http.Client para que x/oauth2 lo use.
func (c *Client) oauthCtx(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, c.http)
}

func (c *Client) requireCredentials() error {
	var missing []string
	if c.cfg.ClientID == "" {
		missing = append(missing, "client_id")
	}
	if c.cfg.ClientSecret == "" {
		missing = append(missing, "client_secret")
	}
	if len(missing) > 0 {
		return &ConfigurationError{Missing: missing}
	}
	return nil
}
