package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Config es la configuración completa del servicio.
// Se carga de YAML y luego se aplican overrides de entorno (tags `env`).
type Config struct {
	App struct {
		// dev | prod
		Env string `yaml:"env" env:"APP_ENV"`
	} `yaml:"app"`

	Server struct {
		Addr               string   `yaml:"addr" env:"SERVER_ADDR"`
		CORSAllowedOrigins []string `yaml:"cors_allowed_origins" env:"SERVER_CORS_ALLOWED_ORIGINS" envSeparator:","`
		// FrontendURL es la base a la que redirige el callback (dashboard, pantalla de entrada).
		FrontendURL string `yaml:"frontend_url" env:"FRONTEND_URL"`
	} `yaml:"server"`

	Storage struct {
		// postgres | sqlite | mongo | memory
		Driver string `yaml:"driver" env:"STORAGE_DRIVER"`
		DSN    string `yaml:"dsn" env:"STORAGE_DSN"`
		Mongo  struct {
			Database string `yaml:"database" env:"STORAGE_MONGO_DATABASE"`
		} `yaml:"mongo"`
		Postgres struct {
			MaxOpenConns int32 `yaml:"max_open_conns" env:"STORAGE_PG_MAX_OPEN_CONNS"`
		} `yaml:"postgres"`
	} `yaml:"storage"`

	Cache struct {
		// memory | redis
		Kind  string `yaml:"kind" env:"CACHE_KIND"`
		Redis struct {
			Addr     string `yaml:"addr" env:"REDIS_ADDR"`
			Password string `yaml:"password" env:"REDIS_PASSWORD"`
			DB       int    `yaml:"db" env:"REDIS_DB"`
			Prefix   string `yaml:"prefix" env:"REDIS_PREFIX"`
		} `yaml:"redis"`
		Memory struct {
			DefaultTTL time.Duration `yaml:"default_ttl" env:"CACHE_MEMORY_DEFAULT_TTL"`
		} `yaml:"memory"`
	} `yaml:"cache"`

	Session struct {
		CookieName string        `yaml:"cookie_name" env:"SESSION_COOKIE_NAME"`
		Domain     string        `yaml:"domain" env:"SESSION_DOMAIN"`
		SameSite   string        `yaml:"samesite" env:"SESSION_SAMESITE"`
		Secure     bool          `yaml:"secure" env:"SESSION_SECURE"`
		TTL        time.Duration `yaml:"ttl" env:"SESSION_TTL"`
	} `yaml:"session"`

	// Marker es la cookie firmada que marca un registro en curso.
	Marker struct {
		CookieName string        `yaml:"cookie_name" env:"MARKER_COOKIE_NAME"`
		Secret     string        `yaml:"secret" env:"MARKER_SECRET"`
		TTL        time.Duration `yaml:"ttl" env:"MARKER_TTL"`
	} `yaml:"marker"`

	HuggingFace struct {
		ClientID     string   `yaml:"client_id" env:"HUGGINGFACE_CLIENT_ID"`
		ClientSecret string   `yaml:"client_secret" env:"HUGGINGFACE_CLIENT_SECRET"`
		RedirectURI  string   `yaml:"redirect_uri" env:"HUGGINGFACE_REDIRECT_URI"`
		Scopes       []string `yaml:"scopes" env:"HUGGINGFACE_SCOPES" envSeparator:" "`
		AuthorizeURL string   `yaml:"authorize_url" env:"HUGGINGFACE_AUTHORIZE_URL"`
		TokenURL     string   `yaml:"token_url" env:"HUGGINGFACE_TOKEN_URL"`
		UserInfoURL  string   `yaml:"userinfo_url" env:"HUGGINGFACE_USERINFO_URL"`
		InferenceURL string   `yaml:"inference_url" env:"HUGGINGFACE_INFERENCE_URL"`
		// Timeout por request contra el proveedor.
		Timeout time.Duration `yaml:"timeout" env:"HUGGINGFACE_TIMEOUT"`
	} `yaml:"huggingface"`

	Rate struct {
		Enabled bool `yaml:"enabled" env:"RATE_ENABLED"`
		Auth    struct {
			Limit  int           `yaml:"limit" env:"RATE_AUTH_LIMIT"`
			Window time.Duration `yaml:"window" env:"RATE_AUTH_WINDOW"`
		} `yaml:"auth"`
		Inference struct {
			Limit  int           `yaml:"limit" env:"RATE_INFERENCE_LIMIT"`
			Window time.Duration `yaml:"window" env:"RATE_INFERENCE_WINDOW"`
		} `yaml:"inference"`
	} `yaml:"rate"`

	Log struct {
		Env   string `yaml:"env" env:"LOG_ENV"`
		Level string `yaml:"level" env:"LOG_LEVEL"`
	} `yaml:"log"`

	Otel struct {
		// Vacío = tracing deshabilitado.
		Endpoint    string `yaml:"endpoint" env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
		ServiceName string `yaml:"service_name" env:"OTEL_SERVICE_NAME"`
	} `yaml:"otel"`
}

// Load lee el YAML (si path no está vacío), aplica overrides de entorno y defaults.
// Un archivo inexistente no es error: se arranca solo con env + defaults.
func Load(path string) (*Config, error) {
	var c Config
	if path != "" {
		b, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(b, &c); err != nil {
				return nil, fmt.Errorf("parse %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist):
			// sin archivo: env + defaults
		default:
			return nil, err
		}
	}

	if err := env.Parse(&c); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	c.applyDefaults()

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) applyDefaults() {
	if c.App.Env == "" {
		c.App.Env = "dev"
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Server.FrontendURL == "" {
		c.Server.FrontendURL = "http://localhost:5173"
	}
	c.Server.FrontendURL = strings.TrimRight(c.Server.FrontendURL, "/")

	if c.Storage.Driver == "" {
		c.Storage.Driver = "memory"
	}
	if c.Storage.Mongo.Database == "" {
		c.Storage.Mongo.Database = "momtrack"
	}
	if c.Cache.Kind == "" {
		c.Cache.Kind = "memory"
	}
	if c.Cache.Memory.DefaultTTL == 0 {
		c.Cache.Memory.DefaultTTL = 10 * time.Minute
	}

	if c.Session.CookieName == "" {
		c.Session.CookieName = "sid"
	}
	if c.Session.SameSite == "" {
		c.Session.SameSite = "Lax"
	}
	if c.Session.TTL == 0 {
		c.Session.TTL = 7 * 24 * time.Hour
	}

	if c.Marker.CookieName == "" {
		c.Marker.CookieName = "hf_reg"
	}
	if c.Marker.TTL == 0 {
		c.Marker.TTL = 15 * time.Minute
	}

	hf := &c.HuggingFace
	if hf.RedirectURI == "" {
		// mismo origen que la API, ruta fija del callback
		host := c.Server.Addr
		if strings.HasPrefix(host, ":") {
			host = "localhost" + host
		}
		hf.RedirectURI = "http://" + host + "/auth/huggingface/callback"
	}
	if len(hf.Scopes) == 0 {
		hf.Scopes = []string{"openid", "profile", "email"}
	}
	if hf.AuthorizeURL == "" {
		hf.AuthorizeURL = "https://huggingface.co/oauth/authorize"
	}
	if hf.TokenURL == "" {
		hf.TokenURL = "https://huggingface.co/oauth/token"
	}
	if hf.UserInfoURL == "" {
		hf.UserInfoURL = "https://huggingface.co/api/whoami-v2"
	}
	if hf.InferenceURL == "" {
		hf.InferenceURL = "https://api-inference.huggingface.co"
	}
	if hf.Timeout == 0 {
		hf.Timeout = 15 * time.Second
	}

	if c.Rate.Auth.Limit == 0 {
		c.Rate.Auth.Limit = 10
	}
	if c.Rate.Auth.Window == 0 {
		c.Rate.Auth.Window = time.Minute
	}
	if c.Rate.Inference.Limit == 0 {
		c.Rate.Inference.Limit = 30
	}
	if c.Rate.Inference.Window == 0 {
		c.Rate.Inference.Window = time.Minute
	}

	if c.Log.Env == "" {
		c.Log.Env = c.App.Env
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Otel.ServiceName == "" {
		c.Otel.ServiceName = "momtrack"
	}
}

// Validate rechaza configuración estructuralmente inválida.
// La ausencia de client id/secret de Hugging Face NO es error de arranque:
// se reporta por operación (ConfigurationError).
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case "memory":
	case "postgres", "sqlite", "mongo":
		if strings.TrimSpace(c.Storage.DSN) == "" {
			return fmt.Errorf("storage.dsn is required for driver %q", c.Storage.Driver)
		}
	default:
		return fmt.Errorf("unknown storage.driver %q", c.Storage.Driver)
	}

	switch c.Cache.Kind {
	case "memory":
	case "redis":
		if c.Cache.Redis.Addr == "" {
			return errors.New("cache.redis.addr is required when cache.kind=redis")
		}
	default:
		return fmt.Errorf("unknown cache.kind %q", c.Cache.Kind)
	}

	switch strings.ToLower(c.Session.SameSite) {
	case "lax", "strict", "none":
	default:
		return fmt.Errorf("invalid session.samesite %q", c.Session.SameSite)
	}

	if c.App.Env == "prod" && len(c.Marker.Secret) < 32 {
		return errors.New("marker.secret must be at least 32 bytes in prod")
	}

	for name, raw := range map[string]string{
		"server.frontend_url":       c.Server.FrontendURL,
		"huggingface.authorize_url": c.HuggingFace.AuthorizeURL,
		"huggingface.token_url":     c.HuggingFace.TokenURL,
		"huggingface.userinfo_url":  c.HuggingFace.UserInfoURL,
		"huggingface.inference_url": c.HuggingFace.InferenceURL,
	} {
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("%s must be an absolute URL, got %q", name, raw)
		}
	}
	return nil
}
