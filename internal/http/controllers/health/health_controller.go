// Package health contiene el controller para health checks.
package health

import (
	"context"
	"net/http"
	"time"

	"github.com/dropDatabas3/momtrack/internal/http/helpers"
	"github.com/dropDatabas3/momtrack/internal/observability/logger"
)

// Pinger es un componente con health check (store, cache).
type Pinger interface {
	Ping(ctx context.Context) error
}

// Response es el cuerpo de /readyz.
type Response struct {
	Status     string            `json:"status"` // ready | unavailable
	Version    string            `json:"version,omitempty"`
	Components map[string]string `json:"components"`
}

// Controller maneja /readyz.
type Controller struct {
	version    string
	components map[string]Pinger
}

func NewController(version string, components map[string]Pinger) *Controller {
	return &Controller{version: version, components: components}
}

// Readyz maneja GET /readyz
func (c *Controller) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	resp := Response{Status: "ready", Version: c.version, Components: map[string]string{}}
	for name, p := range c.components {
		if err := p.Ping(ctx); err != nil {
			resp.Components[name] = "down"
			resp.Status = "unavailable"
			logger.From(ctx).Warn("component unhealthy", logger.Layer("controller"), logger.Component(name), logger.Err(err))
			continue
		}
		resp.Components[name] = "up"
	}

	if c.version != "" {
		w.Header().Set("X-Service-Version", c.version)
	}
	status := http.StatusOK
	if resp.Status != "ready" {
		status = http.StatusServiceUnavailable
	}
	helpers.WriteJSON(w, status, resp)
}
