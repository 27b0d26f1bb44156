package huggingface

import (
	"context"
	"errors"
	"net"
	"net/url"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/oauth2"

	"github.com/dropDatabas3/momtrack/internal/metrics"
	"github.com/dropDatabas3/momtrack/internal/observability/logger"
	"github.com/dropDatabas3/momtrack/internal/security/token"
)

// BuildAuthorizationURL genera un state nuevo, lo persiste bajo scope y
// devuelve la URL de autorización. Sin client id falla sin tocar el storage.
func (c *Client) BuildAuthorizationURL(ctx context.Context, scope string) (string, error) {
	if c.cfg.ClientID == "" {
		return "", &ConfigurationError{Missing: []string{"client_id"}}
	}

	state, err := token.GenerateOpaque(32)
	if err != nil {
		return "", err
	}
	c.states.Store(ctx, scope, state)

	// AuthCodeURL agrega response_type=code, client_id, redirect_uri, scope y state
	return c.oauth.AuthCodeURL(state), nil
}

// ExchangeCode valida el state y canjea el code por un Token.
func (c *Client) ExchangeCode(ctx context.Context, scope, code, state string) (*Token, error) {
	ctx, span := c.tracer.Start(ctx, "huggingface.ExchangeCode",
		trace.WithAttributes(attribute.String("oauth.grant", GrantAuthorizationCode)))
	defer span.End()
	log := logger.From(ctx).With(logger.Component("huggingface"), logger.Op("ExchangeCode"))

	if !c.states.Validate(ctx, scope, state) {
		err := &SecurityError{}
		span.SetStatus(codes.Error, "state_invalid")
		log.Warn("oauth state rejected")
		return nil, err
	}
	if err := c.requireCredentials(); err != nil {
		metrics.TokenExchanges.WithLabelValues(GrantAuthorizationCode, "config_error").Inc()
		span.SetStatus(codes.Error, "config_missing")
		return nil, err
	}

	tok, err := c.oauth.Exchange(c.oauthCtx(ctx), code)
	if err != nil {
		err = c.classify(GrantAuthorizationCode, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "exchange_failed")
		log.Warn("code exchange failed", logger.Err(err))
		return nil, err
	}
	metrics.TokenExchanges.WithLabelValues(GrantAuthorizationCode, "ok").Inc()
	return c.fromOAuth2(tok), nil
}

// Refresh obtiene un Token nuevo con un refresh token.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*Token, error) {
	ctx, span := c.tracer.Start(ctx, "huggingface.Refresh",
		trace.WithAttributes(attribute.String("oauth.grant", GrantRefreshToken)))
	defer span.End()
	log := logger.From(ctx).With(logger.Component("huggingface"), logger.Op("Refresh"))

	if err := c.requireCredentials(); err != nil {
		metrics.TokenExchanges.WithLabelValues(GrantRefreshToken, "config_error").Inc()
		span.SetStatus(codes.Error, "config_missing")
		return nil, err
	}

	// Un token vencido sin access token fuerza al TokenSource a usar el grant refresh_token.
	expired := &oauth2.Token{RefreshToken: refreshToken, Expiry: time.Unix(1, 0)}
	tok, err := c.oauth.TokenSource(c.oauthCtx(ctx), expired).Token()
	if err != nil {
		err = c.classify(GrantRefreshToken, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "refresh_failed")
		log.Warn("token refresh failed", logger.Err(err))
		return nil, err
	}
	metrics.TokenExchanges.WithLabelValues(GrantRefreshToken, "ok").Inc()
	return c.fromOAuth2(tok), nil
}

// classify traduce los errores de x/oauth2 a la taxonomía del paquete.
func (c *Client) classify(grant string, err error) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		metrics.TokenExchanges.WithLabelValues(grant, "provider_error").Inc()
		status := 0
		if re.Response != nil {
			status = re.Response.StatusCode
		}
		return &TokenExchangeError{
			Grant:       grant,
			Status:      status,
			Code:        re.ErrorCode,
			Description: re.ErrorDescription,
			Err:         err,
		}
	}
	if isTransport(err) {
		metrics.TokenExchanges.WithLabelValues(grant, "network_error").Inc()
		return &NetworkError{Op: grant, Err: err}
	}
	// 2xx sin access_token o cuerpo ilegible
	metrics.TokenExchanges.WithLabelValues(grant, "provider_error").Inc()
	return &TokenExchangeError{Grant: grant, Err: err}
}

func isTransport(err error) bool {
	var ue *url.Error
	var ne net.Error
	return errors.As(err, &ue) || errors.As(err, &ne) ||
		errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
}

// fromOAuth2 convierte la respuesta a Token. La expiración se recalcula desde
// expires_in con nuestro reloj (precisión ms) para que sea absoluta y estable.
func (c *Client) fromOAuth2(t *oauth2.Token) *Token {
	out := &Token{
		AccessToken:  t.AccessToken,
		TokenType:    t.TokenType,
		RefreshToken: t.RefreshToken,
	}
	if out.TokenType == "" {
		out.TokenType = "Bearer"
	}
	if s, ok := t.Extra("scope").(string); ok {
		out.Scope = s
	}
	if secs, ok := expiresIn(t); ok && secs > 0 {
		out.ExpiresAt = time.UnixMilli(c.now().UnixMilli() + secs*1000)
	} else if !t.Expiry.IsZero() {
		out.ExpiresAt = time.UnixMilli(t.Expiry.UnixMilli())
	}
	return out
}

func expiresIn(t *oauth2.Token) (int64, bool) {
	switch v := t.Extra("expires_in").(type) {
	case float64:
		return int64(v), true
	case int64:
		return v, true
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		return n, err == nil
	}
	return 0, false
}
