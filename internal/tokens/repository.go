// Package tokens persiste el token de Hugging Face de cada usuario como
// campos huggingface_* del documento del usuario (siempre con merge-patch).
//
// Load refresca en línea un token vencido si hay refresh token; cualquier
// falla de ese refresh degrada a "sin token" en lugar de propagarse.
package tokens

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/dropDatabas3/momtrack/internal/huggingface"
	"github.com/dropDatabas3/momtrack/internal/observability/logger"
	"github.com/dropDatabas3/momtrack/internal/store"
)

// Campos del documento.
const (
	FieldToken        = "huggingface_token"
	FieldTokenType    = "huggingface_token_type"
	FieldExpiresAt    = "huggingface_expires_at" // unix ms
	FieldRefreshToken = "huggingface_refresh_token"
	FieldScope        = "huggingface_scope"
	FieldConnectedAt  = "huggingface_connected_at" // RFC3339
	FieldUpdatedAt    = "updated_at"               // RFC3339
)

// Refresher obtiene un token nuevo a partir de un refresh token.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (*huggingface.Token, error)
}

// PersistenceError es una falla de lectura/escritura del document store.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string { return fmt.Sprintf("tokens: %s: %v", e.Op, e.Err) }
func (e *PersistenceError) Unwrap() error { return e.Err }

// Repository implementa save/load/isValid/clear del token por usuario.
type Repository struct {
	docs      store.Documents
	refresher Refresher
	now       func() time.Time
	refreshes singleflight.Group
}

// Option configura un Repository.
type Option func(*Repository)

// WithClock reemplaza el reloj (tests).
func WithClock(now func() time.Time) Option {
	return func(r *Repository) { r.now = now }
}

func New(docs store.Documents, refresher Refresher, opts ...Option) *Repository {
	r := &Repository{docs: docs, refresher: refresher, now: time.Now}
	for _, o := range opts {
		o(r)
	}
	return r
}

// record es la vista tipada de los campos huggingface_* del documento.
type record struct {
	Token        *string  `json:"huggingface_token"`
	TokenType    *string  `json:"huggingface_token_type"`
	ExpiresAt    *float64 `json:"huggingface_expires_at"`
	RefreshToken *string  `json:"huggingface_refresh_token"`
	Scope        *string  `json:"huggingface_scope"`
}

func (rec record) token() *huggingface.Token {
	t := &huggingface.Token{TokenType: "Bearer"}
	if rec.Token != nil {
		t.AccessToken = *rec.Token
	}
	if rec.TokenType != nil && *rec.TokenType != "" {
		t.TokenType = *rec.TokenType
	}
	if rec.ExpiresAt != nil {
		t.ExpiresAt = time.UnixMilli(int64(*rec.ExpiresAt))
	}
	if rec.RefreshToken != nil {
		t.RefreshToken = *rec.RefreshToken
	}
	if rec.Scope != nil {
		t.Scope = *rec.Scope
	}
	return t
}

// nullable convierte "" en nil para que el campo se escriba como null.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// Save escribe el token sobre el documento de uid sin tocar otros campos.
func (r *Repository) Save(ctx context.Context, uid string, tok *huggingface.Token) error {
	now := r.now().UTC().Format(time.RFC3339)

	tokenType := tok.TokenType
	if tokenType == "" {
		tokenType = "Bearer"
	}
	var expiresAt any
	if !tok.ExpiresAt.IsZero() {
		expiresAt = tok.ExpiresAt.UnixMilli()
	}

	patch := map[string]any{
		FieldToken:        tok.AccessToken,
		FieldTokenType:    tokenType,
		FieldExpiresAt:    expiresAt,
		FieldRefreshToken: nullable(tok.RefreshToken),
		FieldScope:        nullable(tok.Scope),
		FieldConnectedAt:  now,
		FieldUpdatedAt:    now,
	}
	if err := r.docs.Merge(ctx, uid, patch); err != nil {
		return &PersistenceError{Op: "save", Err: err}
	}
	logger.From(ctx).Debug("huggingface token saved",
		logger.Layer("repository"), logger.Op("tokens.Save"), logger.UserID(uid))
	return nil
}

// Load devuelve el token vigente de uid, o nil si no hay uno utilizable.
func (r *Repository) Load(ctx context.Context, uid string) (*huggingface.Token, error) {
	log := logger.From(ctx).With(logger.Layer("repository"), logger.Op("tokens.Load"), logger.UserID(uid))

	raw, err := r.docs.Get(ctx, uid)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, &PersistenceError{Op: "load", Err: err}
	}

	var rec record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, &PersistenceError{Op: "decode", Err: err}
	}
	if rec.Token == nil || *rec.Token == "" {
		return nil, nil
	}

	tok := rec.token()
	if !tok.Expired(r.now()) {
		return tok, nil
	}
	if tok.RefreshToken == "" {
		log.Info("stored token expired without refresh token")
		return nil, nil
	}

	// Loads concurrentes del mismo usuario comparten un único refresh.
	v, err, _ := r.refreshes.Do(uid, func() (any, error) {
		// el ctx del primer caller no debe cancelar a los demás
		fctx := context.WithoutCancel(ctx)
		fresh, err := r.refresher.Refresh(fctx, tok.RefreshToken)
		if err != nil {
			return nil, err
		}
		if err := r.Save(fctx, uid, fresh); err != nil {
			return nil, err
		}
		return fresh, nil
	})
	if err != nil {
		log.Warn("expired token could not be refreshed", logger.Err(err))
		return nil, nil
	}
	log.Info("expired token refreshed")
	return v.(*huggingface.Token), nil
}

// IsValid reporta si uid tiene un token utilizable.
func (r *Repository) IsValid(ctx context.Context, uid string) bool {
	tok, err := r.Load(ctx, uid)
	if err != nil {
		logger.From(ctx).Warn("token validity check failed",
			logger.Layer("repository"), logger.Op("tokens.IsValid"), logger.UserID(uid), logger.Err(err))
		return false
	}
	return tok != nil && tok.AccessToken != ""
}

// Clear anula todos los campos del token. Idempotente.
func (r *Repository) Clear(ctx context.Context, uid string) error {
	patch := map[string]any{
		FieldToken:        nil,
		FieldTokenType:    nil,
		FieldExpiresAt:    nil,
		FieldRefreshToken: nil,
		FieldScope:        nil,
		FieldConnectedAt:  nil,
		FieldUpdatedAt:    r.now().UTC().Format(time.RFC3339),
	}
	if err := r.docs.Merge(ctx, uid, patch); err != nil {
		return &PersistenceError{Op: "clear", Err: err}
	}
	logger.From(ctx).Info("huggingface token cleared",
		logger.Layer("repository"), logger.Op("tokens.Clear"), logger.UserID(uid))
	return nil
}
