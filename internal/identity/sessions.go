package identity

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/dropDatabas3/momtrack/internal/cache"
	"github.com/dropDatabas3/momtrack/internal/observability/logger"
	"github.com/dropDatabas3/momtrack/internal/security/password"
	"github.com/dropDatabas3/momtrack/internal/security/token"
	"github.com/dropDatabas3/momtrack/internal/store"
)

// Cache key prefix de sesiones: sid:<sha256(token)>. El token en claro solo viaja en la cookie.
const cacheKeyPrefixSID = "sid:"

// Session es una sesión activa.
type Session struct {
	ID        string // token opaco (valor de la cookie)
	User      User
	ExpiresAt time.Time
}

type sessionPayload struct {
	UserID    string    `json:"user_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

func sessionKey(sid string) string {
	return cacheKeyPrefixSID + token.SHA256Base64URL(sid)
}

// SignIn valida credenciales y abre una sesión.
func (p *Provider) SignIn(ctx context.Context, email, plain string) (Session, error) {
	log := logger.From(ctx).With(logger.Layer("service"), logger.Op("Identity.SignIn"))

	acc, err := p.accounts.GetByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			log.Debug("unknown email", logger.Email(email))
			return Session{}, ErrInvalidCredentials
		}
		return Session{}, err
	}
	if !password.Verify(plain, acc.PasswordHash) {
		log.Debug("password mismatch", logger.UserID(acc.ID))
		return Session{}, ErrInvalidCredentials
	}

	s, err := p.openSession(ctx, toUser(acc))
	if err != nil {
		return Session{}, err
	}
	log.Info("signed in", logger.UserID(acc.ID))
	p.publish(ctx, Event{Kind: SignedIn, UserID: acc.ID})
	return s, nil
}

// StartSession abre una sesión para una cuenta ya autenticada (auto-login tras registro).
func (p *Provider) StartSession(ctx context.Context, u User) (Session, error) {
	s, err := p.openSession(ctx, u)
	if err != nil {
		return Session{}, err
	}
	p.publish(ctx, Event{Kind: SignedIn, UserID: u.ID})
	return s, nil
}

func (p *Provider) openSession(ctx context.Context, u User) (Session, error) {
	sid, err := token.GenerateOpaque(32)
	if err != nil {
		return Session{}, err
	}
	exp := p.now().Add(p.sessionTTL).UTC()
	b, _ := json.Marshal(sessionPayload{UserID: u.ID, ExpiresAt: exp})
	if err := p.sessions.Set(ctx, sessionKey(sid), string(b), p.sessionTTL); err != nil {
		return Session{}, err
	}
	return Session{ID: sid, User: u, ExpiresAt: exp}, nil
}

// Current resuelve la sesión. ErrNoSession si no existe, venció o la cuenta fue borrada.
func (p *Provider) Current(ctx context.Context, sid string) (Session, error) {
	if sid == "" {
		return Session{}, ErrNoSession
	}
	raw, err := p.sessions.Get(ctx, sessionKey(sid))
	if cache.IsNotFound(err) {
		return Session{}, ErrNoSession
	}
	if err != nil {
		return Session{}, err
	}

	var payload sessionPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		_ = p.sessions.Delete(ctx, sessionKey(sid))
		return Session{}, ErrNoSession
	}
	if p.now().After(payload.ExpiresAt) {
		_ = p.sessions.Delete(ctx, sessionKey(sid))
		return Session{}, ErrNoSession
	}

	u, err := p.Lookup(ctx, payload.UserID)
	if errors.Is(err, ErrNotFound) {
		_ = p.sessions.Delete(ctx, sessionKey(sid))
		return Session{}, ErrNoSession
	}
	if err != nil {
		return Session{}, err
	}
	return Session{ID: sid, User: u, ExpiresAt: payload.ExpiresAt}, nil
}

// SignOut cierra la sesión. Cerrar una sesión inexistente no es error.
func (p *Provider) SignOut(ctx context.Context, sid string) error {
	if sid == "" {
		return nil
	}
	var uid string
	if raw, err := p.sessions.Get(ctx, sessionKey(sid)); err == nil {
		var payload sessionPayload
		if json.Unmarshal([]byte(raw), &payload) == nil {
			uid = payload.UserID
		}
	}
	if err := p.sessions.Delete(ctx, sessionKey(sid)); err != nil {
		return err
	}
	if uid != "" {
		logger.From(ctx).Info("signed out", logger.Layer("service"), logger.Op("Identity.SignOut"), logger.UserID(uid))
		p.publish(ctx, Event{Kind: SignedOut, UserID: uid})
	}
	return nil
}
