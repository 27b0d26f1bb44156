// Package identity es el identity provider de la aplicación: alta de cuentas,
// login con sesión opaca, logout, baja de cuenta y notificaciones de cambio
// de identidad para quien necesite reaccionar (connection tracker).
package identity

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dropDatabas3/momtrack/internal/cache"
	"github.com/dropDatabas3/momtrack/internal/observability/logger"
	"github.com/dropDatabas3/momtrack/internal/security/password"
	"github.com/dropDatabas3/momtrack/internal/store"
)

var (
	ErrEmailTaken         = errors.New("identity: email already registered")
	ErrInvalidCredentials = errors.New("identity: invalid credentials")
	ErrNoSession          = errors.New("identity: no active session")
	ErrNotFound           = errors.New("identity: account not found")
)

// User es la vista pública de una cuenta.
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Deps contiene las dependencias del Provider.
type Deps struct {
	Accounts   store.Accounts
	Documents  store.Documents
	Sessions   cache.Client
	SessionTTL time.Duration
	// HashParams default password.Default.
	HashParams *password.Params
	Now        func() time.Time
}

// Provider implementa el identity provider. Seguro para uso concurrente.
type Provider struct {
	accounts   store.Accounts
	docs       store.Documents
	sessions   cache.Client
	sessionTTL time.Duration
	hash       password.Params
	now        func() time.Time

	subMu  sync.RWMutex
	subs   map[int]Listener
	nextID int
}

// New crea el Provider.
func New(d Deps) *Provider {
	p := &Provider{
		accounts:   d.Accounts,
		docs:       d.Documents,
		sessions:   d.Sessions,
		sessionTTL: d.SessionTTL,
		hash:       password.Default,
		now:        d.Now,
		subs:       map[int]Listener{},
	}
	if d.HashParams != nil {
		p.hash = *d.HashParams
	}
	if p.now == nil {
		p.now = time.Now
	}
	if p.sessionTTL <= 0 {
		p.sessionTTL = 7 * 24 * time.Hour
	}
	return p
}

// NormalizeEmail aplica la normalización usada como clave de cuenta.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func toUser(a store.Account) User {
	return User{ID: a.ID, Email: a.Email, Name: a.Name, CreatedAt: a.CreatedAt}
}

// SignUp crea una cuenta nueva. No inicia sesión.
func (p *Provider) SignUp(ctx context.Context, email, plain, name string) (User, error) {
	log := logger.From(ctx).With(logger.Layer("service"), logger.Op("Identity.SignUp"))

	hash, err := password.Hash(p.hash, plain)
	if err != nil {
		return User{}, err
	}
	acc := store.Account{
		ID:           uuid.NewString(),
		Email:        NormalizeEmail(email),
		Name:         strings.TrimSpace(name),
		PasswordHash: hash,
		CreatedAt:    p.now().UTC(),
	}
	if err := p.accounts.Create(ctx, acc); err != nil {
		if errors.Is(err, store.ErrConflict) {
			log.Info("email already registered", logger.Email(acc.Email))
			return User{}, ErrEmailTaken
		}
		log.Error("account create failed", logger.Err(err))
		return User{}, err
	}

	u := toUser(acc)
	log.Info("account created", logger.UserID(u.ID))
	p.publish(ctx, Event{Kind: SignedUp, UserID: u.ID})
	return u, nil
}

// DeleteIdentity borra la cuenta y su documento. Las sesiones abiertas de
// la cuenta dejan de resolver en Current. ErrNotFound si ya no existe.
func (p *Provider) DeleteIdentity(ctx context.Context, uid string) error {
	log := logger.From(ctx).With(logger.Layer("service"), logger.Op("Identity.DeleteIdentity"), logger.UserID(uid))

	if err := p.accounts.Delete(ctx, uid); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotFound
		}
		log.Error("account delete failed", logger.Err(err))
		return err
	}
	if err := p.docs.Delete(ctx, uid); err != nil {
		// la cuenta ya no existe; el documento huérfano no es accesible
		log.Warn("user document delete failed", logger.Err(err))
	}

	log.Info("account deleted")
	p.publish(ctx, Event{Kind: Deleted, UserID: uid})
	return nil
}

// Lookup devuelve la cuenta por id.
func (p *Provider) Lookup(ctx context.Context, uid string) (User, error) {
	acc, err := p.accounts.GetByID(ctx, uid)
	if errors.Is(err, store.ErrNotFound) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, err
	}
	return toUser(acc), nil
}
