// Package memory implementa store.Connection en memoria (dev y tests).
package memory

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/dropDatabas3/momtrack/internal/store"
)

func init() {
	store.RegisterAdapter(adapter{})
}

type adapter struct{}

func (adapter) Name() string { return "memory" }

func (adapter) Connect(context.Context, store.AdapterConfig) (store.Connection, error) {
	return New(), nil
}

// Conn guarda cuentas y documentos en maps protegidos por un mutex.
type Conn struct {
	mu       sync.RWMutex
	accounts map[string]store.Account // por id
	byEmail  map[string]string        // email -> id
	docs     map[string]map[string]any

	// FailWrites hace fallar Merge (tests de errores de persistencia).
	FailWrites error
}

// New crea una conexión vacía.
func New() *Conn {
	return &Conn{
		accounts: map[string]store.Account{},
		byEmail:  map[string]string{},
		docs:     map[string]map[string]any{},
	}
}

func (c *Conn) Name() string               { return "memory" }
func (c *Conn) Accounts() store.Accounts   { return (*accounts)(c) }
func (c *Conn) Documents() store.Documents { return (*documents)(c) }
func (c *Conn) Ping(context.Context) error { return nil }
func (c *Conn) Close() error               { return nil }

type accounts Conn

func (a *accounts) Create(_ context.Context, acc store.Account) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, dup := a.byEmail[acc.Email]; dup {
		return store.ErrConflict
	}
	if _, dup := a.accounts[acc.ID]; dup {
		return store.ErrConflict
	}
	a.accounts[acc.ID] = acc
	a.byEmail[acc.Email] = acc.ID
	return nil
}

func (a *accounts) GetByID(_ context.Context, id string) (store.Account, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	acc, ok := a.accounts[id]
	if !ok {
		return store.Account{}, store.ErrNotFound
	}
	return acc, nil
}

func (a *accounts) GetByEmail(_ context.Context, email string) (store.Account, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	id, ok := a.byEmail[email]
	if !ok {
		return store.Account{}, store.ErrNotFound
	}
	return a.accounts[id], nil
}

func (a *accounts) Delete(_ context.Context, id string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	acc, ok := a.accounts[id]
	if !ok {
		return store.ErrNotFound
	}
	delete(a.accounts, id)
	delete(a.byEmail, acc.Email)
	return nil
}

type documents Conn

func (d *documents) Merge(_ context.Context, id string, patch map[string]any) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.FailWrites != nil {
		return d.FailWrites
	}
	doc, ok := d.docs[id]
	if !ok {
		doc = map[string]any{}
		d.docs[id] = doc
	}
	for k, v := range patch {
		doc[k] = v
	}
	return nil
}

func (d *documents) Get(_ context.Context, id string) (json.RawMessage, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	doc, ok := d.docs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return json.Marshal(doc)
}

func (d *documents) Delete(_ context.Context, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.docs, id)
	return nil
}
