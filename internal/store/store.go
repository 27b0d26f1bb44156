// Package store define la persistencia del servicio y el registry de adapters.
//
// Dos repositorios:
//   - Accounts: cuentas de la aplicación (identity provider).
//   - Documents: un documento JSON por usuario al que solo se le aplican
//     merge-patches. Un patch nunca borra campos que no nombra.
//
// Adapters: postgres (pgx, jsonb), sqlite (modernc, json_patch), mongo ($set)
// y memory. Cada adapter se registra en init(); el binario los importa con _.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

var (
	ErrNotFound = errors.New("store: not found")
	ErrConflict = errors.New("store: conflict")
)

// Account es una cuenta de la aplicación.
type Account struct {
	ID           string
	Email        string
	Name         string
	PasswordHash string
	CreatedAt    time.Time
}

// Accounts persiste cuentas. El email ya viene normalizado (lowercase).
type Accounts interface {
	// Create falla con ErrConflict si el email ya existe.
	Create(ctx context.Context, a Account) error
	GetByID(ctx context.Context, id string) (Account, error)
	GetByEmail(ctx context.Context, email string) (Account, error)
	// Delete falla con ErrNotFound si la cuenta no existe.
	Delete(ctx context.Context, id string) error
}

// Documents persiste un documento JSON por id con escritura merge-patch.
type Documents interface {
	// Merge aplica patch sobre el documento, creándolo si no existe.
	// Claves con valor nil se anulan (según el backend: null o ausente).
	Merge(ctx context.Context, id string, patch map[string]any) error
	// Get devuelve el documento como JSON o ErrNotFound.
	Get(ctx context.Context, id string) (json.RawMessage, error)
	// Delete borra el documento. Borrar uno inexistente no es error.
	Delete(ctx context.Context, id string) error
}

// Connection es una conexión abierta a un backend.
type Connection interface {
	Name() string
	Accounts() Accounts
	Documents() Documents
	Ping(ctx context.Context) error
	Close() error
}

// Migratable lo implementan las conexiones SQL.
type Migratable interface {
	Migrate(ctx context.Context) (*MigrationResult, error)
}

// AdapterConfig configuración para conectar a un backend.
type AdapterConfig struct {
	// Driver: "postgres", "sqlite", "mongo", "memory"
	Driver string
	DSN    string
	// Database (mongo)
	Database     string
	MaxOpenConns int32
}

// Adapter crea conexiones para un driver.
type Adapter interface {
	Name() string
	Connect(ctx context.Context, cfg AdapterConfig) (Connection, error)
}

var (
	registryMu sync.RWMutex
	registry   = map[string]Adapter{}
)

// RegisterAdapter registra un adapter. Llamar desde init().
func RegisterAdapter(a Adapter) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, dup := registry[a.Name()]; dup {
		panic("store: adapter registered twice: " + a.Name())
	}
	registry[a.Name()] = a
}

// Adapters lista los drivers registrados.
func Adapters() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	out := make([]string, 0, len(registry))
	for name := range registry {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Open conecta con el driver configurado.
func Open(ctx context.Context, cfg AdapterConfig) (Connection, error) {
	registryMu.RLock()
	a, ok := registry[cfg.Driver]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("store: unknown driver %q (registered: %v)", cfg.Driver, Adapters())
	}
	return a.Connect(ctx, cfg)
}
