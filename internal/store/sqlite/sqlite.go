// Package sqlite implementa el adapter SQLite (modernc, sin cgo).
// Las migraciones se aplican al abrir.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	msqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/dropDatabas3/momtrack/internal/store"
	"github.com/dropDatabas3/momtrack/migrations"
)

func init() {
	store.RegisterAdapter(&sqliteAdapter{})
}

type sqliteAdapter struct{}

func (a *sqliteAdapter) Name() string { return "sqlite" }

func (a *sqliteAdapter) Connect(ctx context.Context, cfg store.AdapterConfig) (store.Connection, error) {
	return Open(ctx, cfg.DSN)
}

// Conn es una conexión SQLite.
type Conn struct {
	db *sql.DB
}

// Open abre (o crea) la base en path y aplica las migraciones embebidas.
func Open(ctx context.Context, path string) (*Conn, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlite: path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: ping: %w", err)
	}

	c := &Conn{db: db}
	if _, err := c.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: migrate: %w", err)
	}
	return c, nil
}

func (c *Conn) Name() string                   { return "sqlite" }
func (c *Conn) Accounts() store.Accounts       { return &accountRepo{db: c.db} }
func (c *Conn) Documents() store.Documents     { return &documentRepo{db: c.db} }
func (c *Conn) Ping(ctx context.Context) error { return c.db.PingContext(ctx) }
func (c *Conn) Close() error                   { return c.db.Close() }

// Migrate aplica las migraciones embebidas de sqlite. Es idempotente.
func (c *Conn) Migrate(ctx context.Context) (*store.MigrationResult, error) {
	return store.NewMigrator(migrations.FS, migrations.SQLiteDir, "sqlite").Run(ctx, c.db)
}

func toMillis(t time.Time) int64   { return t.UTC().UnixMilli() }
func fromMillis(v int64) time.Time { return time.UnixMilli(v).UTC() }

// ─── Accounts ───

type accountRepo struct{ db *sql.DB }

func (r *accountRepo) Create(ctx context.Context, a store.Account) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO accounts (id, email, name, password_hash, created_at) VALUES (?, ?, ?, ?, ?)`,
		a.ID, a.Email, a.Name, a.PasswordHash, toMillis(a.CreatedAt),
	)
	if isConstraintViolation(err) {
		return store.ErrConflict
	}
	return err
}

func (r *accountRepo) GetByID(ctx context.Context, id string) (store.Account, error) {
	return r.scanOne(ctx, `SELECT id, email, name, password_hash, created_at FROM accounts WHERE id = ?`, id)
}

func (r *accountRepo) GetByEmail(ctx context.Context, email string) (store.Account, error) {
	return r.scanOne(ctx, `SELECT id, email, name, password_hash, created_at FROM accounts WHERE email = ?`, email)
}

func (r *accountRepo) scanOne(ctx context.Context, q, arg string) (store.Account, error) {
	var (
		a       store.Account
		created int64
	)
	err := r.db.QueryRowContext(ctx, q, arg).Scan(&a.ID, &a.Email, &a.Name, &a.PasswordHash, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Account{}, store.ErrNotFound
	}
	if err != nil {
		return store.Account{}, err
	}
	a.CreatedAt = fromMillis(created)
	return a, nil
}

func (r *accountRepo) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM accounts WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

// ─── Documents ───

type documentRepo struct{ db *sql.DB }

// Merge usa json_patch (RFC 7396): claves con null se eliminan del documento.
func (r *documentRepo) Merge(ctx context.Context, id string, patch map[string]any) error {
	b, err := json.Marshal(patch)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO user_documents (id, doc, updated_at)
		VALUES (?1, json_patch('{}', ?2), ?3)
		ON CONFLICT (id) DO UPDATE
		SET doc = json_patch(user_documents.doc, ?2), updated_at = ?3`,
		id, string(b), toMillis(time.Now()),
	)
	return err
}

func (r *documentRepo) Get(ctx context.Context, id string) (json.RawMessage, error) {
	var doc string
	err := r.db.QueryRowContext(ctx, `SELECT doc FROM user_documents WHERE id = ?`, id).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return json.RawMessage(doc), nil
}

func (r *documentRepo) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM user_documents WHERE id = ?`, id)
	return err
}

func isConstraintViolation(err error) bool {
	var se *msqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code() {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return true
	}
	return false
}
