// Package pg implementa el adapter PostgreSQL.
// Usa pgxpool para los repositorios y database/sql (pgx stdlib) solo para migrar.
package pg

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/dropDatabas3/momtrack/internal/store"
	"github.com/dropDatabas3/momtrack/migrations"
)

func init() {
	store.RegisterAdapter(&postgresAdapter{})
}

type postgresAdapter struct{}

func (a *postgresAdapter) Name() string { return "postgres" }

func (a *postgresAdapter) Connect(ctx context.Context, cfg store.AdapterConfig) (store.Connection, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("pg: parse dsn: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		poolCfg.MaxConns = cfg.MaxOpenConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("pg: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pg: ping: %w", err)
	}
	return &Conn{pool: pool}, nil
}

// Conn es una conexión PostgreSQL.
type Conn struct {
	pool *pgxpool.Pool
}

func (c *Conn) Name() string                   { return "postgres" }
func (c *Conn) Accounts() store.Accounts       { return &accountRepo{pool: c.pool} }
func (c *Conn) Documents() store.Documents     { return &documentRepo{pool: c.pool} }
func (c *Conn) Ping(ctx context.Context) error { return c.pool.Ping(ctx) }
func (c *Conn) Close() error                   { c.pool.Close(); return nil }

// Pool expone el pool (métricas).
func (c *Conn) Pool() *pgxpool.Pool { return c.pool }

// Migrate aplica las migraciones embebidas de postgres.
func (c *Conn) Migrate(ctx context.Context) (*store.MigrationResult, error) {
	db := stdlib.OpenDBFromPool(c.pool)
	defer db.Close()
	return store.NewMigrator(migrations.FS, migrations.PostgresDir, "postgres").Run(ctx, db)
}

// ─── Accounts ───

type accountRepo struct{ pool *pgxpool.Pool }

func (r *accountRepo) Create(ctx context.Context, a store.Account) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO accounts (id, email, name, password_hash, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		a.ID, a.Email, a.Name, a.PasswordHash, a.CreatedAt,
	)
	if isUniqueViolation(err) {
		return store.ErrConflict
	}
	return err
}

func (r *accountRepo) GetByID(ctx context.Context, id string) (store.Account, error) {
	return r.scanOne(ctx, `SELECT id, email, name, password_hash, created_at FROM accounts WHERE id = $1`, id)
}

func (r *accountRepo) GetByEmail(ctx context.Context, email string) (store.Account, error) {
	return r.scanOne(ctx, `SELECT id, email, name, password_hash, created_at FROM accounts WHERE email = $1`, email)
}

func (r *accountRepo) scanOne(ctx context.Context, q string, arg string) (store.Account, error) {
	var a store.Account
	err := r.pool.QueryRow(ctx, q, arg).Scan(&a.ID, &a.Email, &a.Name, &a.PasswordHash, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return store.Account{}, store.ErrNotFound
	}
	return a, err
}

func (r *accountRepo) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM accounts WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// ─── Documents ───

type documentRepo struct{ pool *pgxpool.Pool }

// Merge hace un upsert con `doc || patch` (merge superficial de jsonb).
func (r *documentRepo) Merge(ctx context.Context, id string, patch map[string]any) error {
	b, err := json.Marshal(patch)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO user_documents (id, doc, updated_at)
		VALUES ($1, $2::jsonb, NOW())
		ON CONFLICT (id) DO UPDATE
		SET doc = user_documents.doc || EXCLUDED.doc, updated_at = NOW()`,
		id, string(b),
	)
	return err
}

func (r *documentRepo) Get(ctx context.Context, id string) (json.RawMessage, error) {
	var raw []byte
	err := r.pool.QueryRow(ctx, `SELECT doc FROM user_documents WHERE id = $1`, id).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return json.RawMessage(raw), nil
}

func (r *documentRepo) Delete(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM user_documents WHERE id = $1`, id)
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
