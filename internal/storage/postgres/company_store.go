// Package postgres provides the Postgres-backed company store.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/directory-crawler/internal/crawler"
)

const (
	defaultTable = "companies"
	// uniqueViolation is the SQLSTATE for unique_violation.
	uniqueViolation = "23505"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the Postgres connection pool used for company rows.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Close()
}

// CompanyStore writes company records into Postgres. The e-mail column carries
// a unique constraint, which is the only guard against concurrent duplicates.
type CompanyStore struct {
	pool  pool
	table string
}

// NewCompanyStore creates a Postgres-backed CompanyStore using the provided config.
func NewCompanyStore(ctx context.Context, cfg Config) (*CompanyStore, error) {
	if cfg.DSN == "" {
		return nil, errors.New("storage.postgres.dsn is required")
	}
	table, err := tableName(cfg.Table)
	if err != nil {
		return nil, err
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &CompanyStore{pool: p, table: table}, nil
}

// NewCompanyStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewCompanyStoreWithPool(p pool, table string) (*CompanyStore, error) {
	if p == nil {
		return nil, errors.New("pool is required")
	}
	name, err := tableName(table)
	if err != nil {
		return nil, err
	}
	return &CompanyStore{pool: p, table: name}, nil
}

func tableName(table string) (string, error) {
	if table == "" {
		return defaultTable, nil
	}
	if !validTableName.MatchString(table) {
		return "", fmt.Errorf("invalid table name %q", table)
	}
	return table, nil
}

// Close releases the underlying pool resources.
func (s *CompanyStore) Close() error {
	if s == nil || s.pool == nil {
		return nil
	}
	s.pool.Close()
	return nil
}

// EnsureSchema creates the company table when it does not exist.
func (s *CompanyStore) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	id BIGSERIAL PRIMARY KEY,
	company_url TEXT NOT NULL,
	company_name TEXT NOT NULL DEFAULT '',
	website TEXT NOT NULL DEFAULT '',
	email TEXT NOT NULL UNIQUE,
	phone TEXT NOT NULL DEFAULT '',
	rating_value TEXT NOT NULL DEFAULT '0',
	rating_count TEXT NOT NULL DEFAULT '0',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`, s.table)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create table %s: %w", s.table, err)
	}
	return nil
}

// Insert stores record. A unique violation on e-mail is reported as
// crawler.ErrDuplicateKey.
func (s *CompanyStore) Insert(ctx context.Context, record crawler.CompanyRecord) error {
	if record.Email == "" {
		return errors.New("record email is required")
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	company_url,
	company_name,
	website,
	email,
	phone,
	rating_value,
	rating_count
) VALUES ($1, $2, $3, $4, $5, $6, $7)`, s.table)

	_, err := s.pool.Exec(ctx, query,
		record.CompanyURL,
		record.CompanyName,
		record.Website,
		record.Email,
		record.Phone,
		record.RatingValue,
		record.RatingCount,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("email %q: %w", record.Email, crawler.ErrDuplicateKey)
		}
		return fmt.Errorf("insert company: %w", err)
	}
	return nil
}

// Exists reports whether a company with the e-mail is stored.
func (s *CompanyStore) Exists(ctx context.Context, email string) (bool, error) {
	query := fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE email = $1)`, s.table)
	var exists bool
	if err := s.pool.QueryRow(ctx, query, email).Scan(&exists); err != nil {
		return false, fmt.Errorf("lookup email: %w", err)
	}
	return exists, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
