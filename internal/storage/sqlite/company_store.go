// Package sqlite provides a file-backed company store using the pure-Go SQLite
// driver.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/JakeFAU/directory-crawler/internal/crawler"
)

// Config controls the SQLite database file.
type Config struct {
	Path string
}

// CompanyStore persists company records in a SQLite table with a unique
// e-mail column.
type CompanyStore struct {
	db *sql.DB
}

// NewCompanyStore opens (or creates) the database file and ensures the schema.
func NewCompanyStore(ctx context.Context, cfg Config) (*CompanyStore, error) {
	if cfg.Path == "" {
		return nil, errors.New("storage.sqlite.path is required")
	}
	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", cfg.Path+"?mode=rwc&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	store := &CompanyStore{db: db}
	if err := store.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// EnsureSchema creates the company table when it does not exist.
func (s *CompanyStore) EnsureSchema(ctx context.Context) error {
	const schema = `
CREATE TABLE IF NOT EXISTS companies (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	company_url TEXT NOT NULL,
	company_name TEXT NOT NULL DEFAULT '',
	website TEXT NOT NULL DEFAULT '',
	email TEXT NOT NULL UNIQUE,
	phone TEXT NOT NULL DEFAULT '',
	rating_value TEXT NOT NULL DEFAULT '0',
	rating_count TEXT NOT NULL DEFAULT '0',
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_companies_url ON companies(company_url);`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create companies table: %w", err)
	}
	return nil
}

// Insert stores record. An existing e-mail is reported as
// crawler.ErrDuplicateKey.
func (s *CompanyStore) Insert(ctx context.Context, record crawler.CompanyRecord) error {
	if record.Email == "" {
		return errors.New("record email is required")
	}
	res, err := s.db.ExecContext(ctx, `
INSERT INTO companies (company_url, company_name, website, email, phone, rating_value, rating_count)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(email) DO NOTHING`,
		record.CompanyURL,
		record.CompanyName,
		record.Website,
		record.Email,
		record.Phone,
		record.RatingValue,
		record.RatingCount,
	)
	if err != nil {
		return fmt.Errorf("insert company: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("insert company rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("email %q: %w", record.Email, crawler.ErrDuplicateKey)
	}
	return nil
}

// Exists reports whether a company with the e-mail is stored.
func (s *CompanyStore) Exists(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM companies WHERE email = ?)`, email).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("lookup email: %w", err)
	}
	return exists, nil
}

// Count returns the number of stored companies.
func (s *CompanyStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM companies`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count companies: %w", err)
	}
	return n, nil
}

// Get returns the company stored under email, or sql.ErrNoRows.
func (s *CompanyStore) Get(ctx context.Context, email string) (crawler.CompanyRecord, error) {
	var r crawler.CompanyRecord
	err := s.db.QueryRowContext(ctx, `
SELECT company_url, company_name, website, email, phone, rating_value, rating_count
FROM companies WHERE email = ?`, email).Scan(
		&r.CompanyURL, &r.CompanyName, &r.Website, &r.Email, &r.Phone, &r.RatingValue, &r.RatingCount,
	)
	if err != nil {
		return crawler.CompanyRecord{}, fmt.Errorf("get company: %w", err)
	}
	return r, nil
}

// Close closes the database connection.
func (s *CompanyStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close sqlite: %w", err)
	}
	return nil
}
