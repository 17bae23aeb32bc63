package session

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	// SQLite driver (pure Go, no CGO required)
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// SQLiteBackend stores the session mirror in a local SQLite file so that it
// survives process restarts. Writes of all entries share one transaction.
type SQLiteBackend struct {
	db  *sql.DB
	now func() time.Time
}

// SQLiteConfig holds connection settings for [OpenSQLiteBackend].
type SQLiteConfig struct {
	// Path is the database file path.
	Path string
	// BusyTimeout is how long to wait for locks.
	BusyTimeout time.Duration
}

// OpenSQLiteBackend applies pending migrations and opens the database at cfg.Path.
func OpenSQLiteBackend(cfg SQLiteConfig) (*SQLiteBackend, error) {
	if cfg.Path == "" {
		return nil, errors.New("sqlite path is required")
	}
	if cfg.BusyTimeout <= 0 {
		cfg.BusyTimeout = 5 * time.Second
	}

	if err := migrateUp(cfg); err != nil {
		return nil, err
	}

	db, err := openSQLite(cfg)
	if err != nil {
		return nil, err
	}

	return &SQLiteBackend{db: db, now: time.Now}, nil
}

func openSQLite(cfg SQLiteConfig) (*sql.DB, error) {
	db, err := sql.Open("sqlite", sqliteDSN(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

// sqliteDSN carries the pragmas in the DSN so every pooled connection gets them.
func sqliteDSN(cfg SQLiteConfig) string {
	q := url.Values{}
	q.Add("_pragma", "journal_mode(WAL)")
	q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", cfg.BusyTimeout.Milliseconds()))
	return "file:" + cfg.Path + "?" + q.Encode()
}

// migrateUp uses its own connection; the migrate driver closes it.
func migrateUp(cfg SQLiteConfig) error {
	db, err := openSQLite(cfg)
	if err != nil {
		return err
	}

	driver, err := migratesqlite.WithInstance(db, &migratesqlite.Config{DatabaseName: "main"})
	if err != nil {
		db.Close()
		return fmt.Errorf("failed to create sqlite driver: %w", err)
	}

	src, err := iofs.New(migrationFS, "migrations")
	if err != nil {
		driver.Close()
		return fmt.Errorf("failed to open embedded migrations: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		driver.Close()
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	return nil
}

// Get treats rows whose TTL has elapsed as missing and deletes every
// elapsed row it comes across.
func (b *SQLiteBackend) Get(ctx context.Context, key string) (string, bool, error) {
	var (
		value     string
		expiresAt int64
	)
	err := b.db.QueryRowContext(ctx,
		`SELECT value, expires_at FROM credential_entries WHERE key = ?`, key,
	).Scan(&value, &expiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if now := b.now().UnixMilli(); expiresAt > 0 && expiresAt <= now {
		if err := b.purgeExpired(ctx, now); err != nil {
			return "", false, err
		}
		return "", false, nil
	}
	return value, true, nil
}

func (b *SQLiteBackend) purgeExpired(ctx context.Context, nowMillis int64) error {
	if _, err := b.db.ExecContext(ctx,
		`DELETE FROM credential_entries WHERE expires_at > 0 AND expires_at <= ?`, nowMillis,
	); err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return nil
}

// SetAll upserts every entry inside one transaction.
func (b *SQLiteBackend) SetAll(ctx context.Context, entries map[string]string, ttl time.Duration) error {
	now := b.now()
	var expiresAt int64
	if ttl > 0 {
		expiresAt = now.Add(ttl).UnixMilli()
	}

	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM credential_entries WHERE expires_at > 0 AND expires_at <= ?`, now.UnixMilli(),
	); err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	for k, v := range entries {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO credential_entries (key, value, expires_at, updated_at)
			 VALUES (?, ?, ?, ?)
			 ON CONFLICT(key) DO UPDATE SET
			   value = excluded.value,
			   expires_at = excluded.expires_at,
			   updated_at = excluded.updated_at`,
			k, v, expiresAt, now.UnixMilli(),
		); err != nil {
			return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return nil
}

// DeleteAll removes keys inside one transaction.
func (b *SQLiteBackend) DeleteAll(ctx context.Context, keys ...string) error {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	defer tx.Rollback()

	for _, k := range keys {
		if _, err := tx.ExecContext(ctx, `DELETE FROM credential_entries WHERE key = ?`, k); err != nil {
			return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return nil
}

// DB exposes the underlying handle for diagnostics and tests.
func (b *SQLiteBackend) DB() *sql.DB {
	return b.db
}

// Close closes the database.
func (b *SQLiteBackend) Close() error {
	if b == nil || b.db == nil {
		return nil
	}
	return b.db.Close()
}
