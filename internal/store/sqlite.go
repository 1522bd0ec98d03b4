package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/koustreak/dbconnector/internal/connection"
	"github.com/koustreak/dbconnector/internal/database"
	"github.com/koustreak/dbconnector/internal/errs"
	"github.com/pressly/goose/v3"

	_ "modernc.org/sqlite" // register "sqlite" driver
)

//go:embed migrations/*.sql
var migrations embed.FS

// SQLiteStore persists profiles in a local SQLite file.
type SQLiteStore struct {
	db     *sql.DB
	sealer *sealer
}

var _ connection.Store = (*SQLiteStore)(nil)

// OpenSQLite opens (creating if needed) the database at path and runs
// pending migrations. A non-empty secret seals passwords at rest.
func OpenSQLite(ctx context.Context, path, secret string) (*SQLiteStore, error) {
	if path == "" {
		return nil, errs.New(errs.ErrKindInvalidInput, "sqlite store path is required")
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindConnectionFailed, "failed to open sqlite store", err)
	}
	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, errs.Wrap(errs.ErrKindConnectionFailed, "failed to ping sqlite store", err)
	}

	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &SQLiteStore{db: db, sealer: newSealer(secret)}, nil
}

// migrate runs all pending migrations.
func migrate(db *sql.DB) error {
	goose.SetBaseFS(migrations)
	goose.SetLogger(goose.NopLogger())

	if err := goose.SetDialect("sqlite"); err != nil {
		return fmt.Errorf("failed to set dialect: %w", err)
	}

	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) List(ctx context.Context) ([]connection.Profile, error) {
	const q = `
		SELECT id, name, db_type, host, port, username, password, database_name
		FROM connections
		ORDER BY rowid`

	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindQueryFailed, "failed to list connections", err)
	}
	defer rows.Close()

	var out []connection.Profile
	for rows.Next() {
		p, err := s.scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.Wrap(errs.ErrKindQueryFailed, "failed to list connections", err)
	}
	return out, nil
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (connection.Profile, error) {
	const q = `
		SELECT id, name, db_type, host, port, username, password, database_name
		FROM connections
		WHERE id = ?`

	p, err := s.scan(s.db.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return connection.Profile{}, errs.Newf(errs.ErrKindNotFound, "Connection not found: %s", id)
	}
	return p, err
}

func (s *SQLiteStore) Save(ctx context.Context, p connection.Profile) error {
	if p.ID == "" {
		return errs.New(errs.ErrKindInvalidInput, "profile id is required")
	}

	password, err := s.sealer.seal(p.Password)
	if err != nil {
		return err
	}

	const q = `
		INSERT INTO connections (id, name, db_type, host, port, username, password, database_name)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name          = excluded.name,
			db_type       = excluded.db_type,
			host          = excluded.host,
			port          = excluded.port,
			username      = excluded.username,
			password      = excluded.password,
			database_name = excluded.database_name`

	_, err = s.db.ExecContext(ctx, q,
		p.ID, p.Name, string(p.DBType), p.Host, p.Port, p.Username, password, p.Database)
	if err != nil {
		return errs.Wrap(errs.ErrKindQueryFailed, "failed to save connection", err)
	}
	return nil
}

func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM connections WHERE id = ?`, id); err != nil {
		return errs.Wrap(errs.ErrKindQueryFailed, "failed to delete connection", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *SQLiteStore) scan(r rowScanner) (connection.Profile, error) {
	var (
		p      connection.Profile
		dbType string
		stored string
	)
	if err := r.Scan(&p.ID, &p.Name, &dbType, &p.Host, &p.Port, &p.Username, &stored, &p.Database); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return p, err
		}
		return p, errs.Wrap(errs.ErrKindQueryFailed, "failed to scan connection", err)
	}
	p.DBType = database.Driver(dbType)

	password, err := s.sealer.open(stored)
	if err != nil {
		return connection.Profile{}, err
	}
	p.Password = password
	return p, nil
}
