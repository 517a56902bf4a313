package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/rcliao/call-screen/internal/model"
	"github.com/rcliao/call-screen/internal/phone"
)

// SchemaVersion is the caller_info layout this package reads and writes.
// Databases stamped with any other version are dropped and recreated.
const SchemaVersion = 1

// SQLiteStore implements Reputation using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens or creates a SQLite database at the given path.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect db: %w", err)
	}

	s := &SQLiteStore{db: db}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) migrate() error {
	var version int
	if err := s.db.QueryRow(`PRAGMA user_version`).Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}

	// No migration path: an unknown layout is thrown away.
	if version != 0 && version != SchemaVersion {
		slog.Warn("recreating caller_info on schema mismatch",
			"found_version", version,
			"want_version", SchemaVersion)
		if _, err := s.db.Exec(`DROP TABLE IF EXISTS caller_info`); err != nil {
			return fmt.Errorf("drop caller_info: %w", err)
		}
	}

	schema := `
	CREATE TABLE IF NOT EXISTS caller_info (
		phone_number TEXT PRIMARY KEY,
		name         TEXT,
		company      TEXT,
		is_spam      INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_caller_info_spam ON caller_info(is_spam);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}

	if _, err := s.db.Exec(fmt.Sprintf(`PRAGMA user_version = %d`, SchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Lookup(ctx context.Context, number string) (*model.CallerRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT phone_number, name, company, is_spam FROM caller_info
		 WHERE phone_number = ? LIMIT 1`, number)

	rec, err := scanCaller(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, unavailable("lookup", err)
	}
	return &rec, nil
}

func (s *SQLiteStore) Upsert(ctx context.Context, rec model.CallerRecord) error {
	rec.PhoneNumber = phone.NormalizeString(rec.PhoneNumber)
	if rec.PhoneNumber == "" {
		return fmt.Errorf("upsert: phone number is required")
	}
	if err := upsertCaller(ctx, s.db, rec); err != nil {
		return unavailable("upsert", err)
	}
	return nil
}

func (s *SQLiteStore) ListAll(ctx context.Context) ([]model.CallerRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT phone_number, name, company, is_spam FROM caller_info ORDER BY phone_number`)
	if err != nil {
		return nil, unavailable("list", err)
	}
	defer rows.Close()

	var callers []model.CallerRecord
	for rows.Next() {
		rec, err := scanCaller(rows)
		if err != nil {
			return nil, unavailable("list", err)
		}
		callers = append(callers, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("list", err)
	}
	return callers, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func upsertCaller(ctx context.Context, db execer, rec model.CallerRecord) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO caller_info (phone_number, name, company, is_spam)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(phone_number) DO UPDATE SET
		   name = excluded.name,
		   company = excluded.company,
		   is_spam = excluded.is_spam`,
		rec.PhoneNumber, nullString(rec.Name), nullString(rec.Company), rec.IsSpam)
	return err
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanCaller(row scanner) (model.CallerRecord, error) {
	var rec model.CallerRecord
	var name, company sql.NullString

	if err := row.Scan(&rec.PhoneNumber, &name, &company, &rec.IsSpam); err != nil {
		return rec, err
	}
	if name.Valid {
		rec.Name = &name.String
	}
	if company.Valid {
		rec.Company = &company.String
	}
	return rec, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
