package metadata

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/eventidx/eventidx/internal/storage"
	"github.com/eventidx/eventidx/pkg/model"
)

// PostgresStore keeps index metadata in PostgreSQL.
type PostgresStore struct {
	db        *sql.DB
	tableName string
}

var _ Store = (*PostgresStore)(nil)

// Open connects to PostgreSQL using the lib/pq driver and verifies the
// connection.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	connector, err := pq.NewConnector(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	db := sql.OpenDB(connector)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// NewPostgresStore creates a Store over tableName.
func NewPostgresStore(db *sql.DB, tableName string) *PostgresStore {
	if tableName == "" {
		tableName = "index_metadata"
	}
	return &PostgresStore{db: db, tableName: tableName}
}

// EnsureSchema creates the metadata table if it does not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	schema := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
    index_name          VARCHAR(64) PRIMARY KEY,
    index_version       INTEGER NOT NULL,
    index_version_hash  BYTEA
)`, pq.QuoteIdentifier(s.tableName))
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return wrapErr(err, "create table %s", s.tableName)
	}
	return nil
}

func (s *PostgresStore) Find(ctx context.Context, indexName string) (*IndexMetadata, error) {
	query := fmt.Sprintf(`SELECT index_version, index_version_hash FROM %s WHERE index_name = $1`,
		pq.QuoteIdentifier(s.tableName))

	m := IndexMetadata{IndexName: indexName}
	err := s.db.QueryRowContext(ctx, query, indexName).Scan(&m.SchemaVersion, &m.ConfigFingerprint)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, wrapErr(err, "find metadata of %s", indexName)
	}
	return &m, nil
}

func (s *PostgresStore) Update(ctx context.Context, indexName string, version int, fingerprint []byte) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (index_name, index_version, index_version_hash)
		VALUES ($1, $2, $3)
		ON CONFLICT (index_name) DO UPDATE
		SET index_version = EXCLUDED.index_version, index_version_hash = EXCLUDED.index_version_hash
	`, pq.QuoteIdentifier(s.tableName))

	if _, err := s.db.ExecContext(ctx, query, indexName, version, fingerprint); err != nil {
		return wrapErr(err, "update metadata of %s", indexName)
	}
	return nil
}

// wrapErr marks connection, rollback and resource errors as transient.
func wrapErr(err error, format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	if model.IsCanceled(err) {
		return fmt.Errorf("%s: %w: %w", msg, model.ErrCanceled, err)
	}
	if isTransient(err) {
		return fmt.Errorf("%s: %w: %w", msg, storage.ErrTransient, err)
	}
	return fmt.Errorf("%s: %w", msg, err)
}

func isTransient(err error) bool {
	if errors.Is(err, sql.ErrConnDone) {
		return true
	}
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	switch pqErr.Code.Class() {
	case "08", "40", "53", "57":
		return true
	}
	return false
}
