// Package postgres implements the persistence capability on a Postgres
// table. Writes upsert inside a single statement, which satisfies the
// no-torn-writes contract.
package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/mgthompo1/tapkernel/internal/capability"
	"github.com/mgthompo1/tapkernel/pkg/store"
)

// Store persists records in the durable_records table.
type Store struct {
	db *store.SQL
}

// Compile-time check that Store implements the persistence capability
var _ capability.Persistence = (*Store)(nil)

// New wraps a connected SQL store.
func New(db *store.SQL) *Store {
	return &Store{db: db}
}

// Write upserts the payload.
func (s *Store) Write(ctx context.Context, namespace, key string, data []byte) error {
	query := `
		INSERT INTO durable_records (namespace, key, data, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (namespace, key)
		DO UPDATE SET data = EXCLUDED.data, updated_at = NOW()
	`
	_, err := s.db.Connection.Exec(ctx, query, namespace, key, data)
	return err
}

// Read loads a payload.
func (s *Store) Read(ctx context.Context, namespace, key string) ([]byte, error) {
	query := `SELECT data FROM durable_records WHERE namespace = $1 AND key = $2`

	var data []byte
	err := s.db.Connection.QueryRow(ctx, query, namespace, key).Scan(&data)
	if err == pgx.ErrNoRows {
		return nil, capability.ErrNotFound
	}
	return data, err
}

// Delete removes a record. Deleting an absent record is not an error.
func (s *Store) Delete(ctx context.Context, namespace, key string) error {
	query := `DELETE FROM durable_records WHERE namespace = $1 AND key = $2`
	_, err := s.db.Connection.Exec(ctx, query, namespace, key)
	return err
}

// List returns the keys of a namespace.
func (s *Store) List(ctx context.Context, namespace string) ([]string, error) {
	query := `SELECT key FROM durable_records WHERE namespace = $1 ORDER BY key`

	rows, err := s.db.Connection.Query(ctx, query, namespace)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}
