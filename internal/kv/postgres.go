package kv

import (
	"context"
	_ "embed"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema.sql
var schemaSQL string

// PostgresStore keeps each document as one row of kv_documents.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// EnsureSchema creates kv_documents when it does not exist yet.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return unavailable("schema", err)
	}
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return unavailable("ping", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, key string) ([]byte, error) {
	var value string
	err := s.pool.QueryRow(ctx, "SELECT value FROM kv_documents WHERE key = $1", key).Scan(&value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, unavailable("get", err)
	}
	return []byte(value), nil
}

func (s *PostgresStore) Set(ctx context.Context, key string, value []byte) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO kv_documents (key, value)
		VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()
	`, key, string(value))
	if err != nil {
		return unavailable("set", err)
	}
	return nil
}

func (s *PostgresStore) CompareAndSwap(ctx context.Context, key string, old, value []byte) error {
	var (
		tag pgconn.CommandTag
		err error
	)
	if old == nil {
		tag, err = s.pool.Exec(ctx, `
			INSERT INTO kv_documents (key, value)
			VALUES ($1, $2)
			ON CONFLICT (key) DO NOTHING
		`, key, string(value))
	} else {
		tag, err = s.pool.Exec(ctx, `
			UPDATE kv_documents
			SET value = $3, updated_at = now()
			WHERE key = $1 AND value = $2
		`, key, string(old), string(value))
	}
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return unavailable("cas", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrConflict
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "23505"
}
