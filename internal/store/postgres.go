// Package store is the PostgreSQL persistence layer for the consortium
// ledger core. It implements the narrow store interfaces consumed by
// internal/identity, internal/ledger, internal/consensus, internal/treasury
// and internal/disclosure on a single PostgresStore so every write path
// shares one connection pool and one transaction discipline.
package store

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore wraps a pgx connection pool. The zero value is not
// usable; construct with Connect.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// Connect opens the connection pool and verifies it with a ping.
func Connect(ctx context.Context, connStr string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping failed: %w", err)
	}
	log.Println("[store] connected to PostgreSQL")
	return &PostgresStore{pool: pool}, nil
}

// Close gracefully closes the connection pool.
func (s *PostgresStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// InitSchema loads and executes schema.sql. Every statement uses CREATE
// TABLE/INDEX IF NOT EXISTS, so this is safe to run on every startup.
func (s *PostgresStore) InitSchema(ctx context.Context) error {
	schemaBytes, err := os.ReadFile("internal/store/schema.sql")
	if err != nil {
		return fmt.Errorf("failed to read schema file: %w", err)
	}
	if _, err := s.pool.Exec(ctx, string(schemaBytes)); err != nil {
		return fmt.Errorf("failed to execute schema migrations: %w", err)
	}
	log.Println("[store] schema initialized")
	return nil
}

// Pool exposes the underlying pool for subsystems that need bespoke
// queries.
func (s *PostgresStore) Pool() *pgxpool.Pool {
	return s.pool
}
