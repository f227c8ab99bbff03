package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/andresmejia3/depotscan/internal/cache"
	"github.com/andresmejia3/depotscan/internal/types"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Store manages the PostgreSQL connection backing the namespaced cache and scan history.
type Store struct {
	conn *pgx.Conn
}

// Scan is one recognized depot screenshot.
type Scan struct {
	ID        uuid.UUID
	ImageID   string
	ImagePath string
	Items     []types.Item
	CreatedAt time.Time
}

// New establishes a connection to the database and ensures the schema is initialized.
func New(ctx context.Context, connString string) (*Store, error) {
	conn, err := pgx.Connect(ctx, connString)
	if err != nil {
		return nil, err
	}

	// Initialize schema (Auto-Migration)
	if err := initSchema(ctx, conn); err != nil {
		conn.Close(ctx)
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}

	return &Store{conn: conn}, nil
}

// initSchema creates the necessary tables if they don't exist (Auto-Migration).
func initSchema(ctx context.Context, conn *pgx.Conn) error {
	query := `
		CREATE TABLE IF NOT EXISTS local_cache (
			namespace TEXT NOT NULL,
			key TEXT NOT NULL,
			value BYTEA NOT NULL,
			updated_at TIMESTAMPTZ DEFAULT NOW(),
			PRIMARY KEY (namespace, key)
		);
		CREATE TABLE IF NOT EXISTS depot_scans (
			id UUID PRIMARY KEY,
			image_id TEXT NOT NULL UNIQUE,
			image_path TEXT NOT NULL,
			items JSONB NOT NULL,
			created_at TIMESTAMPTZ DEFAULT NOW()
		);
	`
	_, err := conn.Exec(ctx, query)
	return err
}

// Close terminates the database connection.
func (s *Store) Close(ctx context.Context) {
	s.conn.Close(ctx)
}

// Set upserts a cache entry.
func (s *Store) Set(ctx context.Context, namespace, key string, value []byte) error {
	_, err := s.conn.Exec(ctx, `
		INSERT INTO local_cache (namespace, key, value, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (namespace, key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()
	`, namespace, key, value)
	return err
}

func (s *Store) Get(ctx context.Context, namespace, key string) ([]byte, error) {
	var value []byte
	err := s.conn.QueryRow(ctx, "SELECT value FROM local_cache WHERE namespace = $1 AND key = $2", namespace, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, cache.ErrNotFound
	}
	return value, err
}

// Keys lists the keys of a namespace in sorted order.
func (s *Store) Keys(ctx context.Context, namespace string) ([]string, error) {
	rows, err := s.conn.Query(ctx, "SELECT key FROM local_cache WHERE namespace = $1 ORDER BY key", namespace)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

// Clear removes every entry of the namespace. Exact match only, so "dr.pkg" never hits "dr.pkgx".
func (s *Store) Clear(ctx context.Context, namespace string) error {
	_, err := s.conn.Exec(ctx, "DELETE FROM local_cache WHERE namespace = $1", namespace)
	return err
}

// SaveScan records a recognition result. Re-scanning the same image replaces the previous result.
func (s *Store) SaveScan(ctx context.Context, imageID, imagePath string, items []types.Item) (uuid.UUID, error) {
	raw, err := json.Marshal(items)
	if err != nil {
		return uuid.Nil, err
	}

	id := uuid.New()
	err = s.conn.QueryRow(ctx, `
		INSERT INTO depot_scans (id, image_id, image_path, items, created_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (image_id) DO UPDATE SET items = EXCLUDED.items, image_path = EXCLUDED.image_path, created_at = NOW()
		RETURNING id
	`, id, imageID, imagePath, raw).Scan(&id)
	return id, err
}

// ListScans returns the most recent scans first.
func (s *Store) ListScans(ctx context.Context, limit int) ([]Scan, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.conn.Query(ctx, `
		SELECT id, image_id, image_path, items, created_at
		FROM depot_scans ORDER BY created_at DESC LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var scans []Scan
	for rows.Next() {
		var sc Scan
		var raw []byte
		if err := rows.Scan(&sc.ID, &sc.ImageID, &sc.ImagePath, &raw, &sc.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(raw, &sc.Items); err != nil {
			return nil, fmt.Errorf("scan %s has malformed items: %w", sc.ID, err)
		}
		scans = append(scans, sc)
	}
	return scans, rows.Err()
}

// Reset drops all application tables to clear the database state.
// This is useful for development to force a schema refresh without migrations.
func (s *Store) Reset(ctx context.Context) error {
	_, err := s.conn.Exec(ctx, `
		DROP TABLE IF EXISTS depot_scans CASCADE;
		DROP TABLE IF EXISTS local_cache CASCADE;
	`)
	return err
}
