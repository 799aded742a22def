package kv

import (
	"context"
	"embed"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/SergeiKhy/link-registry/internal/config"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrations embed.FS

// NewPostgresPool opens a connection pool and checks the connection.
func NewPostgresPool(cfg config.DBConfig) (*pgxpool.Pool, error) {
	dsn := fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=disable",
		cfg.User,
		cfg.Password,
		cfg.Host,
		cfg.Port,
		cfg.Name,
	)
	return NewPostgresPoolFromDSN(dsn)
}

func NewPostgresPoolFromDSN(dsn string) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse DB config: %w", err)
	}

	poolConfig.MaxConns = 25
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return pool, nil
}

// Migrate applies the embedded goose migrations.
func Migrate(pool *pgxpool.Pool) error {
	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()

	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// PostgresStore implements Store on the kv_entries table. Listing is keyset
// paginated by key, the cursor being the last key of the previous page.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) List(ctx context.Context, opts ListOptions) (*ListResult, error) {
	after := ""
	if opts.Cursor != "" {
		raw, err := base64.RawURLEncoding.DecodeString(opts.Cursor)
		if err != nil {
			return nil, fmt.Errorf("invalid cursor: %w", err)
		}
		after = string(raw)
	}
	limit := listLimit(opts.Limit)

	query := `
		SELECT key, metadata
		FROM kv_entries
		WHERE key LIKE $1 AND key > $2
			AND (expires_at IS NULL OR expires_at > NOW())
		ORDER BY key
		LIMIT $3
	`

	rows, err := s.pool.Query(ctx, query, escapeLike(opts.Prefix)+"%", after, limit+1)
	if err != nil {
		return nil, fmt.Errorf("failed to list keys: %w", err)
	}
	defer rows.Close()

	result := &ListResult{Keys: make([]Key, 0, limit)}
	for rows.Next() {
		var key Key
		if err := rows.Scan(&key.Name, &key.Metadata); err != nil {
			return nil, fmt.Errorf("failed to scan key: %w", err)
		}
		if !hasMetadata(key.Metadata) {
			key.Metadata = nil
		}
		result.Keys = append(result.Keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating keys: %w", err)
	}

	result.Complete = len(result.Keys) <= limit
	if !result.Complete {
		result.Keys = result.Keys[:limit]
		last := result.Keys[limit-1].Name
		result.Cursor = base64.RawURLEncoding.EncodeToString([]byte(last))
	}

	return result, nil
}

func (s *PostgresStore) Get(ctx context.Context, key string) ([]byte, error) {
	entry, err := s.GetWithMetadata(ctx, key)
	if err != nil {
		return nil, err
	}
	return entry.Value, nil
}

func (s *PostgresStore) GetWithMetadata(ctx context.Context, key string) (*Entry, error) {
	query := `
		SELECT value, metadata
		FROM kv_entries
		WHERE key = $1 AND (expires_at IS NULL OR expires_at > NOW())
	`

	entry := &Entry{}
	err := s.pool.QueryRow(ctx, query, key).Scan(&entry.Value, &entry.Metadata)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get %s: %w", key, err)
	}
	if !hasMetadata(entry.Metadata) {
		entry.Metadata = nil
	}

	return entry, nil
}

func (s *PostgresStore) Put(ctx context.Context, key string, value []byte, opts PutOptions) error {
	query := `
		INSERT INTO kv_entries (key, value, metadata, expires_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (key) DO UPDATE
		SET value = EXCLUDED.value,
			metadata = EXCLUDED.metadata,
			expires_at = EXCLUDED.expires_at
	`

	var metadata any
	if hasMetadata(opts.Metadata) {
		metadata = string(opts.Metadata)
	}
	var expiresAt *time.Time
	if !opts.Expiration.IsZero() {
		expiresAt = &opts.Expiration
	}

	if _, err := s.pool.Exec(ctx, query, key, value, metadata, expiresAt); err != nil {
		return fmt.Errorf("failed to put %s: %w", key, err)
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, key string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM kv_entries WHERE key = $1`, key); err != nil {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}

// PurgeExpired removes rows whose expiry has passed. They are already
// invisible; this only reclaims space.
func (s *PostgresStore) PurgeExpired(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM kv_entries WHERE expires_at IS NOT NULL AND expires_at <= NOW()`)
	if err != nil {
		return 0, fmt.Errorf("failed to purge expired entries: %w", err)
	}
	return tag.RowsAffected(), nil
}

func escapeLike(prefix string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(prefix)
}
