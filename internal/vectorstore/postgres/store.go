// Package postgres stores chunk embeddings in Postgres using the pgvector
// extension.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/siepe-rag/internal/rag"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

const defaultTable = "articles"

// Config controls the Postgres connection pool and target table.
type Config struct {
	DSN             string
	Table           string
	Dimension       int
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	Close()
}

// Store implements rag.VectorStore on a pgvector table.
type Store struct {
	pool      pool
	table     string
	dimension int
}

// New connects to Postgres using cfg.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("vectorstore.postgres.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	store, err := NewWithPool(p, cfg.Table, cfg.Dimension)
	if err != nil {
		p.Close()
		return nil, err
	}
	return store, nil
}

// NewWithPool constructs a store from an existing pool (primarily for testing).
func NewWithPool(p pool, table string, dimension int) (*Store, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = defaultTable
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &Store{pool: p, table: table, dimension: dimension}, nil
}

// EnsureSchema creates the extension and table when missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if s.dimension <= 0 {
		return fmt.Errorf("vector dimension must be > 0")
	}
	if _, err := s.pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("create vector extension: %w", err)
	}
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id uuid PRIMARY KEY,
	embedding vector(%d) NOT NULL,
	payload jsonb NOT NULL DEFAULT '{}'::jsonb
)`, s.table, s.dimension)
	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("create table %s: %w", s.table, err)
	}
	return nil
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Upsert writes every point in a single statement.
func (s *Store) Upsert(ctx context.Context, points []rag.Point) error {
	if len(points) == 0 {
		return nil
	}
	var (
		values strings.Builder
		args   = make([]any, 0, 3*len(points))
	)
	for i, p := range points {
		if p.ID == "" {
			return fmt.Errorf("point %d: id is required", i)
		}
		payload, err := json.Marshal(p.Payload)
		if err != nil {
			return fmt.Errorf("marshal payload %s: %w", p.ID, err)
		}
		if i > 0 {
			values.WriteString(",")
		}
		n := 3 * i
		fmt.Fprintf(&values, "($%d,$%d::vector,$%d::jsonb)", n+1, n+2, n+3)
		args = append(args, p.ID, vectorLiteral(p.Vector), payload)
	}

	query := fmt.Sprintf(`INSERT INTO %s (id, embedding, payload) VALUES %s
ON CONFLICT (id) DO UPDATE SET embedding = EXCLUDED.embedding, payload = EXCLUDED.payload`,
		s.table, values.String())
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert %d points: %w", len(points), err)
	}
	return nil
}

// Search returns the nearest points by cosine distance. The score is
// 1 - distance, so higher is better.
func (s *Store) Search(ctx context.Context, vector []float32, filter rag.Filter, limit int) ([]rag.Hit, error) {
	if limit <= 0 {
		return nil, nil
	}
	args := []any{vectorLiteral(vector)}
	where := ""
	if len(filter) > 0 {
		cond, err := json.Marshal(filter)
		if err != nil {
			return nil, fmt.Errorf("marshal filter: %w", err)
		}
		args = append(args, cond)
		where = "WHERE payload @> $2::jsonb"
	}
	args = append(args, limit)
	query := fmt.Sprintf(`SELECT id::text, payload, 1 - (embedding <=> $1::vector) AS score
FROM %s %s
ORDER BY embedding <=> $1::vector
LIMIT $%d`, s.table, where, len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", s.table, err)
	}
	defer rows.Close()

	var hits []rag.Hit
	for rows.Next() {
		var (
			id      string
			payload []byte
			score   float64
		)
		if err := rows.Scan(&id, &payload, &score); err != nil {
			return nil, fmt.Errorf("scan hit: %w", err)
		}
		hit := rag.Hit{ID: id, Score: float32(score)}
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &hit.Payload); err != nil {
				return nil, fmt.Errorf("decode payload %s: %w", id, err)
			}
		}
		hits = append(hits, hit)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate hits: %w", err)
	}
	return hits, nil
}

func vectorLiteral(v []float32) string {
	var b strings.Builder
	b.Grow(len(v)*10 + 2)
	b.WriteByte('[')
	for i, f := range v {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(f), 'f', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}
