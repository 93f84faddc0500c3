package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/penshort/beacon/internal/model"
)

const schema = `
	CREATE TABLE IF NOT EXISTS ingested_requests (
		id          TEXT PRIMARY KEY,
		app_key     TEXT NOT NULL,
		device_id   TEXT NOT NULL,
		kind        TEXT NOT NULL,
		params      JSONB NOT NULL,
		received_at TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX IF NOT EXISTS ingested_requests_device_idx
		ON ingested_requests (app_key, device_id, received_at);
`

// PostgresRepository stores records in Postgres.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository connects to databaseURL and ensures the schema.
func NewPostgresRepository(ctx context.Context, databaseURL string) (*PostgresRepository, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}
	config.MaxConns = 10
	config.MinConns = 1

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &PostgresRepository{pool: pool}, nil
}

// Save implements Repository with one batch per call.
func (p *PostgresRepository) Save(ctx context.Context, records ...Record) error {
	if len(records) == 0 {
		return nil
	}
	const query = `
		INSERT INTO ingested_requests (id, app_key, device_id, kind, params, received_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING
	`
	batch := &pgx.Batch{}
	for _, r := range records {
		params, err := json.Marshal(r.Params)
		if err != nil {
			return fmt.Errorf("encode params %s: %w", r.ID, err)
		}
		batch.Queue(query, r.ID, r.AppKey, r.DeviceID, string(r.Kind), params, r.ReceivedAt)
	}

	results := p.pool.SendBatch(ctx, batch)
	defer results.Close()
	for i := range records {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("insert record %d: %w", i, err)
		}
	}
	return nil
}

// List implements Repository.
func (p *PostgresRepository) List(ctx context.Context, f Filter) ([]Record, error) {
	var (
		where []string
		args  []any
	)
	add := func(column, value string) {
		if value == "" {
			return
		}
		args = append(args, value)
		where = append(where, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	add("app_key", f.AppKey)
	add("device_id", f.DeviceID)
	add("kind", f.Kind)

	query := `SELECT id, app_key, device_id, kind, params, received_at FROM ingested_requests`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	args = append(args, f.limit())
	query = fmt.Sprintf(`SELECT * FROM (%s ORDER BY received_at DESC, id DESC LIMIT $%d) newest
		ORDER BY received_at, id`, query, len(args))

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			r      Record
			kind   string
			params []byte
		)
		if err := rows.Scan(&r.ID, &r.AppKey, &r.DeviceID, &kind, &params, &r.ReceivedAt); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		r.Kind = model.RequestKind(kind)
		if err := json.Unmarshal(params, &r.Params); err != nil {
			return nil, fmt.Errorf("decode params %s: %w", r.ID, err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return out, nil
}

// Ping implements Repository.
func (p *PostgresRepository) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// Close implements Repository.
func (p *PostgresRepository) Close() {
	p.pool.Close()
}
