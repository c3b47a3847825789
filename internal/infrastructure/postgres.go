package infrastructure

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresClient struct {
	Pool *pgxpool.Pool
}

// schemaStatements are applied in order by Migrate. Every statement is
// idempotent so Migrate can run on each start of both processes.
var schemaStatements = []struct {
	name string
	sql  string
}{
	{"users", `
		CREATE TABLE IF NOT EXISTS users (
			id             BIGSERIAL PRIMARY KEY,
			tg_user_id     BIGINT UNIQUE NOT NULL,
			bitrix_user_id BIGINT,
			full_name      TEXT,
			team_id        BIGINT,
			role           TEXT DEFAULT 'worker',
			created_at     TIMESTAMPTZ DEFAULT now()
		);`},
	{"teams", `
		CREATE TABLE IF NOT EXISTS teams (
			id   BIGINT PRIMARY KEY,
			name TEXT NOT NULL
		);`},
	{"task_actions", `
		CREATE TABLE IF NOT EXISTS task_actions (
			id             BIGSERIAL PRIMARY KEY,
			bitrix_task_id BIGINT,
			tg_user_id     BIGINT,
			action         TEXT,
			payload        JSONB,
			created_at     TIMESTAMPTZ DEFAULT now()
		);`},
}

func NewPostgresClient(ctx context.Context, connString string) (*PostgresClient, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("unable to parse connection string: %w", err)
	}

	config.MaxConns = 10
	config.MinConns = 1
	config.MaxConnLifetime = time.Hour
	config.MaxConnIdleTime = 30 * time.Minute
	config.ConnConfig.ConnectTimeout = 15 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	return &PostgresClient{Pool: pool}, nil
}

// Migrate creates the tables if they do not exist yet.
func (p *PostgresClient) Migrate(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := p.Pool.Exec(ctx, stmt.sql); err != nil {
			return fmt.Errorf("create %s table: %w", stmt.name, err)
		}
	}
	return nil
}

func (p *PostgresClient) Ping(ctx context.Context) error {
	return p.Pool.Ping(ctx)
}

func (p *PostgresClient) Close() {
	p.Pool.Close()
}
