package infrastructure

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestClient connects to TEST_DATABASE_URL and drops the bot tables so
// every test starts from an empty database.
func newTestClient(t *testing.T) *PostgresClient {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	client, err := NewPostgresClient(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(client.Close)

	_, err = client.Pool.Exec(ctx, "DROP TABLE IF EXISTS users, teams, task_actions")
	require.NoError(t, err)
	require.NoError(t, client.Migrate(ctx))
	return client
}

type column struct {
	table, name, dataType, nullable string
	def                             *string
}

func describeSchema(t *testing.T, c *PostgresClient) []column {
	t.Helper()
	rows, err := c.Pool.Query(context.Background(), `
		SELECT table_name, column_name, data_type, is_nullable, column_default
		FROM information_schema.columns
		WHERE table_schema = current_schema() AND table_name IN ('users', 'teams', 'task_actions')
		ORDER BY table_name, ordinal_position`)
	require.NoError(t, err)
	defer rows.Close()

	var cols []column
	for rows.Next() {
		var col column
		require.NoError(t, rows.Scan(&col.table, &col.name, &col.dataType, &col.nullable, &col.def))
		cols = append(cols, col)
	}
	require.NoError(t, rows.Err())
	return cols
}

func TestMigrateIsIdempotent(t *testing.T) {
	c := newTestClient(t)
	before := describeSchema(t, c)
	require.Len(t, before, 7+2+6)

	for i := 0; i < 3; i++ {
		require.NoError(t, c.Migrate(context.Background()))
	}
	assert.Equal(t, before, describeSchema(t, c))
}

func TestUsersTelegramIDIsUnique(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	_, err := c.Pool.Exec(ctx, "INSERT INTO users (tg_user_id) VALUES (1001)")
	require.NoError(t, err)
	_, err = c.Pool.Exec(ctx, "INSERT INTO users (tg_user_id) VALUES (1002)")
	require.NoError(t, err)

	_, err = c.Pool.Exec(ctx, "INSERT INTO users (tg_user_id) VALUES (1001)")
	var pgErr *pgconn.PgError
	require.True(t, errors.As(err, &pgErr))
	assert.Equal(t, "23505", pgErr.Code)

	var role string
	require.NoError(t, c.Pool.QueryRow(ctx, "SELECT role FROM users WHERE tg_user_id = 1002").Scan(&role))
	assert.Equal(t, "worker", role)
}

func TestTeamsRequireExplicitID(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	_, err := c.Pool.Exec(ctx, "INSERT INTO teams (name) VALUES ('Alpha')")
	assert.Error(t, err)

	_, err = c.Pool.Exec(ctx, "INSERT INTO teams (id, name) VALUES (7, 'Alpha')")
	assert.NoError(t, err)
}

func TestTaskActionPayloadAcceptsAnyShape(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	payloads := []string{`{}`, `[]`, `"text"`, `42`, `null`, `{"nested":{"list":[1,"two",null]}}`}
	for _, p := range payloads {
		_, err := c.Pool.Exec(ctx,
			"INSERT INTO task_actions (bitrix_task_id, tg_user_id, action, payload) VALUES ($1, $2, $3, $4::jsonb)",
			1, 2, "done", p)
		assert.NoError(t, err, p)
	}

	var n int
	require.NoError(t, c.Pool.QueryRow(ctx, "SELECT count(*) FROM task_actions").Scan(&n))
	assert.Equal(t, len(payloads), n)
}
