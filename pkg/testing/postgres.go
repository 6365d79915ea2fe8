package testing

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"

	"github.com/2beens/healthpulse/internal/db"
)

// GetDBPool connects to the postgres given by POSTGRES_HOST / POSTGRES_PORT / POSTGRES_PASSWORD,
// applies the schema and truncates the service tables, so each test starts clean.
func GetDBPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	pool, err := db.NewDBPool(ctx, db.NewDBPoolParams{
		DBHost:     envOrDefault("POSTGRES_HOST", "localhost"),
		DBPort:     envOrDefault("POSTGRES_PORT", "5432"),
		DBName:     envOrDefault("POSTGRES_DB", "healthpulse"),
		DBUser:     envOrDefault("POSTGRES_USER", "postgres"),
		DBPassword: os.Getenv("POSTGRES_PASSWORD"),
	})
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, pool.Ping(ctx))
	require.NoError(t, db.Migrate(ctx, pool))

	_, err = pool.Exec(ctx, `TRUNCATE entry, goal, profile RESTART IDENTITY;`)
	require.NoError(t, err)

	return pool
}
