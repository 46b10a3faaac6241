// internal/database/db.go
package database

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"
)

// DB is the shared connection pool. Nil when persistence is disabled; every
// query path checks before touching it.
var DB *pgxpool.Pool

// ConnectDB opens the pool from the PG_* environment and verifies it with a
// ping. Callers gate on PG_HOST being set, so a connection failure here is a
// misconfiguration, not an optional feature quietly missing.
func ConnectDB() {
	host := os.Getenv("PG_HOST")
	connStr := fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s",
		envOr("POSTGRES_USER", "postgres"),
		os.Getenv("POSTGRES_PASSWORD"),
		host,
		envOr("PG_PORT", "5432"),
		envOr("PG_DATABASE", "gridfall"),
	)

	pool, err := pgxpool.New(context.Background(), connStr)
	if err != nil {
		logrus.WithError(err).Fatal("create pgx pool")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := pool.Ping(ctx); err != nil {
		logrus.WithError(err).WithField("host", host).Fatal("postgres ping")
	}

	DB = pool
	logrus.WithField("host", host).Info("connected to postgres")
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
