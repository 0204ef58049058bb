// Package postgres implements the stores on PostgreSQL: bun for the transactional
// write paths, pgx pools for the hot read paths outside the write transaction.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
)

// OpenDB opens a bun handle; timeout bounds dial, read and write when positive.
func OpenDB(url string, timeout time.Duration) *bun.DB {
	opts := []pgdriver.Option{pgdriver.WithDSN(url)}
	if timeout > 0 {
		opts = append(opts, pgdriver.WithTimeout(timeout))
	}
	sqldb := sql.OpenDB(pgdriver.NewConnector(opts...))
	return bun.NewDB(sqldb, pgdialect.New())
}

// ConnectPool opens the pgx pool used by the read paths.
func ConnectPool(ctx context.Context, url string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.Connect(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("connect pgx pool: %w", err)
	}
	return pool, nil
}
