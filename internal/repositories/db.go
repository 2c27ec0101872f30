package repositories

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	apperrors "renderworker/internal/pkg/errors"
)

// DB is the query surface repositories need. *pgxpool.Pool implements it.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Open connects a pool and checks it with a ping.
func Open(ctx context.Context, url string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, apperrors.WrapWithCode(err, apperrors.CodeUnavailable, "db.open", "invalid database url")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, apperrors.WrapWithCode(err, apperrors.CodeUnavailable, "db.open", "database unreachable")
	}
	return pool, nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS worker_identities (
		slot       integer PRIMARY KEY,
		name       text NOT NULL,
		updated_at timestamptz NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS job_results (
		id                uuid PRIMARY KEY,
		job_id            bigint NOT NULL,
		worker            text NOT NULL,
		shader            text NOT NULL,
		status            text NOT NULL,
		log               text NOT NULL DEFAULT '',
		image_key         text NOT NULL DEFAULT '',
		image2_key        text NOT NULL DEFAULT '',
		compile_us        bigint NOT NULL DEFAULT 0,
		link_us           bigint NOT NULL DEFAULT 0,
		render_us         bigint NOT NULL DEFAULT 0,
		pass_sanity_check boolean NOT NULL DEFAULT true,
		created_at        timestamptz NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS job_results_worker_created_idx ON job_results (worker, created_at DESC)`,
}

// Migrate creates the tables the worker writes to.
func Migrate(ctx context.Context, db DB) error {
	for _, stmt := range schema {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return apperrors.Wrap(err, "db.migrate", "apply schema")
		}
	}
	return nil
}

// IsUndefinedTable reports a missing table (42P01).
func IsUndefinedTable(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "42P01"
}

// IsUniqueViolation reports a unique constraint violation (23505).
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
