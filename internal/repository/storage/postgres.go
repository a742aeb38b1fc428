package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	// import the Postgres driver to register it with the database/sql package.
	_ "github.com/lib/pq"
)

type Storage struct {
	Connection *sql.DB
}

func NewPostgres(ctx context.Context, dsn string) (*Storage, error) {
	conn, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("can't open database: %w", err)
	}

	conn.SetMaxOpenConns(8)
	conn.SetMaxIdleConns(4)
	conn.SetConnMaxLifetime(30 * time.Minute)

	if err = conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("can't connect to database: %w", err)
	}

	return &Storage{Connection: conn}, nil
}

func (that *Storage) Init(ctx context.Context) error {
	query := `CREATE TABLE IF NOT EXISTS finished_games (
		game_id     TEXT PRIMARY KEY,
		status      TEXT NOT NULL,
		winner      TEXT NOT NULL,
		move_count  INTEGER NOT NULL,
		board       TEXT NOT NULL,
		version     TEXT NOT NULL,
		finished_at TIMESTAMPTZ NOT NULL
	)`

	_, err := that.Connection.ExecContext(ctx, query)
	if err != nil {
		return fmt.Errorf("can't create table: %w", err)
	}

	return nil
}

func (that *Storage) Close() error {
	return that.Connection.Close()
}
