package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const defaultMaxOpenConns = 20

// SQL wraps the pgx pool used by the postgres persistence adapter.
type SQL struct {
	Connection *pgxpool.Pool
}

// NewSQL connects a pool and verifies the database is reachable.
func NewSQL(dsn string) (*SQL, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, fmt.Errorf("store: empty data source name")
	}

	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("store: parse config failed: err=%w", err)
	}

	config.MaxConns = defaultMaxOpenConns
	config.MinConns = 5
	config.MaxConnLifetime = 1 * time.Hour
	config.MaxConnIdleTime = 30 * time.Minute
	config.HealthCheckPeriod = 1 * time.Minute

	db, err := pgxpool.NewWithConfig(context.Background(), config)
	if err != nil {
		return nil, fmt.Errorf("store: connect failed: err=%w", err)
	}

	if err = db.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("store: ping failed: err=%w", err)
	}

	return &SQL{Connection: db}, nil
}
