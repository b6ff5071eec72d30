package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/scan-admission/internal/config"
)

// ClickHouseDB wraps the ClickHouse connection used for the scan event
// analytics store.
type ClickHouseDB struct {
	conn driver.Conn
}

// NewClickHouseDB creates a new ClickHouse database connection
func NewClickHouseDB(cfg *config.ClickHouseConfig) (*ClickHouseDB, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{fmt.Sprintf("%s:%s", cfg.Host, cfg.Port)},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.User,
			Password: cfg.Password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
		DialTimeout:      10 * time.Second,
		MaxOpenConns:     10,
		MaxIdleConns:     5,
		ConnMaxLifetime:  time.Hour,
		ConnOpenStrategy: clickhouse.ConnOpenInOrder,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := conn.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	return &ClickHouseDB{conn: conn}, nil
}

// Close closes the ClickHouse connection
func (db *ClickHouseDB) Close() error {
	if db.conn != nil {
		return db.conn.Close()
	}
	return nil
}

// Conn returns the underlying ClickHouse connection
func (db *ClickHouseDB) Conn() driver.Conn {
	return db.conn
}

// EnsureSchema creates the scan_events table if missing. ClickHouse schema is
// managed here rather than through the Postgres migration chain.
func (db *ClickHouseDB) EnsureSchema(ctx context.Context) error {
	ddl := `
		CREATE TABLE IF NOT EXISTS scan_events (
			id UUID,
			user_id String,
			scan_type LowCardinality(String),
			tier LowCardinality(String),
			allowed UInt8,
			current_count UInt32,
			limit_count UInt32,
			next_available_at Nullable(DateTime64(3, 'UTC')),
			decided_at DateTime64(3, 'UTC'),
			latency_ms Int64
		)
		ENGINE = MergeTree()
		PARTITION BY toYYYYMM(decided_at)
		ORDER BY (user_id, decided_at)
	`

	if err := db.conn.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("failed to create scan_events table: %w", err)
	}
	return nil
}
