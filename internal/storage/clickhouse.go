package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/naka-gawa/repo-pulse/internal/config"
	"github.com/sirupsen/logrus"
)

// batchConn is the part of driver.Conn the ClickHouse inserter uses.
type batchConn interface {
	PrepareBatch(ctx context.Context, query string, opts ...driver.PrepareBatchOption) (driver.Batch, error)
	Close() error
}

// ClickHouse inserts rows with the native batch protocol, one batch per call.
type ClickHouse struct {
	conn batchConn
}

// DialClickHouse returns a Dialer that opens and pings a ClickHouse connection.
func DialClickHouse(cfg config.ClickHouse, logger *logrus.Logger) Dialer {
	return func(ctx context.Context) (Inserter, error) {
		opts, err := clickhouse.ParseDSN(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("invalid ClickHouse URL: %w", err)
		}
		opts.Auth = clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.User,
			Password: cfg.Password,
		}

		conn, err := clickhouse.Open(opts)
		if err != nil {
			return nil, fmt.Errorf("failed to open ClickHouse connection: %w", err)
		}
		if err := conn.Ping(ctx); err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
		}
		if version, err := conn.ServerVersion(); err == nil {
			logger.WithField("version", version.String()).Info("Connected to ClickHouse")
		}
		return &ClickHouse{conn: conn}, nil
	}
}

func (c *ClickHouse) Insert(ctx context.Context, table string, columns []string, rows [][]any) error {
	query := fmt.Sprintf("INSERT INTO %s (%s)", table, strings.Join(columns, ", "))
	batch, err := c.conn.PrepareBatch(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to prepare batch: %w", err)
	}
	for _, row := range rows {
		if err := batch.Append(row...); err != nil {
			batch.Abort()
			return fmt.Errorf("failed to append row: %w", err)
		}
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send batch: %w", err)
	}
	return nil
}

func (c *ClickHouse) Close() error {
	return c.conn.Close()
}
