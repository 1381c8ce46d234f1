package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/hitoshi/sipa/internal/model"
)

// コネクションプールの設定。
const (
	maxOpenConns    = 10
	maxIdleConns    = 5
	connMaxLifetime = 30 * time.Minute
)

// Open はPostgreSQLデータベース接続を開く。
// sql.Openは接続を試行しないため、実際の接続確認にはPingを使用すること。
func Open(databaseURL string) (*sql.DB, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(connMaxLifetime)

	return db, nil
}

// Pinger は接続確認が可能なDB。
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Ping は接続を確認し、失敗時はmodel.DatabaseUnavailableErrorを返す。
func Ping(ctx context.Context, db Pinger) error {
	if err := db.PingContext(ctx); err != nil {
		return &model.DatabaseUnavailableError{Err: err}
	}
	return nil
}
