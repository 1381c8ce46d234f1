package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/hitoshi/sipa/internal/model"
)

// PostgresTrafficRepo はPostgreSQLを使用した通信量リポジトリ。
type PostgresTrafficRepo struct {
	db *sql.DB
}

// NewPostgresTrafficRepo はPostgresTrafficRepoを生成する。
func NewPostgresTrafficRepo(db *sql.DB) *PostgresTrafficRepo {
	return &PostgresTrafficRepo{db: db}
}

// RecentTraffic は今日を含む直近days日分の日別通信量を返す。
func (r *PostgresTrafficRepo) RecentTraffic(ctx context.Context, accountID int64, days int) ([]model.TrafficDay, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT day, input_mib, output_mib, credit_mib
		 FROM traffic_days
		 WHERE account_id = $1 AND day > current_date - $2::int
		 ORDER BY day`,
		accountID, days,
	)
	if err != nil {
		return nil, wrapDBError("failed to query traffic", err)
	}
	defer rows.Close()

	var out []model.TrafficDay
	for rows.Next() {
		var d model.TrafficDay
		if err := rows.Scan(&d.Date, &d.Input, &d.Output, &d.Credit); err != nil {
			return nil, wrapDBError("failed to scan traffic", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBError("failed to iterate traffic", err)
	}
	return out, nil
}

// Credit は現在のクレジットを返す。行がない場合はmodel.ErrQueryEmptyを返す。
func (r *PostgresTrafficRepo) Credit(ctx context.Context, accountID int64) (model.Credit, error) {
	var c model.Credit
	err := r.db.QueryRowContext(ctx,
		`SELECT amount_mib, max_mib FROM credits WHERE account_id = $1`,
		accountID,
	).Scan(&c.Amount, &c.Max)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Credit{}, model.ErrQueryEmpty
	}
	if err != nil {
		return model.Credit{}, wrapDBError("failed to query credit", err)
	}
	return c, nil
}

// compile-time interface check
var _ TrafficRepository = (*PostgresTrafficRepo)(nil)

// UsageStore はアカウントと通信量のリポジトリをまとめたもの。
// ディレクトリ連携ディビジョンのバックエンドに渡す。
type UsageStore struct {
	*PostgresAccountRepo
	*PostgresTrafficRepo
}

// NewUsageStore はUsageStoreを生成する。
func NewUsageStore(db *sql.DB) *UsageStore {
	return &UsageStore{
		PostgresAccountRepo: NewPostgresAccountRepo(db),
		PostgresTrafficRepo: NewPostgresTrafficRepo(db),
	}
}
