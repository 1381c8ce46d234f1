package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// PostgresSessionRepo はPostgreSQLを使用したセッションリポジトリ。
type PostgresSessionRepo struct {
	db *sql.DB
}

// NewPostgresSessionRepo はPostgresSessionRepoを生成する。
func NewPostgresSessionRepo(db *sql.DB) *PostgresSessionRepo {
	return &PostgresSessionRepo{db: db}
}

// Save はセッションデータをUPSERTする。
func (r *PostgresSessionRepo) Save(ctx context.Context, id string, data []byte, expiresAt time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO sessions (id, data, expires_at, created_at)
		 VALUES ($1, $2, $3, now())
		 ON CONFLICT (id) DO UPDATE SET data = EXCLUDED.data, expires_at = EXCLUDED.expires_at`,
		id, data, expiresAt,
	)
	if err != nil {
		return wrapDBError("failed to save session", err)
	}
	return nil
}

// Find は有効期限内のセッションデータを返す。期限切れの場合はnilを返す。
func (r *PostgresSessionRepo) Find(ctx context.Context, id string) ([]byte, error) {
	var data []byte
	err := r.db.QueryRowContext(ctx,
		`SELECT data FROM sessions WHERE id = $1 AND expires_at > now()`,
		id,
	).Scan(&data)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, wrapDBError("failed to find session", err)
	}
	return data, nil
}

// Delete は指定IDのセッションを削除する。
func (r *PostgresSessionRepo) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = $1`, id)
	if err != nil {
		return wrapDBError("failed to delete session", err)
	}
	return nil
}

// DeleteExpired は期限切れのセッションを削除する。
func (r *PostgresSessionRepo) DeleteExpired(ctx context.Context) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= now()`)
	if err != nil {
		return 0, wrapDBError("failed to delete expired sessions", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, wrapDBError("failed to get rows affected", err)
	}
	return n, nil
}

// compile-time interface check
var _ SessionRepository = (*PostgresSessionRepo)(nil)
