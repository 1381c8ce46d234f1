package repository

import (
	"context"
	"database/sql"
	"errors"
	"net"

	"github.com/hitoshi/sipa/internal/model"
)

// PostgresAccountRepo はPostgreSQLを使用したアカウントリポジトリ。
type PostgresAccountRepo struct {
	db *sql.DB
}

// NewPostgresAccountRepo はPostgresAccountRepoを生成する。
func NewPostgresAccountRepo(db *sql.DB) *PostgresAccountRepo {
	return &PostgresAccountRepo{db: db}
}

const selectUserInfo = `
	SELECT a.id, a.login, a.name, a.status, a.address,
	       COALESCE(host(h.ip), ''), COALESCE(h.mac::text, ''), COALESCE(h.hostname, '')
	FROM accounts a`

// FindByUID はディビジョン内のログイン名でアカウントを取得する。
// 端末が複数ある場合は最初に登録されたものを返す。
func (r *PostgresAccountRepo) FindByUID(ctx context.Context, division, uid string) (*model.UserInfo, error) {
	row := r.db.QueryRowContext(ctx,
		selectUserInfo+`
		 LEFT JOIN hosts h ON h.account_id = a.id
		 WHERE a.division = $1 AND a.login = $2
		 ORDER BY h.id
		 LIMIT 1`,
		division, uid,
	)
	return scanUserInfo(row, "failed to find account by uid")
}

// FindByIP は端末のIPアドレスでアカウントを取得する。
func (r *PostgresAccountRepo) FindByIP(ctx context.Context, division, ip string) (*model.UserInfo, error) {
	if net.ParseIP(ip) == nil {
		return nil, model.ErrQueryEmpty
	}

	row := r.db.QueryRowContext(ctx,
		selectUserInfo+`
		 JOIN hosts h ON h.account_id = a.id
		 WHERE a.division = $1 AND h.ip = $2::inet`,
		division, ip,
	)
	return scanUserInfo(row, "failed to find account by ip")
}

// UpdateMAC はIPアドレスに登録されたMACアドレスを変更する。
func (r *PostgresAccountRepo) UpdateMAC(ctx context.Context, ip, oldMAC, newMAC string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE hosts SET mac = $3::macaddr, updated_at = now()
		 WHERE ip = $1::inet AND mac = $2::macaddr`,
		ip, oldMAC, newMAC,
	)
	if err != nil {
		return wrapDBError("failed to update mac address", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return wrapDBError("failed to get rows affected", err)
	}
	if rowsAffected == 0 {
		return model.ErrQueryEmpty
	}
	return nil
}

func scanUserInfo(row *sql.Row, op string) (*model.UserInfo, error) {
	info := &model.UserInfo{}
	err := row.Scan(&info.ID, &info.Login, &info.Name, &info.Status, &info.Address,
		&info.IP, &info.MAC, &info.Hostname)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrQueryEmpty
	}
	if err != nil {
		return nil, wrapDBError(op, err)
	}
	return info, nil
}

// compile-time interface check
var _ AccountRepository = (*PostgresAccountRepo)(nil)
