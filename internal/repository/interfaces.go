// Package repository はPostgreSQL上のアカウント・通信量・セッションデータへのアクセスを提供する。
//
// 接続障害はmodel.DatabaseUnavailableErrorに、結果が空の問い合わせは
// model.ErrQueryEmptyに変換して返す。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/sipa/internal/model"
)

// AccountRepository はアカウントと登録端末の永続化インターフェース。
type AccountRepository interface {
	// FindByUID はディビジョン内のログイン名でアカウントを取得する。
	FindByUID(ctx context.Context, division, uid string) (*model.UserInfo, error)

	// FindByIP は端末のIPアドレスでアカウントを取得する。
	FindByIP(ctx context.Context, division, ip string) (*model.UserInfo, error)

	// UpdateMAC はIPアドレスに登録されたMACアドレスをoldMACからnewMACへ変更する。
	// 該当する端末がない場合はmodel.ErrQueryEmptyを返す。
	UpdateMAC(ctx context.Context, ip, oldMAC, newMAC string) error
}

// TrafficRepository は通信量とクレジットの参照インターフェース。
type TrafficRepository interface {
	// RecentTraffic は直近days日分の日別通信量を日付昇順で返す。
	RecentTraffic(ctx context.Context, accountID int64, days int) ([]model.TrafficDay, error)

	// Credit は現在のクレジットを返す。
	Credit(ctx context.Context, accountID int64) (model.Credit, error)
}

// SessionRepository はサーバーサイドセッションの永続化インターフェース。
type SessionRepository interface {
	// Save はセッションデータを作成または上書きする。
	Save(ctx context.Context, id string, data []byte, expiresAt time.Time) error

	// Find は有効期限内のセッションデータを返す。存在しない場合はnilを返す。
	Find(ctx context.Context, id string) ([]byte, error)

	// Delete は指定IDのセッションを削除する。
	Delete(ctx context.Context, id string) error

	// DeleteExpired は期限切れのセッションを削除し、削除件数を返す。
	DeleteExpired(ctx context.Context) (int64, error)
}
