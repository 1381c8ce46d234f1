// Package usage はトップページに表示するクレジットゲージのデータを集める。
package usage

import (
	"context"
	"errors"
	"log/slog"

	"github.com/hitoshi/sipa/internal/division"
	"github.com/hitoshi/sipa/internal/model"
)

// ゲージに表示するエラーメッセージ。
const (
	MsgQueryFailed = "Fehler bei der Abfrage der Daten"
	MsgForeignIP   = "Diese IP gehört nicht zu unserem Netzwerk"
)

// Gauge はクレジットゲージの表示データ。Errorが空でなければCreditはnil。
type Gauge struct {
	Credit *model.Credit
	Error  string
}

// UserResolver はIPアドレスからユーザーを特定する。
type UserResolver interface {
	UserFromIP(ctx context.Context, ip string) (division.Account, error)
}

// Service はクレジットゲージのデータを取得する。
type Service struct {
	resolver UserResolver
}

// NewService はServiceを生成する。
func NewService(resolver UserResolver) *Service {
	return &Service{resolver: resolver}
}

// QueryGauge はprincipal（nilの場合はipから特定したユーザー）のクレジットを返す。
// 失敗はエラーとして返さず、Gauge.Errorに表示用メッセージを設定する。
func (s *Service) QueryGauge(ctx context.Context, principal division.Account, ip string) Gauge {
	acc := principal
	if acc == nil {
		var err error
		acc, err = s.resolver.UserFromIP(ctx, ip)
		if errors.Is(err, model.ErrUserNotFound) {
			return Gauge{Error: MsgForeignIP}
		}
		if err != nil {
			slog.Warn("credit gauge: failed to resolve user from ip",
				slog.String("ip", ip),
				slog.String("error", err.Error()),
			)
			return Gauge{Error: MsgQueryFailed}
		}
	}

	credit, err := acc.CurrentCredit(ctx)
	if err != nil {
		slog.Warn("credit gauge: failed to query credit",
			slog.String("division", acc.Division()),
			slog.String("uid", acc.UID()),
			slog.String("error", err.Error()),
		)
		return Gauge{Error: MsgQueryFailed}
	}
	return Gauge{Credit: &credit}
}
