// Package division は寮ネットワーク（ディビジョン）のレジストリと、
// ディビジョンごとのユーザー解決を提供する。
//
// 各ディビジョンはUserBackendを持ち、ログイン・IPからのユーザー特定・
// 現在ユーザーの再取得をディビジョン固有の方法で行う。
package division

import (
	"context"
	"fmt"

	"github.com/hitoshi/sipa/internal/model"
)

// Account はディビジョンに属するユーザーアカウント。
// ディレクトリサービスとデータベースに対する読み書きのファサードであり、
// このシステム自身は永続化しない。
type Account interface {
	UID() string
	Name() string
	Division() string

	// Info はユーザースイートに表示するアカウント情報を返す。
	// データが存在しない場合はmodel.ErrQueryEmptyを返す。
	Info(ctx context.Context) (model.UserInfo, error)

	// CurrentCredit は現在のクレジットを返す。
	CurrentCredit(ctx context.Context) (model.Credit, error)

	// TrafficData は直近の日別通信量を返す。
	TrafficData(ctx context.Context) (model.TrafficData, error)
}

// ReadOnly はディレクトリとデータベースへの書き込みを持たないアカウントが実装する。
type ReadOnly interface {
	ReadOnly() bool
}

// IsReadOnly はaccがパスワード・メール・MACアドレスの変更を受け付けないかを返す。
func IsReadOnly(acc Account) bool {
	ro, ok := acc.(ReadOnly)
	return ok && ro.ReadOnly()
}

// UserBackend はディビジョンごとのユーザー実装。
type UserBackend interface {
	// FromIP はIPアドレスに紐づくユーザーを返す。
	// 見つからない場合はmodel.ErrUserNotFoundを返す。
	FromIP(ctx context.Context, ip string) (Account, error)

	// Authenticate は資格情報を検証する。
	// model.ErrUserNotFoundとmodel.ErrPasswordInvalidを区別して返す。
	Authenticate(ctx context.Context, username, password string) (Account, error)

	// Get はログイン済みユーザーをUIDから再取得する。
	Get(ctx context.Context, uid string) (Account, error)

	// Accepts はaccがこのバックエンドの生成したアカウント型かを判定する。
	Accepts(acc Account) bool
}

// Division は寮ネットワーク1つを表す。起動後は変更しない。
type Division struct {
	Name        string
	DisplayName string
	Backend     UserBackend
}

// Registry は登録済みディビジョンの固定順リスト。
type Registry struct {
	divisions []*Division
	fallback  *Division
}

// NewRegistry はRegistryを生成する。
// fallbackはFromIPが返すディビジョン名で、登録済みである必要がある。
func NewRegistry(fallback string, divisions ...*Division) (*Registry, error) {
	r := &Registry{}
	seen := make(map[string]bool, len(divisions))
	for _, d := range divisions {
		if d == nil || d.Name == "" || d.Backend == nil {
			return nil, fmt.Errorf("invalid division definition: %+v", d)
		}
		if seen[d.Name] {
			return nil, fmt.Errorf("duplicate division name: %s", d.Name)
		}
		seen[d.Name] = true
		r.divisions = append(r.divisions, d)
	}

	fb, ok := r.FromName(fallback)
	if !ok {
		return nil, fmt.Errorf("fallback division %q is not registered", fallback)
	}
	r.fallback = fb

	return r, nil
}

// All は登録順のディビジョン一覧を返す。
func (r *Registry) All() []*Division {
	out := make([]*Division, len(r.divisions))
	copy(out, r.divisions)
	return out
}

// FromName は名前に一致するディビジョンを返す。未登録の名前ではfalseを返す。
func (r *Registry) FromName(name string) (*Division, bool) {
	for _, d := range r.divisions {
		if d.Name == name {
			return d, true
		}
	}
	return nil, false
}

// FromIP はIPアドレスを所有するディビジョンを返す。
//
// IPからディビジョンへの対応付けは未確定のため、現状は入力に関わらず
// フォールバックのディビジョンを返す。
func (r *Registry) FromIP(ip string) *Division {
	return r.fallback
}

// UserFromIP はIPアドレスに紐づくユーザーを返す。
// バックエンドのエラー（主にmodel.ErrUserNotFound）はそのまま返す。
func (r *Registry) UserFromIP(ctx context.Context, ip string) (Account, error) {
	return r.FromIP(ip).Backend.FromIP(ctx, ip)
}
