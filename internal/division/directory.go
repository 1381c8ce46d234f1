package division

import (
	"context"
	"errors"
	"fmt"

	"github.com/hitoshi/sipa/internal/model"
)

// trafficDays はユーザースイートに表示する通信量の日数。
const trafficDays = 7

// Directory はDirectoryBackendが必要とするディレクトリサービス操作。
type Directory interface {
	Authenticate(ctx context.Context, uid, password string) (*model.DirectoryEntry, error)
	Lookup(ctx context.Context, uid string) (*model.DirectoryEntry, error)
}

// UsageStore はDirectoryBackendが必要とするデータベース操作。
// 行が存在しない場合はmodel.ErrQueryEmptyを返す。
type UsageStore interface {
	FindByUID(ctx context.Context, division, uid string) (*model.UserInfo, error)
	FindByIP(ctx context.Context, division, ip string) (*model.UserInfo, error)
	RecentTraffic(ctx context.Context, accountID int64, days int) ([]model.TrafficDay, error)
	Credit(ctx context.Context, accountID int64) (model.Credit, error)
}

// DirectoryBackend はLDAPで認証し、通信量をデータベースから取得するバックエンド。
// 複数のディビジョンがdivision名を変えて共有する。
type DirectoryBackend struct {
	division  string
	directory Directory
	store     UsageStore
}

// NewDirectoryBackend はDirectoryBackendを生成する。
func NewDirectoryBackend(division string, directory Directory, store UsageStore) *DirectoryBackend {
	return &DirectoryBackend{
		division:  division,
		directory: directory,
		store:     store,
	}
}

// FromIP はデータベースのホスト情報からユーザーを特定する。
func (b *DirectoryBackend) FromIP(ctx context.Context, ip string) (Account, error) {
	info, err := b.store.FindByIP(ctx, b.division, ip)
	if errors.Is(err, model.ErrQueryEmpty) {
		return nil, model.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find account by ip: %w", err)
	}

	return &directoryAccount{
		backend: b,
		uid:     info.Login,
		name:    info.Name,
	}, nil
}

// Authenticate はディレクトリへのバインドで資格情報を検証する。
func (b *DirectoryBackend) Authenticate(ctx context.Context, username, password string) (Account, error) {
	entry, err := b.directory.Authenticate(ctx, username, password)
	if err != nil {
		return nil, err
	}
	return b.fromEntry(entry), nil
}

// Get はディレクトリからUIDのエントリを再取得する。
func (b *DirectoryBackend) Get(ctx context.Context, uid string) (Account, error) {
	entry, err := b.directory.Lookup(ctx, uid)
	if err != nil {
		return nil, err
	}
	return b.fromEntry(entry), nil
}

// Accepts はaccがこのバックエンドのアカウントかを判定する。
func (b *DirectoryBackend) Accepts(acc Account) bool {
	da, ok := acc.(*directoryAccount)
	return ok && da.backend == b
}

func (b *DirectoryBackend) fromEntry(entry *model.DirectoryEntry) *directoryAccount {
	return &directoryAccount{
		backend: b,
		uid:     entry.UID,
		name:    entry.Name,
		mail:    entry.Mail,
	}
}

// directoryAccount はDirectoryBackendのアカウント。
type directoryAccount struct {
	backend *DirectoryBackend
	uid     string
	name    string
	mail    string
}

func (a *directoryAccount) UID() string      { return a.uid }
func (a *directoryAccount) Name() string     { return a.name }
func (a *directoryAccount) Division() string { return a.backend.division }

func (a *directoryAccount) Info(ctx context.Context) (model.UserInfo, error) {
	info, err := a.backend.store.FindByUID(ctx, a.backend.division, a.uid)
	if err != nil {
		return model.UserInfo{}, err
	}
	out := *info
	if out.Name == "" {
		out.Name = a.name
	}
	out.Mail = a.mail
	return out, nil
}

func (a *directoryAccount) CurrentCredit(ctx context.Context) (model.Credit, error) {
	info, err := a.backend.store.FindByUID(ctx, a.backend.division, a.uid)
	if err != nil {
		return model.Credit{}, err
	}
	return a.backend.store.Credit(ctx, info.ID)
}

func (a *directoryAccount) TrafficData(ctx context.Context) (model.TrafficData, error) {
	info, err := a.backend.store.FindByUID(ctx, a.backend.division, a.uid)
	if err != nil {
		return model.TrafficData{}, err
	}

	days, err := a.backend.store.RecentTraffic(ctx, info.ID, trafficDays)
	if err != nil {
		return model.TrafficData{}, err
	}
	credit, err := a.backend.store.Credit(ctx, info.ID)
	if err != nil {
		return model.TrafficData{}, err
	}

	return model.TrafficData{Days: days, Credit: credit.Amount}, nil
}
