package division

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/hitoshi/sipa/internal/model"
)

// sampleMaxCredit はサンプルユーザーのクレジット上限（MiB）。
const sampleMaxCredit = 63 * 1024

// SampleUser は設定から読み込むデモ用ユーザー。
type SampleUser struct {
	UID          string
	Name         string
	IP           string
	PasswordHash string
}

// ParseSampleUsers はSAMPLE_USERS形式の文字列をパースする。
// 形式: "uid:表示名:IP:bcryptハッシュ" をカンマ区切りで列挙する。
func ParseSampleUsers(spec string) ([]SampleUser, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return nil, nil
	}

	var users []SampleUser
	for _, entry := range strings.Split(spec, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.SplitN(entry, ":", 4)
		if len(parts) != 4 {
			return nil, fmt.Errorf("invalid sample user entry %q: want uid:name:ip:hash", entry)
		}
		u := SampleUser{
			UID:          parts[0],
			Name:         parts[1],
			IP:           parts[2],
			PasswordHash: parts[3],
		}
		if u.UID == "" {
			return nil, fmt.Errorf("invalid sample user entry %q: empty uid", entry)
		}
		if net.ParseIP(u.IP) == nil {
			return nil, fmt.Errorf("invalid sample user entry %q: bad ip %q", entry, u.IP)
		}
		if _, err := bcrypt.Cost([]byte(u.PasswordHash)); err != nil {
			return nil, fmt.Errorf("invalid sample user entry %q: %w", entry, err)
		}
		users = append(users, u)
	}
	return users, nil
}

// SampleBackend は外部システムを使わないデモ用ディビジョンのバックエンド。
// 通信量は日付から決定的に生成する。
type SampleBackend struct {
	division string
	users    []SampleUser
	now      func() time.Time
}

// NewSampleBackend はSampleBackendを生成する。
func NewSampleBackend(division string, users []SampleUser) *SampleBackend {
	return &SampleBackend{
		division: division,
		users:    users,
		now:      time.Now,
	}
}

// FromIP はIPアドレスが一致するサンプルユーザーを返す。
func (b *SampleBackend) FromIP(ctx context.Context, ip string) (Account, error) {
	for i := range b.users {
		if b.users[i].IP == ip {
			return b.account(i), nil
		}
	}
	return nil, model.ErrUserNotFound
}

// Authenticate はbcryptハッシュでパスワードを検証する。
func (b *SampleBackend) Authenticate(ctx context.Context, username, password string) (Account, error) {
	i, ok := b.index(username)
	if !ok {
		return nil, model.ErrUserNotFound
	}

	err := bcrypt.CompareHashAndPassword([]byte(b.users[i].PasswordHash), []byte(password))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return nil, model.ErrPasswordInvalid
	}
	if err != nil {
		return nil, fmt.Errorf("failed to compare sample password: %w", err)
	}

	return b.account(i), nil
}

// Get はUIDからサンプルユーザーを返す。
func (b *SampleBackend) Get(ctx context.Context, uid string) (Account, error) {
	i, ok := b.index(uid)
	if !ok {
		return nil, model.ErrUserNotFound
	}
	return b.account(i), nil
}

// Accepts はaccがサンプルアカウントかを判定する。
func (b *SampleBackend) Accepts(acc Account) bool {
	sa, ok := acc.(*sampleAccount)
	return ok && sa.backend == b
}

func (b *SampleBackend) index(uid string) (int, bool) {
	for i := range b.users {
		if b.users[i].UID == uid {
			return i, true
		}
	}
	return 0, false
}

func (b *SampleBackend) account(i int) *sampleAccount {
	return &sampleAccount{backend: b, user: b.users[i], id: int64(10000 + i)}
}

// sampleAccount はSampleBackendのアカウント。
type sampleAccount struct {
	backend *SampleBackend
	user    SampleUser
	id      int64
}

func (a *sampleAccount) UID() string      { return a.user.UID }
func (a *sampleAccount) Name() string     { return a.user.Name }
func (a *sampleAccount) Division() string { return a.backend.division }

// ReadOnly はサンプルアカウントが書き込み先を持たないことを示す。
func (a *sampleAccount) ReadOnly() bool { return true }

func (a *sampleAccount) Info(ctx context.Context) (model.UserInfo, error) {
	return model.UserInfo{
		ID:       a.id,
		Login:    a.user.UID,
		Name:     a.user.Name,
		Status:   "OK",
		Address:  "Musterstraße 1, Zimmer 42",
		IP:       a.user.IP,
		MAC:      "aa:bb:cc:dd:ee:ff",
		Hostname: a.user.UID,
		Mail:     a.user.UID + "@example.com",
	}, nil
}

func (a *sampleAccount) CurrentCredit(ctx context.Context) (model.Credit, error) {
	traffic, err := a.TrafficData(ctx)
	if err != nil {
		return model.Credit{}, err
	}
	return model.Credit{Amount: traffic.Credit, Max: sampleMaxCredit}, nil
}

// TrafficData は直近7日分の通信量を日付から決定的に生成する。
func (a *sampleAccount) TrafficData(ctx context.Context) (model.TrafficData, error) {
	today := a.backend.now().Truncate(24 * time.Hour)

	var days []model.TrafficDay
	credit := float64(sampleMaxCredit)
	for i := 6; i >= 0; i-- {
		day := today.AddDate(0, 0, -i)
		seed := float64(day.YearDay()%7 + 1)
		d := model.TrafficDay{
			Date:   day,
			Input:  seed * 310,
			Output: seed * 95,
		}
		credit = credit - d.Input - d.Output + 3*1024
		if credit > sampleMaxCredit {
			credit = sampleMaxCredit
		}
		d.Credit = credit
		days = append(days, d)
	}

	return model.TrafficData{Days: days, Credit: credit}, nil
}
