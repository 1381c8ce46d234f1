// Package directory はLDAPディレクトリサービスへのアクセスを提供する。
//
// ユーザーとしてのバインドで資格情報を検証し、パスワード変更（Password Modify拡張操作）と
// mail属性の書き換えを行う。ネットワーク障害はmodel.DirectoryUnavailableErrorに変換する。
package directory

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/go-ldap/ldap/v3"

	"github.com/hitoshi/sipa/internal/model"
)

// Config はLDAP接続の設定。
type Config struct {
	URL          string
	SearchBase   string
	BindDN       string
	BindPassword string
	Timeout      time.Duration
}

// conn はClientが使用するLDAPコネクション操作。テストで差し替える。
type conn interface {
	Bind(username, password string) error
	Search(req *ldap.SearchRequest) (*ldap.SearchResult, error)
	PasswordModify(req *ldap.PasswordModifyRequest) (*ldap.PasswordModifyResult, error)
	Modify(req *ldap.ModifyRequest) error
	Close()
}

// ldapConn は*ldap.Connをconnに適合させる。
type ldapConn struct {
	c *ldap.Conn
}

func (l *ldapConn) Bind(username, password string) error { return l.c.Bind(username, password) }
func (l *ldapConn) Search(req *ldap.SearchRequest) (*ldap.SearchResult, error) {
	return l.c.Search(req)
}
func (l *ldapConn) PasswordModify(req *ldap.PasswordModifyRequest) (*ldap.PasswordModifyResult, error) {
	return l.c.PasswordModify(req)
}
func (l *ldapConn) Modify(req *ldap.ModifyRequest) error { return l.c.Modify(req) }
func (l *ldapConn) Close()                               { l.c.Close() }

// Client はLDAPディレクトリのクライアント。
// 操作ごとに接続し、終了時に切断する。
type Client struct {
	cfg  Config
	dial func(ctx context.Context) (conn, error)
}

// NewClient はClientを生成する。
func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	c := &Client{cfg: cfg}
	c.dial = c.dialLDAP
	return c
}

func (c *Client) dialLDAP(ctx context.Context) (conn, error) {
	dialer := &net.Dialer{Timeout: c.cfg.Timeout}
	lc, err := ldap.DialURL(c.cfg.URL, ldap.DialWithDialer(dialer))
	if err != nil {
		return nil, err
	}
	lc.SetTimeout(c.cfg.Timeout)
	return &ldapConn{c: lc}, nil
}

// open は接続し、ctxのキャンセル時に接続を閉じるよう登録する。
func (c *Client) open(ctx context.Context) (conn, func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	cn, err := c.dial(ctx)
	if err != nil {
		return nil, nil, &model.DirectoryUnavailableError{Addr: c.cfg.URL, Err: err}
	}
	stop := context.AfterFunc(ctx, cn.Close)
	return cn, func() {
		if stop() {
			cn.Close()
		}
	}, nil
}

// Authenticate はuidのエントリを検索し、そのDNとpasswordでバインドする。
func (c *Client) Authenticate(ctx context.Context, uid, password string) (*model.DirectoryEntry, error) {
	// 空パスワードは匿名バインドとして成功してしまう
	if password == "" {
		return nil, model.ErrPasswordInvalid
	}

	cn, done, err := c.open(ctx)
	if err != nil {
		return nil, err
	}
	defer done()

	entry, err := c.find(ctx, cn, uid)
	if err != nil {
		return nil, err
	}
	if err := cn.Bind(entry.DN, password); err != nil {
		return nil, c.classify(ctx, err)
	}
	return entry, nil
}

// Lookup はuidのエントリを返す。
func (c *Client) Lookup(ctx context.Context, uid string) (*model.DirectoryEntry, error) {
	cn, done, err := c.open(ctx)
	if err != nil {
		return nil, err
	}
	defer done()

	return c.find(ctx, cn, uid)
}

// ChangePassword はユーザー自身の権限でパスワードを変更する。
func (c *Client) ChangePassword(ctx context.Context, uid, oldPassword, newPassword string) error {
	if oldPassword == "" {
		return model.ErrPasswordInvalid
	}

	cn, done, err := c.open(ctx)
	if err != nil {
		return err
	}
	defer done()

	entry, err := c.find(ctx, cn, uid)
	if err != nil {
		return err
	}
	if err := cn.Bind(entry.DN, oldPassword); err != nil {
		return c.classify(ctx, err)
	}

	req := ldap.NewPasswordModifyRequest(entry.DN, oldPassword, newPassword)
	if _, err := cn.PasswordModify(req); err != nil {
		return c.classify(ctx, err)
	}
	return nil
}

// ChangeEmail はユーザー自身の権限でmail属性を置き換える。
// mailが空の場合は属性を削除する。
func (c *Client) ChangeEmail(ctx context.Context, uid, password, mail string) error {
	if password == "" {
		return model.ErrPasswordInvalid
	}

	cn, done, err := c.open(ctx)
	if err != nil {
		return err
	}
	defer done()

	entry, err := c.find(ctx, cn, uid)
	if err != nil {
		return err
	}
	if err := cn.Bind(entry.DN, password); err != nil {
		return c.classify(ctx, err)
	}

	var values []string
	if mail != "" {
		values = []string{mail}
	}
	req := ldap.NewModifyRequest(entry.DN, nil)
	req.Replace("mail", values)
	if err := cn.Modify(req); err != nil {
		return c.classify(ctx, err)
	}
	return nil
}

// find はサービスアカウント（未設定なら匿名）でuidを検索する。
func (c *Client) find(ctx context.Context, cn conn, uid string) (*model.DirectoryEntry, error) {
	if uid == "" {
		return nil, model.ErrUserNotFound
	}
	if c.cfg.BindDN != "" {
		if err := cn.Bind(c.cfg.BindDN, c.cfg.BindPassword); err != nil {
			return nil, fmt.Errorf("failed to bind service account: %w", c.classify(ctx, err))
		}
	}

	req := ldap.NewSearchRequest(
		c.cfg.SearchBase,
		ldap.ScopeWholeSubtree, ldap.NeverDerefAliases, 2, int(c.cfg.Timeout/time.Second), false,
		fmt.Sprintf("(uid=%s)", ldap.EscapeFilter(uid)),
		[]string{"uid", "cn", "mail"},
		nil,
	)
	res, err := cn.Search(req)
	if err != nil {
		return nil, c.classify(ctx, err)
	}
	if len(res.Entries) != 1 {
		return nil, model.ErrUserNotFound
	}

	e := res.Entries[0]
	return &model.DirectoryEntry{
		DN:   e.DN,
		UID:  e.GetAttributeValue("uid"),
		Name: e.GetAttributeValue("cn"),
		Mail: e.GetAttributeValue("mail"),
	}, nil
}

// classify はLDAPエラーをドメインエラーに変換する。
// 呼び出し元のキャンセルで接続が閉じられた場合はctxのエラーをそのまま返す。
func (c *Client) classify(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	switch {
	case ldap.IsErrorWithCode(err, ldap.LDAPResultInvalidCredentials):
		return model.ErrPasswordInvalid
	case ldap.IsErrorWithCode(err, ldap.LDAPResultInsufficientAccessRights):
		return model.ErrDirectoryRights
	case ldap.IsErrorWithCode(err, ldap.LDAPResultNoSuchObject):
		return model.ErrUserNotFound
	case ldap.IsErrorWithCode(err, ldap.ErrorNetwork),
		ldap.IsErrorWithCode(err, ldap.LDAPResultTimeLimitExceeded),
		ldap.IsErrorWithCode(err, ldap.LDAPResultBusy),
		ldap.IsErrorWithCode(err, ldap.LDAPResultUnavailable):
		return &model.DirectoryUnavailableError{Addr: c.cfg.URL, Err: err}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return &model.DirectoryUnavailableError{Addr: c.cfg.URL, Err: err}
	}
	return fmt.Errorf("ldap operation failed: %w", err)
}
