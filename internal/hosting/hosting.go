// Package hosting はユーザーごとのホスティング用データベースを管理する。
//
// ユーザーのUIDと同名のロールとデータベースをPostgreSQLサーバー上に作成・削除する。
package hosting

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hitoshi/sipa/internal/model"
)

// ErrInvalidName はUIDがデータベース名として使えないことを表す。
var ErrInvalidName = errors.New("uid is not usable as a database name")

var validName = regexp.MustCompile(`^[a-z_][a-z0-9_]{0,62}$`)

// pool はServiceが使用するpgxpoolの操作。テストで差し替える。
type pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Service はホスティング用データベースを管理する。
type Service struct {
	pool pool
}

// Open はホスティング用PostgreSQLサーバーへの接続プールを生成する。
// 接続はクエリ実行時に確立される。
func Open(ctx context.Context, databaseURL string) (*Service, func(), error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse hosting database url: %w", err)
	}
	cfg.MaxConns = 4

	p, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create hosting database pool: %w", err)
	}
	return &Service{pool: p}, p.Close, nil
}

// HasDatabase はuidのデータベースが存在するかを返す。
func (s *Service) HasDatabase(ctx context.Context, uid string) (bool, error) {
	name, err := dbName(uid)
	if err != nil {
		return false, err
	}

	var exists bool
	err = s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM pg_database WHERE datname = $1)`, name,
	).Scan(&exists)
	if err != nil {
		return false, classify("HasDatabase", err)
	}
	return exists, nil
}

// Create はuidのロールとデータベースを作成する。
func (s *Service) Create(ctx context.Context, uid, password string) error {
	name, err := dbName(uid)
	if err != nil {
		return err
	}
	ident := pgx.Identifier{name}.Sanitize()

	if _, err := s.pool.Exec(ctx, fmt.Sprintf("CREATE ROLE %s LOGIN PASSWORD %s", ident, quoteLiteral(password))); err != nil {
		return classify("Create", err)
	}
	if _, err := s.pool.Exec(ctx, fmt.Sprintf("CREATE DATABASE %s OWNER %s", ident, ident)); err != nil {
		// ロールだけ残ると次回のCREATE ROLEが失敗し続ける
		if _, dropErr := s.pool.Exec(context.WithoutCancel(ctx), fmt.Sprintf("DROP ROLE IF EXISTS %s", ident)); dropErr != nil {
			slog.Error("failed to drop role after create failure",
				slog.String("uid", uid),
				slog.String("error", dropErr.Error()),
			)
		}
		return classify("Create", err)
	}

	slog.Info("hosting database created", slog.String("uid", uid))
	return nil
}

// ChangePassword はuidのロールのパスワードを変更する。
func (s *Service) ChangePassword(ctx context.Context, uid, password string) error {
	name, err := dbName(uid)
	if err != nil {
		return err
	}

	sql := fmt.Sprintf("ALTER ROLE %s PASSWORD %s", pgx.Identifier{name}.Sanitize(), quoteLiteral(password))
	if _, err := s.pool.Exec(ctx, sql); err != nil {
		return classify("ChangePassword", err)
	}

	slog.Info("hosting database password changed", slog.String("uid", uid))
	return nil
}

// Drop はuidのデータベースとロールを削除する。存在しない場合も成功とする。
func (s *Service) Drop(ctx context.Context, uid string) error {
	name, err := dbName(uid)
	if err != nil {
		return err
	}
	ident := pgx.Identifier{name}.Sanitize()

	if _, err := s.pool.Exec(ctx, fmt.Sprintf("DROP DATABASE IF EXISTS %s", ident)); err != nil {
		return classify("Drop", err)
	}
	if _, err := s.pool.Exec(ctx, fmt.Sprintf("DROP ROLE IF EXISTS %s", ident)); err != nil {
		return classify("Drop", err)
	}

	slog.Info("hosting database dropped", slog.String("uid", uid))
	return nil
}

func dbName(uid string) (string, error) {
	name := strings.ToLower(uid)
	if !validName.MatchString(name) {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, uid)
	}
	return name, nil
}

// quoteLiteral はDDLに埋め込む文字列リテラルを返す。
// DDLはプレースホルダーを受け付けない。
func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// classify は接続障害をmodel.DatabaseUnavailableErrorに変換する。
func classify(op string, err error) error {
	var connectErr *pgconn.ConnectError
	var netErr net.Error
	if errors.As(err, &connectErr) || errors.As(err, &netErr) ||
		errors.Is(err, context.DeadlineExceeded) {
		return &model.DatabaseUnavailableError{Err: fmt.Errorf("hosting %s: %w", op, err)}
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && (strings.HasPrefix(pgErr.Code, "08") || strings.HasPrefix(pgErr.Code, "57")) {
		return &model.DatabaseUnavailableError{Err: fmt.Errorf("hosting %s: %w", op, err)}
	}
	return fmt.Errorf("hosting %s: %w", op, err)
}
