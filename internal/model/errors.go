// Package model はドメインモデルを定義する。
package model

import (
	"errors"
	"fmt"
)

// ドメインエラー。ルートハンドラーでerrors.Isにより判定し、
// それぞれ1つのフラッシュメッセージに対応付ける。
var (
	// ErrUserNotFound はディレクトリまたはデータベースにユーザーが存在しないことを表す。
	ErrUserNotFound = errors.New("user not found")

	// ErrPasswordInvalid はパスワードが誤っていることを表す。
	ErrPasswordInvalid = errors.New("password invalid")

	// ErrDirectoryRights はディレクトリへの書き込み権限が不足していることを表す。
	ErrDirectoryRights = errors.New("insufficient directory rights")

	// ErrQueryEmpty はデータベース問い合わせの結果が空だったことを表す。
	ErrQueryEmpty = errors.New("database query returned no rows")
)

// DirectoryUnavailableError はディレクトリサービス（LDAP）に接続できないことを表す。
// グローバルエラーハンドラーでセッションを破棄してトップページへリダイレクトする。
type DirectoryUnavailableError struct {
	Addr string
	Err  error
}

// Error はerrorインターフェースを実装する。
func (e *DirectoryUnavailableError) Error() string {
	return fmt.Sprintf("directory server %s unreachable: %v", e.Addr, e.Err)
}

// Unwrap は元のエラーを返す。
func (e *DirectoryUnavailableError) Unwrap() error {
	return e.Err
}

// DatabaseUnavailableError はリレーショナルデータベースに接続できないことを表す。
type DatabaseUnavailableError struct {
	Err error
}

// Error はerrorインターフェースを実装する。
func (e *DatabaseUnavailableError) Error() string {
	return fmt.Sprintf("database unreachable: %v", e.Err)
}

// Unwrap は元のエラーを返す。
func (e *DatabaseUnavailableError) Unwrap() error {
	return e.Err
}

// IsDirectoryUnavailable はerrがDirectoryUnavailableErrorを含むかを判定する。
func IsDirectoryUnavailable(err error) bool {
	var target *DirectoryUnavailableError
	return errors.As(err, &target)
}

// IsDatabaseUnavailable はerrがDatabaseUnavailableErrorを含むかを判定する。
func IsDatabaseUnavailable(err error) bool {
	var target *DatabaseUnavailableError
	return errors.As(err, &target)
}
