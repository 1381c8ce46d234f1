package repository

import (
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"net"

	"github.com/lib/pq"

	"github.com/hitoshi/sipa/internal/model"
)

// 接続障害とみなすSQLSTATEクラス。
// 08: connection_exception, 57: operator_intervention（admin_shutdown等）
var unavailableClasses = map[pq.ErrorClass]bool{
	"08": true,
	"57": true,
}

// wrapDBError はドライバーのエラーを分類してラップする。
func wrapDBError(op string, err error) error {
	if err == nil {
		return nil
	}
	if isUnavailable(err) {
		return &model.DatabaseUnavailableError{Err: fmt.Errorf("%s: %w", op, err)}
	}
	return fmt.Errorf("%s: %w", op, err)
}

func isUnavailable(err error) bool {
	if errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, sql.ErrConnDone) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return unavailableClasses[pqErr.Code.Class()]
	}

	var netErr net.Error
	return errors.As(err, &netErr)
}
