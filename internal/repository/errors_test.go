package repository

import (
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"net"
	"testing"

	"github.com/lib/pq"

	"github.com/hitoshi/sipa/internal/model"
)

func TestWrapDBError_Classification(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		unavailable bool
	}{
		{name: "bad conn", err: driver.ErrBadConn, unavailable: true},
		{name: "conn done", err: sql.ErrConnDone, unavailable: true},
		{name: "unexpected eof", err: io.ErrUnexpectedEOF, unavailable: true},
		{name: "dial error", err: &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}, unavailable: true},
		{name: "connection_failure", err: &pq.Error{Code: "08006"}, unavailable: true},
		{name: "admin_shutdown", err: &pq.Error{Code: "57P01"}, unavailable: true},
		{name: "syntax error", err: &pq.Error{Code: "42601"}, unavailable: false},
		{name: "unique violation", err: &pq.Error{Code: "23505"}, unavailable: false},
		{name: "wrapped bad conn", err: fmt.Errorf("query: %w", driver.ErrBadConn), unavailable: true},
		{name: "plain error", err: errors.New("boom"), unavailable: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := wrapDBError("op", tt.err)
			if got == nil {
				t.Fatal("wrapDBError() = nil, want error")
			}
			if model.IsDatabaseUnavailable(got) != tt.unavailable {
				t.Errorf("IsDatabaseUnavailable(%v) = %v, want %v", got, !tt.unavailable, tt.unavailable)
			}
			if !errors.Is(got, tt.err) {
				t.Errorf("wrapped error does not contain original: %v", got)
			}
		})
	}
}

func TestWrapDBError_Nil(t *testing.T) {
	if err := wrapDBError("op", nil); err != nil {
		t.Errorf("wrapDBError(nil) = %v, want nil", err)
	}
}
