package cleanup

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

// mockDeleter はExpiredSessionDeleterのモック実装。
type mockDeleter struct {
	calls   atomic.Int32
	deleted int64
	err     error
}

func (m *mockDeleter) DeleteExpired(ctx context.Context) (int64, error) {
	m.calls.Add(1)
	return m.deleted, m.err
}

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

func TestNewCleanupJob_DefaultInterval(t *testing.T) {
	var buf bytes.Buffer
	job := NewCleanupJob(&mockDeleter{}, newTestLogger(&buf))

	if job == nil {
		t.Fatal("NewCleanupJob returned nil")
	}
	if job.Interval != DefaultInterval {
		t.Errorf("Interval = %v, want %v", job.Interval, DefaultInterval)
	}
}

func TestCleanupJob_Run_LogsDeletedCount(t *testing.T) {
	var buf bytes.Buffer
	mock := &mockDeleter{deleted: 7}
	job := NewCleanupJob(mock, newTestLogger(&buf))

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if got := mock.calls.Load(); got != 1 {
		t.Errorf("DeleteExpired calls = %d, want 1", got)
	}

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log is not JSON: %v\nraw: %s", err, buf.String())
	}
	if entry["msg"] != "session cleanup completed" {
		t.Errorf("msg = %v, want %q", entry["msg"], "session cleanup completed")
	}
	if entry["deleted_count"] != float64(7) {
		t.Errorf("deleted_count = %v, want 7", entry["deleted_count"])
	}
}

func TestCleanupJob_Run_ReturnsError(t *testing.T) {
	var buf bytes.Buffer
	mock := &mockDeleter{err: errors.New("connection refused")}
	job := NewCleanupJob(mock, newTestLogger(&buf))

	err := job.Run(context.Background())
	if err == nil {
		t.Fatal("Run() error = nil, want error")
	}
	if !errors.Is(err, mock.err) {
		t.Errorf("Run() error = %v, want wrapped %v", err, mock.err)
	}
	if !strings.Contains(buf.String(), `"level":"ERROR"`) {
		t.Errorf("expected ERROR log, got %s", buf.String())
	}
}

func TestCleanupJob_Start_RunsUntilCanceled(t *testing.T) {
	var buf bytes.Buffer
	mock := &mockDeleter{}
	job := NewCleanupJob(mock, newTestLogger(&buf))
	job.Interval = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		job.Start(ctx)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for mock.calls.Load() < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after cancel")
	}
	if got := mock.calls.Load(); got < 3 {
		t.Errorf("DeleteExpired calls = %d, want >= 3", got)
	}
}
