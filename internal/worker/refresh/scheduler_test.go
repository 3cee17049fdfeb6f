package refresh

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// --- モック定義 ---

// mockUpdater はXMLUpdaterのテスト用モック。
type mockUpdater struct {
	calls    atomic.Int32
	updateFn func(ctx context.Context) (int, error)
}

func (m *mockUpdater) Update(ctx context.Context) (int, error) {
	m.calls.Add(1)
	return m.updateFn(ctx)
}

// mockRecorder はRefreshRecorderのテスト用モック。
type mockRecorder struct {
	mu      sync.Mutex
	users   []int
	results []error
}

func (m *mockRecorder) RecordXMLRefresh(users int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users = append(m.users, users)
	m.results = append(m.results, err)
}

// syncBuffer はゴルーチンから安全に書き込めるbytes.Buffer。
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func newTestLogger(w *syncBuffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func TestScheduler_RunOnce_Success(t *testing.T) {
	var logs syncBuffer
	updater := &mockUpdater{updateFn: func(ctx context.Context) (int, error) { return 42, nil }}
	rec := &mockRecorder{}

	s := NewScheduler(updater, rec, newTestLogger(&logs), time.Hour)
	if err := s.RunOnce(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(rec.users) != 1 || rec.users[0] != 42 || rec.results[0] != nil {
		t.Errorf("recorded = %v / %v, want [42] / [nil]", rec.users, rec.results)
	}
	if !strings.Contains(logs.String(), "users.xmlの更新が完了しました") {
		t.Errorf("expected completion log, got %s", logs.String())
	}
}

func TestScheduler_RunOnce_FailureCountsConsecutiveErrors(t *testing.T) {
	var logs syncBuffer
	fail := true
	updater := &mockUpdater{updateFn: func(ctx context.Context) (int, error) {
		if fail {
			return 0, errors.New("users xml download returned status 503")
		}
		return 2, nil
	}}

	s := NewScheduler(updater, nil, newTestLogger(&logs), time.Hour)

	for i := 0; i < 3; i++ {
		if err := s.RunOnce(context.Background()); err == nil {
			t.Fatal("expected error")
		}
	}
	if s.ConsecutiveErrors() != 3 {
		t.Errorf("ConsecutiveErrors = %d, want 3", s.ConsecutiveErrors())
	}

	fail = false
	if err := s.RunOnce(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.ConsecutiveErrors() != 0 {
		t.Errorf("ConsecutiveErrors after success = %d, want 0", s.ConsecutiveErrors())
	}
}

func TestScheduler_Start_RunsImmediatelyAndStopsOnCancel(t *testing.T) {
	var logs syncBuffer
	updater := &mockUpdater{updateFn: func(ctx context.Context) (int, error) { return 1, nil }}

	s := NewScheduler(updater, nil, newTestLogger(&logs), time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Start(ctx)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for updater.calls.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if updater.calls.Load() != 1 {
		t.Fatalf("update calls = %d, want 1", updater.calls.Load())
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop after cancel")
	}

	if !strings.Contains(logs.String(), "users.xml更新スケジューラを停止しました") {
		t.Errorf("expected stop log, got %s", logs.String())
	}
}

func TestScheduler_Start_RepeatsOnInterval(t *testing.T) {
	var logs syncBuffer
	updater := &mockUpdater{updateFn: func(ctx context.Context) (int, error) { return 1, nil }}

	s := NewScheduler(updater, nil, newTestLogger(&logs), 20*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	s.Start(ctx)

	if updater.calls.Load() < 3 {
		t.Errorf("update calls = %d, want at least 3", updater.calls.Load())
	}
}
