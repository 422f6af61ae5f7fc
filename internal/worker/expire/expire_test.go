package expire

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/hitoshi/slotman/internal/metrics"
)

var testNow = time.Date(2026, 8, 31, 10, 0, 0, 0, time.UTC)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// mockLister はExpirableListerのモック実装。
type mockLister struct {
	listExpirableFn func(ctx context.Context, before time.Time) ([]string, error)
}

func (m *mockLister) ListExpirable(ctx context.Context, before time.Time) ([]string, error) {
	if m.listExpirableFn != nil {
		return m.listExpirableFn(ctx, before)
	}
	return nil, nil
}

// mockExpirer はRegistrationExpirerのモック実装。
type mockExpirer struct {
	expireFn func(ctx context.Context, registrationID string) (bool, error)
	calls    []string
}

func (m *mockExpirer) Expire(ctx context.Context, registrationID string) (bool, error) {
	m.calls = append(m.calls, registrationID)
	if m.expireFn != nil {
		return m.expireFn(ctx, registrationID)
	}
	return true, nil
}

// recordingCollector は期限切れ件数の記録のみ数えるコレクター。
type recordingCollector struct {
	metrics.Nop
	expiredTotal int
}

func (c *recordingCollector) RecordRegistrationExpired(count int) {
	c.expiredTotal += count
}

// TestRunOnce_ExpiresAllCandidates は全候補が期限切れ処理されることを検証する。
func TestRunOnce_ExpiresAllCandidates(t *testing.T) {
	lister := &mockLister{
		listExpirableFn: func(ctx context.Context, before time.Time) ([]string, error) {
			return []string{"reg-1", "reg-2", "reg-3"}, nil
		},
	}
	expirer := &mockExpirer{}
	collector := &recordingCollector{}

	job := NewJob(lister, expirer, nil, collector, testLogger(), Options{
		GraceDays: 7,
		Now:       func() time.Time { return testNow },
	})

	if err := job.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}

	if len(expirer.calls) != 3 {
		t.Errorf("expire calls = %d, want 3", len(expirer.calls))
	}
	if collector.expiredTotal != 3 {
		t.Errorf("expired metric = %d, want 3", collector.expiredTotal)
	}
}

// TestRunOnce_AppliesGracePeriod は猶予日数がしきい値に反映されることを検証する。
func TestRunOnce_AppliesGracePeriod(t *testing.T) {
	var gotBefore time.Time
	lister := &mockLister{
		listExpirableFn: func(ctx context.Context, before time.Time) ([]string, error) {
			gotBefore = before
			return nil, nil
		},
	}

	job := NewJob(lister, &mockExpirer{}, nil, &recordingCollector{}, testLogger(), Options{
		GraceDays: 7,
		Now:       func() time.Time { return testNow },
	})

	if err := job.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}

	want := testNow.AddDate(0, 0, -7)
	if !gotBefore.Equal(want) {
		t.Errorf("before = %v, want %v", gotBefore, want)
	}
}

// TestRunOnce_ContinuesAfterSingleFailure は1件の失敗が残りの
// 候補の処理を妨げないことを検証する。
func TestRunOnce_ContinuesAfterSingleFailure(t *testing.T) {
	lister := &mockLister{
		listExpirableFn: func(ctx context.Context, before time.Time) ([]string, error) {
			return []string{"reg-1", "reg-broken", "reg-3"}, nil
		},
	}
	expirer := &mockExpirer{
		expireFn: func(ctx context.Context, registrationID string) (bool, error) {
			if registrationID == "reg-broken" {
				return false, errors.New("db down")
			}
			return true, nil
		},
	}
	collector := &recordingCollector{}

	job := NewJob(lister, expirer, nil, collector, testLogger(), Options{
		Now: func() time.Time { return testNow },
	})

	if err := job.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}

	if len(expirer.calls) != 3 {
		t.Errorf("expire calls = %d, want 3", len(expirer.calls))
	}
	if collector.expiredTotal != 2 {
		t.Errorf("expired metric = %d, want 2", collector.expiredTotal)
	}
}

// TestRunOnce_NoopSkipsMetric は状態遷移が発生しなかった候補が
// メトリクスに計上されないことを検証する。
func TestRunOnce_NoopSkipsMetric(t *testing.T) {
	lister := &mockLister{
		listExpirableFn: func(ctx context.Context, before time.Time) ([]string, error) {
			return []string{"reg-already-expired"}, nil
		},
	}
	expirer := &mockExpirer{
		expireFn: func(ctx context.Context, registrationID string) (bool, error) {
			return false, nil
		},
	}
	collector := &recordingCollector{}

	job := NewJob(lister, expirer, nil, collector, testLogger(), Options{
		Now: func() time.Time { return testNow },
	})

	if err := job.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}

	if collector.expiredTotal != 0 {
		t.Errorf("expired metric = %d, want 0", collector.expiredTotal)
	}
}

// TestRunOnce_ListerErrorPropagates は候補取得の失敗がエラーとして
// 返ることを検証する。
func TestRunOnce_ListerErrorPropagates(t *testing.T) {
	lister := &mockLister{
		listExpirableFn: func(ctx context.Context, before time.Time) ([]string, error) {
			return nil, errors.New("connection refused")
		},
	}

	job := NewJob(lister, &mockExpirer{}, nil, &recordingCollector{}, testLogger(), Options{
		Now: func() time.Time { return testNow },
	})

	if err := job.RunOnce(context.Background()); err == nil {
		t.Fatal("expected error, got nil")
	}
}

// TestStart_StopsOnContextCancel はコンテキストのキャンセルで
// ジョブが停止することを検証する。
func TestStart_StopsOnContextCancel(t *testing.T) {
	job := NewJob(&mockLister{}, &mockExpirer{}, nil, &recordingCollector{}, testLogger(), Options{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		job.Start(ctx, time.Hour)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("job did not stop after context cancellation")
	}
}
