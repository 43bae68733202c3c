package cleanup

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"
)

// mockSessionPurger はSessionPurgerのモック実装。
type mockSessionPurger struct {
	deleteExpiredFunc func(ctx context.Context, grace time.Duration) (int64, error)
}

func (m *mockSessionPurger) DeleteExpired(ctx context.Context, grace time.Duration) (int64, error) {
	return m.deleteExpiredFunc(ctx, grace)
}

// mockPurgeMetrics はPurgeMetricsRecorderのモック実装。
type mockPurgeMetrics struct {
	recorded []int64
}

func (m *mockPurgeMetrics) RecordSessionsPurged(count int64) {
	m.recorded = append(m.recorded, count)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func TestRun_DeletesExpiredSessions(t *testing.T) {
	var gotGrace time.Duration
	purger := &mockSessionPurger{
		deleteExpiredFunc: func(ctx context.Context, grace time.Duration) (int64, error) {
			gotGrace = grace
			return 5, nil
		},
	}
	metrics := &mockPurgeMetrics{}

	job := NewCleanupJob(purger, metrics, testLogger())

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	// デフォルトの猶予期間は7日
	if gotGrace != 7*24*time.Hour {
		t.Errorf("grace = %v, want 168h", gotGrace)
	}
	if len(metrics.recorded) != 1 || metrics.recorded[0] != 5 {
		t.Errorf("recorded = %v, want [5]", metrics.recorded)
	}
}

func TestRun_NoExpiredSessions(t *testing.T) {
	purger := &mockSessionPurger{
		deleteExpiredFunc: func(ctx context.Context, grace time.Duration) (int64, error) {
			return 0, nil
		},
	}

	job := NewCleanupJob(purger, &mockPurgeMetrics{}, testLogger())

	// 削除対象がなくてもエラーにならない（冪等）
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
}

func TestRun_CustomGrace(t *testing.T) {
	var gotGrace time.Duration
	purger := &mockSessionPurger{
		deleteExpiredFunc: func(ctx context.Context, grace time.Duration) (int64, error) {
			gotGrace = grace
			return 0, nil
		},
	}

	job := NewCleanupJob(purger, &mockPurgeMetrics{}, testLogger())
	job.Grace = 24 * time.Hour

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if gotGrace != 24*time.Hour {
		t.Errorf("grace = %v, want 24h", gotGrace)
	}
}

func TestRun_PurgeError(t *testing.T) {
	purger := &mockSessionPurger{
		deleteExpiredFunc: func(ctx context.Context, grace time.Duration) (int64, error) {
			return 0, errors.New("connection refused")
		},
	}
	metrics := &mockPurgeMetrics{}

	job := NewCleanupJob(purger, metrics, testLogger())

	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if len(metrics.recorded) != 0 {
		t.Errorf("metrics recorded on failure: %v", metrics.recorded)
	}
}
