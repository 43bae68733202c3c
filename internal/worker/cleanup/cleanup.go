// Package cleanup は期限切れセッションの自動削除ジョブを提供する。
// 有効期限を過ぎてから猶予期間（デフォルト7日）を超過したセッション行を
// 日次バッチで削除する。猶予期間内の行は監査目的で残す。
package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// SessionPurger は期限切れセッションの削除に必要なインターフェース。
// repository.SessionRepositoryの部分集合として定義する。
type SessionPurger interface {
	DeleteExpired(ctx context.Context, grace time.Duration) (int64, error)
}

// PurgeMetricsRecorder は削除件数メトリクスの記録インターフェース。
type PurgeMetricsRecorder interface {
	RecordSessionsPurged(count int64)
}

// CleanupJob は期限切れセッションの自動削除ジョブ。
// 日次実行のバッチジョブとして設計されており、冪等な削除処理を保証する。
type CleanupJob struct {
	sessions SessionPurger
	metrics  PurgeMetricsRecorder
	logger   *slog.Logger
	Grace    time.Duration // 期限切れ後にセッション行を残す猶予期間（デフォルト: 7日）
}

// NewCleanupJob は新しいCleanupJobを生成する。
// デフォルトの猶予期間は7日。
func NewCleanupJob(sessions SessionPurger, metrics PurgeMetricsRecorder, logger *slog.Logger) *CleanupJob {
	return &CleanupJob{
		sessions: sessions,
		metrics:  metrics,
		logger:   logger,
		Grace:    7 * 24 * time.Hour,
	}
}

// Run は猶予期間を超過した期限切れセッションを削除する。
// 冪等: 削除対象がない場合でもエラーにならない。
func (j *CleanupJob) Run(ctx context.Context) error {
	start := time.Now()

	deletedCount, err := j.sessions.DeleteExpired(ctx, j.Grace)
	if err != nil {
		j.logger.Error("セッションクリーンアップジョブの実行に失敗しました",
			slog.String("error", err.Error()),
			slog.Duration("grace", j.Grace),
		)
		return fmt.Errorf("セッションクリーンアップの実行に失敗: %w", err)
	}

	if j.metrics != nil {
		j.metrics.RecordSessionsPurged(deletedCount)
	}

	duration := time.Since(start)
	j.logger.Info("セッションクリーンアップジョブが完了しました",
		slog.Int64("deleted_count", deletedCount),
		slog.Duration("grace", j.Grace),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return nil
}
