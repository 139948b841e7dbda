// Package cleanup は配信済み記事台帳の保持期間管理ジョブを提供する。
// 重複判定の参照期間を過ぎた記録を日次で削除する。
package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// DefaultRetentionDays は配信済み記録の保持日数。
const DefaultRetentionDays = 7

// Purger は古い配信済み記録を削除するインターフェース。
// PostgresSentArticleRepoとMemorySentArticleRepoが実装する。
type Purger interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// CleanupJob は保持期間を超過した配信済み記録の削除ジョブ。
// 削除対象がなくてもエラーにならず、何度実行しても結果は同じ。
type CleanupJob struct {
	store         Purger
	logger        *slog.Logger
	RetentionDays int // 記録の保持日数（デフォルト: 7）
	now           func() time.Time
}

// NewCleanupJob は新しいCleanupJobを生成する。
// retentionDaysが0以下の場合はデフォルト値を使用する。
func NewCleanupJob(store Purger, logger *slog.Logger, retentionDays int) *CleanupJob {
	if retentionDays <= 0 {
		retentionDays = DefaultRetentionDays
	}
	return &CleanupJob{
		store:         store,
		logger:        logger,
		RetentionDays: retentionDays,
		now:           time.Now,
	}
}

// Start は起動直後に1回、その後interval間隔で削除を実行する。
// コンテキストがキャンセルされるまで実行を継続する。
func (j *CleanupJob) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	j.logger.Info("台帳クリーンアップジョブを開始しました",
		slog.Duration("interval", interval),
		slog.Int("retention_days", j.RetentionDays),
	)

	_ = j.Run(ctx)

	for {
		select {
		case <-ctx.Done():
			j.logger.Info("台帳クリーンアップジョブを停止しました")
			return
		case <-ticker.C:
			_ = j.Run(ctx)
		}
	}
}

// Run はsent_atがRetentionDays日前より古い記録を削除する。
func (j *CleanupJob) Run(ctx context.Context) error {
	start := time.Now()
	cutoff := j.now().Add(-time.Duration(j.RetentionDays) * 24 * time.Hour)

	deletedCount, err := j.store.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		j.logger.Error("台帳クリーンアップジョブの実行に失敗しました",
			slog.String("error", err.Error()),
			slog.Int("retention_days", j.RetentionDays),
		)
		return fmt.Errorf("failed to purge sent articles: %w", err)
	}

	duration := time.Since(start)
	j.logger.Info("台帳クリーンアップジョブが完了しました",
		slog.Int64("deleted_count", deletedCount),
		slog.Int("retention_days", j.RetentionDays),
		slog.Time("cutoff", cutoff),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return nil
}
