// Package cleanup はメッセージの自動削除ジョブを提供する。
// 保持期間（デフォルト180日）を超過したメッセージを日次バッチで削除する。
package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// MessageDeleter は保持期間超過メッセージの削除を抽象化するインターフェース。
type MessageDeleter interface {
	DeleteOlderThan(ctx context.Context, retentionDays int) (int64, error)
}

// CleanupJob は保持期間を超過したメッセージの自動削除ジョブ。
// 日次実行のバッチジョブとして設計されており、冪等な削除処理を保証する。
type CleanupJob struct {
	messages      MessageDeleter
	logger        *slog.Logger
	RetentionDays int // メッセージの保持日数（デフォルト: 180）
}

// NewCleanupJob は新しいCleanupJobを生成する。
// デフォルトの保持日数は180日。
func NewCleanupJob(messages MessageDeleter, logger *slog.Logger) *CleanupJob {
	return &CleanupJob{
		messages:      messages,
		logger:        logger,
		RetentionDays: 180,
	}
}

// Run は保持期間を超過したメッセージを削除する。
// 冪等: 削除対象がない場合でもエラーにならない。
func (j *CleanupJob) Run(ctx context.Context) error {
	start := time.Now()

	deletedCount, err := j.messages.DeleteOlderThan(ctx, j.RetentionDays)
	if err != nil {
		j.logger.Error("メッセージクリーンアップジョブの実行に失敗しました",
			slog.String("error", err.Error()),
			slog.Int("retention_days", j.RetentionDays),
		)
		return fmt.Errorf("メッセージクリーンアップの実行に失敗: %w", err)
	}

	duration := time.Since(start)
	j.logger.Info("メッセージクリーンアップジョブが完了しました",
		slog.Int64("deleted_count", deletedCount),
		slog.Int("retention_days", j.RetentionDays),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return nil
}
