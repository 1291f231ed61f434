// Package cleanup は期限切れパスワードリセットトークンの自動削除ジョブを提供する。
// 消費されないまま有効期限を過ぎたトークンを日次バッチでクリアする。
// 期限切れトークンは検証時にも拒否されるため、このジョブは
// データ衛生のための後始末であり、正しさには依存しない。
package cleanup

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

// Executor はSQLのExecContextを抽象化するインターフェース。
// *sql.DB や *sql.Tx を受け付けることができる。
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// CleanupJob は期限切れリセットトークンの自動削除ジョブ。
// 日次実行のバッチジョブとして設計されており、冪等な処理を保証する。
type CleanupJob struct {
	db     Executor
	logger *slog.Logger
}

// NewCleanupJob は新しいCleanupJobを生成する。
func NewCleanupJob(db Executor, logger *slog.Logger) *CleanupJob {
	return &CleanupJob{
		db:     db,
		logger: logger,
	}
}

// Run は有効期限を過ぎたリセットトークンをクリアする。
// 冪等: 対象がない場合でもエラーにならない。
func (j *CleanupJob) Run(ctx context.Context) error {
	start := time.Now()

	query := `UPDATE users SET reset_token = NULL, reset_token_expires = NULL WHERE reset_token_expires < now()`
	result, err := j.db.ExecContext(ctx, query)
	if err != nil {
		j.logger.Error("リセットトークンクリーンアップジョブの実行に失敗しました",
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("リセットトークンクリーンアップの実行に失敗: %w", err)
	}

	clearedCount, err := result.RowsAffected()
	if err != nil {
		j.logger.Error("クリア件数の取得に失敗しました",
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("クリア件数の取得に失敗: %w", err)
	}

	duration := time.Since(start)
	j.logger.Info("リセットトークンクリーンアップジョブが完了しました",
		slog.Int64("cleared_count", clearedCount),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return nil
}

// Start は日次でRunを実行するループを開始する。
// 起動直後に1回実行し、以後24時間間隔で繰り返す。
// ctxのキャンセルで停止する。
func (j *CleanupJob) Start(ctx context.Context) {
	if err := j.Run(ctx); err != nil {
		j.logger.Error("cleanup job failed", slog.String("error", err.Error()))
	}

	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := j.Run(ctx); err != nil {
				j.logger.Error("cleanup job failed", slog.String("error", err.Error()))
			}
		}
	}
}
