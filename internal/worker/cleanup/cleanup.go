// Package cleanup は期限切れデータの定期削除ジョブを提供する。
// 期限切れのセッションと、一定期間接続されなかったデバイスを削除する。
// 未接続デバイスのセッションはCASCADE削除で自動的に処理される。
package cleanup

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

// DefaultUnconnectedDeviceTTL は未接続デバイスを保持する既定の期間。
const DefaultUnconnectedDeviceTTL = 7 * 24 * time.Hour

// Executor はSQLのExecContextを抽象化するインターフェース。
// *sql.DB や *sql.Tx を受け付けることができる。
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

const (
	deleteExpiredSessionsQuery = `DELETE FROM sessions WHERE expires_at < $1`

	deleteUnconnectedDevicesQuery = `DELETE FROM devices WHERE user_id IS NULL AND created_at < $1`
)

// Result は1回のクリーンアップで削除した件数。
type Result struct {
	ExpiredSessions    int64
	UnconnectedDevices int64
}

// CleanupJob は期限切れデータの削除ジョブ。
// 冪等な削除処理のため、任意の間隔で繰り返し実行できる。
type CleanupJob struct {
	db     Executor
	logger *slog.Logger
	now    func() time.Time

	UnconnectedDeviceTTL time.Duration
}

// NewCleanupJob は新しいCleanupJobを生成する。
// unconnectedDeviceTTL が0以下の場合は DefaultUnconnectedDeviceTTL を使う。
func NewCleanupJob(db Executor, logger *slog.Logger, unconnectedDeviceTTL time.Duration) *CleanupJob {
	if unconnectedDeviceTTL <= 0 {
		unconnectedDeviceTTL = DefaultUnconnectedDeviceTTL
	}
	return &CleanupJob{
		db:                   db,
		logger:               logger,
		now:                  time.Now,
		UnconnectedDeviceTTL: unconnectedDeviceTTL,
	}
}

// Run は期限切れセッションと未接続のまま期限を過ぎたデバイスを削除する。
// 削除対象がない場合でもエラーにならない。
func (j *CleanupJob) Run(ctx context.Context) (*Result, error) {
	start := j.now()

	// 1. 期限切れセッション
	sessions, err := j.exec(ctx, deleteExpiredSessionsQuery, start)
	if err != nil {
		j.logger.Error("failed to delete expired sessions", slog.String("error", err.Error()))
		return nil, fmt.Errorf("failed to delete expired sessions: %w", err)
	}

	// 2. 接続されないまま期限を過ぎたデバイス
	devices, err := j.exec(ctx, deleteUnconnectedDevicesQuery, start.Add(-j.UnconnectedDeviceTTL))
	if err != nil {
		j.logger.Error("failed to delete unconnected devices",
			slog.String("error", err.Error()),
			slog.Duration("ttl", j.UnconnectedDeviceTTL),
		)
		return nil, fmt.Errorf("failed to delete unconnected devices: %w", err)
	}

	result := &Result{ExpiredSessions: sessions, UnconnectedDevices: devices}
	j.logger.Info("cleanup job completed",
		slog.Int64("expired_sessions", result.ExpiredSessions),
		slog.Int64("unconnected_devices", result.UnconnectedDevices),
		slog.Float64("duration_ms", float64(j.now().Sub(start).Milliseconds())),
	)
	return result, nil
}

// RunEvery は起動直後に1回、その後 interval ごとにジョブを実行する。
// ctx がキャンセルされるまでブロックする。個々の実行の失敗はログに記録して継続する。
func (j *CleanupJob) RunEvery(ctx context.Context, interval time.Duration) {
	if _, err := j.Run(ctx); err != nil {
		j.logger.Error("cleanup job failed", slog.String("error", err.Error()))
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := j.Run(ctx); err != nil {
				j.logger.Error("cleanup job failed", slog.String("error", err.Error()))
			}
		}
	}
}

func (j *CleanupJob) exec(ctx context.Context, query string, cutoff time.Time) (int64, error) {
	res, err := j.db.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return n, nil
}
