// Package expire は期限切れ会員登録の自動処理ジョブを提供する。
// 次回支払日を猶予期間を超えて過ぎた有効登録を定期バッチで
// 期限切れに遷移させる。あわせて遊休ロックエントリの回収も行う。
package expire

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/slotman/internal/lock"
	"github.com/hitoshi/slotman/internal/metrics"
)

// ExpirableLister は期限切れ候補の登録IDを列挙するインターフェース。
// repository.RegistrationRepositoryの部分集合として定義する。
type ExpirableLister interface {
	ListExpirable(ctx context.Context, before time.Time) ([]string, error)
}

// RegistrationExpirer は1件の登録を期限切れに遷移させるインターフェース。
type RegistrationExpirer interface {
	// Expire は登録を期限切れに遷移させる。
	// 対象が有効でない場合は何もせずfalseを返す。
	Expire(ctx context.Context, registrationID string) (bool, error)
}

// Options はJobの動作設定。
type Options struct {
	// GraceDays は支払期限超過から期限切れ処理までの猶予日数。
	GraceDays int
	// ReclaimIdle はこの期間参照されていないロックエントリを回収する。
	ReclaimIdle time.Duration
	// Now は現在時刻の取得関数。nilの場合はtime.Nowを使用する。
	Now func() time.Time
}

// Job は期限切れ処理の定期バッチジョブ。
// 冪等であり、処理対象がない場合でもエラーにならない。
type Job struct {
	lister    ExpirableLister
	expirer   RegistrationExpirer
	locks     *lock.Manager
	collector metrics.MetricsCollector
	logger    *slog.Logger
	opts      Options
}

// NewJob はJobの新しいインスタンスを生成する。
// locksがnilの場合はロック回収をスキップする。
func NewJob(
	lister ExpirableLister,
	expirer RegistrationExpirer,
	locks *lock.Manager,
	collector metrics.MetricsCollector,
	logger *slog.Logger,
	opts Options,
) *Job {
	if opts.GraceDays < 0 {
		opts.GraceDays = 0
	}
	if opts.ReclaimIdle <= 0 {
		opts.ReclaimIdle = 48 * time.Hour
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Job{
		lister:    lister,
		expirer:   expirer,
		locks:     locks,
		collector: collector,
		logger:    logger,
		opts:      opts,
	}
}

// Start は指定間隔のティッカーでジョブを起動する。
// コンテキストがキャンセルされるまで実行を継続する。
func (j *Job) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	j.logger.Info("期限切れ処理ジョブを開始しました",
		slog.Duration("interval", interval),
		slog.Int("grace_days", j.opts.GraceDays),
	)

	// 起動直後に1回実行
	if err := j.RunOnce(ctx); err != nil {
		j.logger.Error("期限切れ処理サイクルの実行に失敗しました",
			slog.String("error", err.Error()),
		)
	}

	for {
		select {
		case <-ctx.Done():
			j.logger.Info("期限切れ処理ジョブを停止しました")
			return
		case <-ticker.C:
			if err := j.RunOnce(ctx); err != nil {
				j.logger.Error("期限切れ処理サイクルの実行に失敗しました",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// RunOnce は期限切れ候補を1回走査し、対象を期限切れに遷移させる。
// 1件の失敗は記録して続行し、残りの候補の処理を妨げない。
func (j *Job) RunOnce(ctx context.Context) error {
	start := j.opts.Now()
	before := start.AddDate(0, 0, -j.opts.GraceDays)

	ids, err := j.lister.ListExpirable(ctx, before)
	if err != nil {
		return fmt.Errorf("期限切れ候補の取得に失敗: %w", err)
	}

	expired := 0
	for _, id := range ids {
		ok, err := j.expirer.Expire(ctx, id)
		if err != nil {
			j.logger.Error("登録の期限切れ処理に失敗しました",
				slog.String("registration_id", id),
				slog.String("error", err.Error()),
			)
			continue
		}
		if ok {
			expired++
		}
	}

	if expired > 0 {
		j.collector.RecordRegistrationExpired(expired)
	}

	reclaimed := 0
	if j.locks != nil {
		reclaimed = j.locks.Reclaim(j.opts.ReclaimIdle)
	}

	duration := time.Since(start)
	j.logger.Info("期限切れ処理サイクルが完了しました",
		slog.Int("candidate_count", len(ids)),
		slog.Int("expired_count", expired),
		slog.Int("reclaimed_locks", reclaimed),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return nil
}
