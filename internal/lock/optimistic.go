package lock

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

// ErrVersionConflict は条件付き書き込みが読み取り時のバージョンと
// 一致しなかったことを示す。versioned writeを実装するリポジトリが返す。
var ErrVersionConflict = errors.New("バージョンが一致しません")

// ErrConcurrencyConflict は楽観ロックの再試行上限を使い切ったことを示す。
// 呼び出し側には再試行可能な失敗として通知される。
var ErrConcurrencyConflict = errors.New("並行更新の競合により処理を完了できませんでした")

// retryBaseDelay は楽観ロック再試行時の基準待機時間。
// 実際の待機時間は衝突の同期を避けるためジッタを加える。
const retryBaseDelay = 10 * time.Millisecond

// WithOptimistic は1レコードに対するread-compute-writeサイクルを
// バージョン検証付きで適用する。
//
//	read:  現在の状態とバージョンを読み取る
//	apply: 次の状態を計算する。再試行のたびに呼び直されるため、
//	       状態の生成以外の副作用を持ってはならない
//	write: バージョンが読み取り時から変わっていないことを条件に書き込む。
//	       不一致の場合はErrVersionConflictを返すこと
//
// 書き込みが競合した場合は再読み取りしてmaxRetries回まで再試行し、
// 使い切った場合はErrConcurrencyConflictを返す。
// applyが業務上の失敗（例: 確認済みの支払い）を返した場合は
// 再試行せずそのまま返す。
func WithOptimistic[T any](
	ctx context.Context,
	maxRetries int,
	read func(ctx context.Context) (T, int64, error),
	apply func(current T) (T, error),
	write func(ctx context.Context, next T, expectedVersion int64) error,
) (T, error) {
	var zero T

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			// 自分以外の書き込みが完了するのを待つ。ジッタ付き
			delay := retryBaseDelay * time.Duration(attempt)
			delay += time.Duration(rand.Int63n(int64(retryBaseDelay)))
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return zero, ctx.Err()
			}
		}

		current, version, err := read(ctx)
		if err != nil {
			return zero, err
		}

		next, err := apply(current)
		if err != nil {
			return zero, err
		}

		err = write(ctx, next, version)
		if err == nil {
			return next, nil
		}
		if !errors.Is(err, ErrVersionConflict) {
			return zero, err
		}
	}

	return zero, ErrConcurrencyConflict
}
