// Package lock はリソースキー単位の排他制御を提供する。
// (スロット, 日付)ごとの出席カウンタのような共有リソースに対する
// read-check-mutate-writeサイクルを直列化するための悲観ロックと、
// 競合頻度の低い状態遷移のための楽観ロックコントローラを含む。
package lock

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrLockTimeout はロック取得がタイムアウトしたことを示す。
// 操作は一切実行されておらず、呼び出し側が操作全体を再試行してよい。
// Manager自身が暗黙に再試行することはない。
var ErrLockTimeout = errors.New("ロックの取得がタイムアウトしました")

// entry は1つのリソースキーに対応する排他制御の単位。
type entry struct {
	// sem は容量1のセマフォ。値が入っている間はロック保持中。
	sem      chan struct{}
	version  uint64
	refs     int
	lastUsed time.Time
}

// Manager はリソースキー単位の悲観ロックを管理する。
// キーごとのミューテックスは初回使用時に遅延生成される。
// キーの数は(アクティブなスロット数 × 営業日数)で抑えられるため、
// 正しさのためのガベージコレクションは不要だが、ワーカーから
// Reclaimを呼ぶことで古いキーを回収できる。
type Manager struct {
	mu      sync.Mutex
	entries map[string]*entry
	logger  *slog.Logger
}

// NewManager はManagerの新しいインスタンスを生成する。
func NewManager(logger *slog.Logger) *Manager {
	return &Manager{
		entries: make(map[string]*entry),
		logger:  logger,
	}
}

// WithLock はkeyの排他所有権を取得した上でfnを実行する。
// 同一キーに対する他の呼び出しは解放まで、または各自のtimeoutが
// 経過するまでブロックする。タイムアウト時はfnを実行せずに
// ErrLockTimeoutを返す。
// ロックはfnの失敗・panicを含むすべての経路で確実に解放される。
// fnには取得ごとに単調増加するバージョン番号が渡される（観測用）。
func (m *Manager) WithLock(ctx context.Context, key string, timeout time.Duration, fn func(version uint64) error) error {
	e := m.acquireEntry(key)
	defer m.releaseEntry(key, e)

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case e.sem <- struct{}{}:
		// ロック取得。以降のすべての経路で解放する
	case <-timer.C:
		return ErrLockTimeout
	case <-ctx.Done():
		return ErrLockTimeout
	}

	defer func() { <-e.sem }()

	m.mu.Lock()
	e.version++
	version := e.version
	e.lastUsed = time.Now()
	m.mu.Unlock()

	return fn(version)
}

// acquireEntry はkeyに対応するentryを取得する。存在しない場合は遅延生成する。
// 参照カウントを増やすことで、待機中のキーがReclaimで消えることを防ぐ。
func (m *Manager) acquireEntry(key string) *entry {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok {
		e = &entry{sem: make(chan struct{}, 1), lastUsed: time.Now()}
		m.entries[key] = e
	}
	e.refs++
	return e
}

// releaseEntry は参照カウントを減らす。
func (m *Manager) releaseEntry(key string, e *entry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e.refs--
}

// Reclaim は最終使用からidleForを超えて経過し、かつ誰も参照していない
// キーを回収する。回収されたキー数を返す。
// 参照カウントが0のentryは保持者も待機者も存在しないため、
// 削除しても排他性は損なわれない。
func (m *Manager) Reclaim(idleFor time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := time.Now().Add(-idleFor)
	reclaimed := 0
	for key, e := range m.entries {
		if e.refs == 0 && e.lastUsed.Before(cutoff) {
			delete(m.entries, key)
			reclaimed++
		}
	}

	if reclaimed > 0 && m.logger != nil {
		m.logger.Info("未使用のロックキーを回収しました",
			slog.Int("reclaimed", reclaimed),
			slog.Int("remaining", len(m.entries)),
		)
	}
	return reclaimed
}

// KeyCount は現在管理しているロックキーの数を返す（観測用）。
func (m *Manager) KeyCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
