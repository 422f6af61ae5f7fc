// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/slotman/internal/model"
)

// UserRepository は利用者データの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDの利用者を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// Create は利用者を作成する。
	Create(ctx context.Context, user *model.User) error
}

// SessionRepository はログインセッションの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// DeleteByID は指定IDのセッションを削除する。
	DeleteByID(ctx context.Context, id string) error
}

// TimeSlotRepository はタイムスロット設定の永続化インターフェース。
// スロットは設定データであり、チェックインのコアからは読み取り専用。
type TimeSlotRepository interface {
	// FindByID は指定IDのスロットを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.TimeSlot, error)

	// ListActive は有効なスロットの一覧を開始時刻昇順で返す。
	ListActive(ctx context.Context) ([]model.TimeSlot, error)

	// Create はスロットを作成する。
	Create(ctx context.Context, slot *model.TimeSlot) error
}

// AttendanceRepository は出席セッションと出席記録の永続化インターフェース。
// コアが要求する狭いインターフェース: バージョン付き読み取り、
// バージョン検証付き書き込み、およびロック保持中に限って行う記録の追記。
type AttendanceRepository interface {
	// FindSession は(スロット, 営業日)の出席カウンタとバージョンを返す。
	// 未作成の場合は(0, 0, nil)を返す（営業日の初回アクセスで暗黙に作成される）。
	FindSession(ctx context.Context, timeSlotID, sessionDate string) (count int, version int64, err error)

	// SaveSession は出席カウンタをバージョン検証付きで書き込む。
	// expectedVersionが0の場合は新規行を作成する。
	// バージョン不一致の場合はlock.ErrVersionConflictを返す。
	SaveSession(ctx context.Context, timeSlotID, sessionDate string, count int, expectedVersion int64) error

	// ListRecords は(スロット, 営業日)のチェックイン記録を時系列順で返す。
	ListRecords(ctx context.Context, timeSlotID, sessionDate string) ([]model.CheckInRecord, error)

	// AppendRecord はチェックイン記録を追記する。
	// 対応する(スロット, 日付)のロックを保持した状態でのみ呼び出すこと。
	AppendRecord(ctx context.Context, record model.CheckInRecord) error

	// DeleteRecord は指定利用者のチェックイン記録を削除する（管理者操作専用）。
	// 削除した場合はtrueを返す。
	DeleteRecord(ctx context.Context, timeSlotID, sessionDate, userID string) (bool, error)
}

// RegistrationRepository は会員登録の永続化インターフェース。
// 楽観ロックコントローラと組み合わせて使用するため、
// 読み取りはバージョンを返し、書き込みはバージョンを検証する。
type RegistrationRepository interface {
	// FindByID は指定IDの登録レコードとバージョンを返す。
	// 見つからない場合は(nil, 0, nil)を返す。
	FindByID(ctx context.Context, id string) (*model.RegistrationRecord, int64, error)

	// Create は登録レコードを作成する。バージョンは1で初期化される。
	Create(ctx context.Context, record model.RegistrationRecord) error

	// Save は登録レコードをバージョン検証付きで書き込む。
	// 読み取り時からバージョンが変わっている場合はlock.ErrVersionConflictを返す。
	Save(ctx context.Context, record model.RegistrationRecord, expectedVersion int64) error

	// ListExpirable は有効状態のまま次回支払日がbeforeより前の登録IDを返す。
	// 期限切れ処理ワーカーが使用する。
	ListExpirable(ctx context.Context, before time.Time) ([]string, error)
}

// LeagueRepository は大会データの永続化インターフェース。
type LeagueRepository interface {
	// FindByID は指定IDの大会を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.League, error)

	// List は大会の一覧を開始日降順で返す。
	List(ctx context.Context) ([]model.League, error)

	// Create は大会を作成する。
	Create(ctx context.Context, league *model.League) error

	// HasParticipant は指定利用者が大会に参加登録済みかを返す。
	HasParticipant(ctx context.Context, leagueID, userID string) (bool, error)

	// AddParticipant は参加者の追加と参加者数の加算を同一トランザクションで行う。
	// 対応する大会キーのロックを保持した状態でのみ呼び出すこと。
	AddParticipant(ctx context.Context, leagueID, userID string, now time.Time) error
}
