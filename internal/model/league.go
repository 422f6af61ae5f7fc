// Package model はドメインモデルを定義する。
package model

import "time"

// LeagueStatus は大会の状態を表す。
// cancelled以外の状態は保存された日付と現在日時から読み取り時に導出され、
// cancelledのみが固定的（再計算で上書きされない）。
type LeagueStatus string

const (
	// LeagueStatusUpcoming は開催前（参加登録受付前または締切後）。
	LeagueStatusUpcoming LeagueStatus = "upcoming"
	// LeagueStatusRegistrationOpen は参加登録受付中。
	LeagueStatusRegistrationOpen LeagueStatus = "registration_open"
	// LeagueStatusInProgress は開催中。
	LeagueStatusInProgress LeagueStatus = "in_progress"
	// LeagueStatusCompleted は終了。
	LeagueStatusCompleted LeagueStatus = "completed"
	// LeagueStatusCancelled は中止。状態遷移の吸収状態であり再計算されない。
	LeagueStatusCancelled LeagueStatus = "cancelled"
)

// League は期間限定の大会を表す。
type League struct {
	ID                   string
	Name                 string
	StartDate            time.Time
	EndDate              *time.Time // nilの場合は終了日未定
	RegistrationDeadline time.Time
	RegistrationEnabled  bool
	MaxParticipants      *int // nilの場合は定員なし
	ParticipantCount     int
	Status               LeagueStatus // 保存値。読み取り時にComputeStatusで再計算する
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// ComputeStatus は保存された日付・フラグと現在日時から大会の状態を導出する。
// 純粋関数であり、I/Oを行わない。
//   - cancelledは吸収状態: 一度中止された大会は再計算されない
//   - 開始日が未来: 登録受付中（受付が有効かつ締切前）、そうでなければ開催前
//   - 開始日が到来: 終了日を過ぎていればcompleted、そうでなければin_progress
func ComputeStatus(l *League, now time.Time) LeagueStatus {
	if l.Status == LeagueStatusCancelled {
		return LeagueStatusCancelled
	}
	if now.Before(l.StartDate) {
		if l.RegistrationEnabled && !now.After(l.RegistrationDeadline) {
			return LeagueStatusRegistrationOpen
		}
		return LeagueStatusUpcoming
	}
	if l.EndDate != nil && now.After(*l.EndDate) {
		return LeagueStatusCompleted
	}
	return LeagueStatusInProgress
}

// IsFull は参加者が定員に達しているかを返す。定員なしの場合は常にfalse。
func (l *League) IsFull() bool {
	return l.MaxParticipants != nil && l.ParticipantCount >= *l.MaxParticipants
}

// AcceptsRegistration は現在日時において参加登録を受け付けるかを返す。
func (l *League) AcceptsRegistration(now time.Time) bool {
	return ComputeStatus(l, now) == LeagueStatusRegistrationOpen && !l.IsFull()
}
