// Package model はドメインモデルを定義する。
package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CheckInMethod はチェックインの手段を表す。
type CheckInMethod string

const (
	// CheckInMethodQRScan はQRコードスキャンによるチェックイン。
	CheckInMethodQRScan CheckInMethod = "qr_scan"
	// CheckInMethodManual は管理者による手動チェックイン。
	CheckInMethodManual CheckInMethod = "manual"
)

// CheckInRecord は1件のチェックイン記録を表す。
// 作成後は不変であり、削除は管理者の明示的な操作によってのみ行われる。
type CheckInRecord struct {
	ID          string
	UserID      string
	TimeSlotID  string
	SessionDate string
	CheckInTime time.Time
	Method      CheckInMethod
}

// CheckInOutcome はチェックイン試行の結果区分を表す。
// 業務上想定される失敗は例外ではなく値として返す。
type CheckInOutcome string

const (
	// CheckInOutcomeSuccess はチェックイン成功。
	CheckInOutcomeSuccess CheckInOutcome = "success"
	// CheckInOutcomeAlreadyCheckedIn は同一利用者の重複チェックイン。
	CheckInOutcomeAlreadyCheckedIn CheckInOutcome = "already_checked_in"
	// CheckInOutcomeNotEligible はスロットの利用制限を満たさない。
	CheckInOutcomeNotEligible CheckInOutcome = "not_eligible"
	// CheckInOutcomeCapacityExceeded は定員超過。
	CheckInOutcomeCapacityExceeded CheckInOutcome = "capacity_exceeded"
)

// CheckInResult はAttendanceSession.CheckInのタグ付き結果を表す。
// Outcomeが成功の場合のみRecordが設定される。
type CheckInResult struct {
	Outcome        CheckInOutcome
	Record         *CheckInRecord
	NewCount       int
	AvailableSpots int
}

// AttendanceSession は(タイムスロット, 営業日)単位の出席状態を表す。
//
// 表現不変条件:
//   - currentCount == len(attendees)
//   - 0 <= currentCount <= slot.MaxCapacity
//   - attendeesに重複する利用者IDが存在しない
//
// ファクトリ関数以外での生成を禁止するため、フィールドは全て非公開。
// すべての変更操作は実行後に不変条件を再検証し、違反する変更は
// 状態に反映せずエラーを返す。
//
// このオブジェクト自体は同一セッションへの並行呼び出しに対して安全ではない。
// 呼び出し側が同じ(スロット, 日付)キーのロックを読み取りから永続化まで
// 保持する必要がある。
type AttendanceSession struct {
	slot        TimeSlot
	sessionDate string
	attendees   map[string]struct{}
	records     []CheckInRecord
	count       int
}

// NewAttendanceSession は空の出席セッションを生成する。
// 営業日ごとの初回アクセス時に生成され、日付がキーに含まれるため
// 明示的なリセット処理は存在しない。
func NewAttendanceSession(slot TimeSlot, sessionDate string) (*AttendanceSession, error) {
	s := &AttendanceSession{
		slot:        slot,
		sessionDate: sessionDate,
		attendees:   make(map[string]struct{}),
	}
	if err := s.validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// AttendanceSessionFromRecords は永続化済みのチェックイン記録から
// 出席セッションを復元する。記録が不変条件を満たさない場合は
// エラーを返し、セッションは生成されない。
// チェックイン時刻がnowより未来の記録は不変条件違反として扱う。
func AttendanceSessionFromRecords(slot TimeSlot, sessionDate string, records []CheckInRecord, now time.Time) (*AttendanceSession, error) {
	s := &AttendanceSession{
		slot:        slot,
		sessionDate: sessionDate,
		attendees:   make(map[string]struct{}, len(records)),
		records:     make([]CheckInRecord, 0, len(records)),
	}
	for _, rec := range records {
		if _, ok := s.attendees[rec.UserID]; ok {
			return nil, NewInvariantViolationError(
				fmt.Sprintf("利用者IDが重複しています: user=%s slot=%s date=%s", rec.UserID, slot.ID, sessionDate))
		}
		if rec.CheckInTime.After(now) {
			return nil, NewInvariantViolationError(
				fmt.Sprintf("チェックイン時刻が未来の記録が存在します: record=%s time=%s now=%s",
					rec.ID, rec.CheckInTime.Format(time.RFC3339), now.Format(time.RFC3339)))
		}
		s.attendees[rec.UserID] = struct{}{}
		s.records = append(s.records, rec)
		s.count++
	}
	if err := s.validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// validate は表現不変条件を検証する。
// 違反はロジック上の欠陥を意味し、業務上の失敗とは区別される。
func (s *AttendanceSession) validate() error {
	if s.count != len(s.attendees) {
		return NewInvariantViolationError(
			fmt.Sprintf("出席カウントと利用者集合の不一致: count=%d attendees=%d", s.count, len(s.attendees)))
	}
	if s.count != len(s.records) {
		return NewInvariantViolationError(
			fmt.Sprintf("出席カウントと記録数の不一致: count=%d records=%d", s.count, len(s.records)))
	}
	if s.count < 0 || s.count > s.slot.MaxCapacity {
		return NewInvariantViolationError(
			fmt.Sprintf("出席カウントが定員の範囲外: count=%d capacity=%d", s.count, s.slot.MaxCapacity))
	}
	return nil
}

// CheckIn は利用者のチェックインを試行する。
// 判定順序: (1) 重複チェックイン → (2) 利用制限 → (3) 定員 → (4) 記録追加。
// 成功時は利用者集合への追加・記録の追記・カウント増加を行った上で
// 不変条件を再検証する。
// エラーは不変条件違反の場合のみ返り、業務上の失敗はCheckInResultで表す。
func (s *AttendanceSession) CheckIn(user *User, method CheckInMethod, now time.Time) (CheckInResult, error) {
	if _, ok := s.attendees[user.ID]; ok {
		return CheckInResult{Outcome: CheckInOutcomeAlreadyCheckedIn, NewCount: s.count, AvailableSpots: s.AvailableSpots()}, nil
	}
	if !s.slot.Admits(user.Gender, user.Role) {
		return CheckInResult{Outcome: CheckInOutcomeNotEligible, NewCount: s.count, AvailableSpots: s.AvailableSpots()}, nil
	}
	if s.count >= s.slot.MaxCapacity {
		return CheckInResult{Outcome: CheckInOutcomeCapacityExceeded, NewCount: s.count, AvailableSpots: 0}, nil
	}

	rec := CheckInRecord{
		ID:          uuid.New().String(),
		UserID:      user.ID,
		TimeSlotID:  s.slot.ID,
		SessionDate: s.sessionDate,
		CheckInTime: now,
		Method:      method,
	}
	s.attendees[user.ID] = struct{}{}
	s.records = append(s.records, rec)
	s.count++

	if err := s.validate(); err != nil {
		// 不変条件違反の状態を外部に観測させないため、変更を巻き戻す
		delete(s.attendees, user.ID)
		s.records = s.records[:len(s.records)-1]
		s.count--
		return CheckInResult{}, err
	}

	return CheckInResult{
		Outcome:        CheckInOutcomeSuccess,
		Record:         &rec,
		NewCount:       s.count,
		AvailableSpots: s.AvailableSpots(),
	}, nil
}

// RemoveCheckIn は指定利用者のチェックイン記録を削除する。
// 管理者操作専用であり、呼び出し側がセッションロックを保持している必要がある。
// 該当記録が存在しない場合はfalseを返し、状態は変更されない。
func (s *AttendanceSession) RemoveCheckIn(userID string) (bool, error) {
	if _, ok := s.attendees[userID]; !ok {
		return false, nil
	}
	delete(s.attendees, userID)
	for i, rec := range s.records {
		if rec.UserID == userID {
			s.records = append(s.records[:i], s.records[i+1:]...)
			break
		}
	}
	s.count--
	if err := s.validate(); err != nil {
		return false, err
	}
	return true, nil
}

// Slot はこのセッションが属するタイムスロットを返す。
func (s *AttendanceSession) Slot() TimeSlot { return s.slot }

// SessionDate は営業日を"2006-01-02"形式で返す。
func (s *AttendanceSession) SessionDate() string { return s.sessionDate }

// CurrentCount は現在の出席者数を返す。
func (s *AttendanceSession) CurrentCount() int { return s.count }

// AvailableSpots は残り定員を返す。
func (s *AttendanceSession) AvailableSpots() int { return s.slot.MaxCapacity - s.count }

// IsFull は定員に達しているかを返す。
func (s *AttendanceSession) IsFull() bool { return s.count >= s.slot.MaxCapacity }

// HasAttendee は指定利用者がチェックイン済みかを返す。
func (s *AttendanceSession) HasAttendee(userID string) bool {
	_, ok := s.attendees[userID]
	return ok
}

// Records はチェックイン記録のコピーを時系列順で返す。
func (s *AttendanceSession) Records() []CheckInRecord {
	out := make([]CheckInRecord, len(s.records))
	copy(out, s.records)
	return out
}
