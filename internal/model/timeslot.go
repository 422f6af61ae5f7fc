// Package model はドメインモデルを定義する。
package model

import (
	"fmt"
	"time"
)

// Restriction はタイムスロットの利用制限区分を表す。
type Restriction string

const (
	// RestrictionMale は男性専用スロット。
	RestrictionMale Restriction = "male"
	// RestrictionFemale は女性専用スロット。
	RestrictionFemale Restriction = "female"
	// RestrictionMixed は全利用者が利用可能なスロット。
	RestrictionMixed Restriction = "mixed"
	// RestrictionFacultyPG は大学院生・教職員・卒業生専用スロット。
	// 学部学生は明示的に対象外となる。
	RestrictionFacultyPG Restriction = "faculty_pg"
)

// TimeSlot は定員付きのタイムスロット設定を表す。
// 設定データとして管理され、チェックインのコアからは読み取り専用。
type TimeSlot struct {
	ID           string
	Label        string
	StartMinutes int          // 0時からの経過分（例: 9:00 = 540）
	EndMinutes   int          // 0時からの経過分。StartMinutes < EndMinutes
	DayOfWeek    *time.Weekday // nilの場合は毎日適用
	MaxCapacity  int
	Restriction  Restriction
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Admits は利用者の性別・所属区分がこのスロットの制限を満たすかを返す。
// 判定ルール:
//   - mixed: 全利用者を許可
//   - male / female: 性別の完全一致（大文字小文字は区別しない）
//   - faculty_pg: pg・faculty・alumniのみ許可。undergraduateは対象外
func (ts *TimeSlot) Admits(gender Gender, role Role) bool {
	switch ts.Restriction {
	case RestrictionMixed:
		return true
	case RestrictionMale:
		return gender == GenderMale
	case RestrictionFemale:
		return gender == GenderFemale
	case RestrictionFacultyPG:
		return role == RolePG || role == RoleFaculty || role == RoleAlumni
	default:
		return false
	}
}

// Contains は指定時刻（0時からの経過分）が[開始, 終了)区間に含まれるかを返す。
func (ts *TimeSlot) Contains(minutes int) bool {
	return ts.StartMinutes <= minutes && minutes < ts.EndMinutes
}

// AppliesOn は指定曜日にこのスロットが適用されるかを返す。
// DayOfWeekがnilの場合は毎日適用される。
func (ts *TimeSlot) AppliesOn(day time.Weekday) bool {
	return ts.DayOfWeek == nil || *ts.DayOfWeek == day
}

// StartClock は開始時刻を"HH:MM"形式で返す。
func (ts *TimeSlot) StartClock() string {
	return formatClock(ts.StartMinutes)
}

// EndClock は終了時刻を"HH:MM"形式で返す。
func (ts *TimeSlot) EndClock() string {
	return formatClock(ts.EndMinutes)
}

func formatClock(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

// ParseClock は"HH:MM"形式の時刻文字列を0時からの経過分に変換する。
func ParseClock(s string) (int, error) {
	var h, m int
	if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil {
		return 0, fmt.Errorf("時刻形式が不正です: %q", s)
	}
	if h < 0 || h > 24 || m < 0 || m > 59 || h*60+m > 24*60 {
		return 0, fmt.Errorf("時刻が範囲外です: %q", s)
	}
	return h*60 + m, nil
}

// MinutesOfDay は時刻tの0時からの経過分を返す。
// tのロケーションでの壁時計時刻を使用する。
func MinutesOfDay(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}

// SessionDate は時刻tが属する営業日を"2006-01-02"形式で返す。
// 日付の区切りはlocのタイムゾーンにおける深夜0時。
// セッションキーの一部として使用され、日付の切り替わりとともに
// 出席セッションが暗黙にリセットされる。
func SessionDate(t time.Time, loc *time.Location) string {
	return t.In(loc).Format("2006-01-02")
}
