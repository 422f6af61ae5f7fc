// Package notifier はコミット済みの状態変更を観測者へ通知する
// ベストエフォートのpublish/subscribe層を提供する。
// 配信はat-most-onceであり、変更操作の正しさには一切関与しない。
// 配信失敗はログに記録されるのみで、コミット済みの変更を
// 巻き戻したり再試行したりすることはない。
package notifier

import "fmt"

// イベント名
const (
	// EventAttendanceUpdated は出席カウントの変化を通知する。
	EventAttendanceUpdated = "attendance_updated"
	// EventRegistrationUpdated は会員登録状態の変化を通知する。
	EventRegistrationUpdated = "registration_updated"
	// EventLeagueUpdated は大会参加状況の変化を通知する。
	EventLeagueUpdated = "league_updated"
)

// AttendancePayload は出席ルームへ配信するペイロード。
type AttendancePayload struct {
	TimeSlotID     string `json:"time_slot_id"`
	SessionDate    string `json:"session_date"`
	CurrentCount   int    `json:"current_count"`
	AvailableSpots int    `json:"available_spots"`
	IsFull         bool   `json:"is_full"`
}

// RegistrationPayload は利用者個人へ配信する登録状態ペイロード。
type RegistrationPayload struct {
	RegistrationID string `json:"registration_id"`
	Status         string `json:"status"`
	PaymentStatus  string `json:"payment_status"`
}

// Notifier は状態変更の通知先を抽象化する。
// 実装は変更操作の経路をブロックしてはならない。
type Notifier interface {
	// BroadcastToRoom はroomを購読中の全観測者へイベントを配信する。
	BroadcastToRoom(room, event string, payload any)
	// NotifyUser は指定利用者のアクティブな購読へのみ配信する。
	NotifyUser(userID, event string, payload any)
}

// SlotRoom は(スロット, 営業日)の出席ルーム名を返す。
func SlotRoom(timeSlotID, sessionDate string) string {
	return fmt.Sprintf("slot:%s:%s", timeSlotID, sessionDate)
}

// UserRoom は利用者個人のルーム名を返す。
func UserRoom(userID string) string {
	return fmt.Sprintf("user:%s", userID)
}

// Nop は何もしないNotifier。通知先が構成されていない場合に使用する。
type Nop struct{}

// BroadcastToRoom は何もしない。
func (Nop) BroadcastToRoom(room, event string, payload any) {}

// NotifyUser は何もしない。
func (Nop) NotifyUser(userID, event string, payload any) {}

// compile-time interface check
var _ Notifier = Nop{}
