package notifier

// Multi は複数のNotifierへ同一イベントを順に配信する合成Notifier。
// 各実装が自前で非ブロッキング配信を保証しているため、
// Multi自体は追加の並行制御を行わない。
type Multi []Notifier

// BroadcastToRoom は全Notifierへ配信する。
func (m Multi) BroadcastToRoom(room, event string, payload any) {
	for _, n := range m {
		n.BroadcastToRoom(room, event, payload)
	}
}

// NotifyUser は全Notifierへ配信する。
func (m Multi) NotifyUser(userID, event string, payload any) {
	for _, n := range m {
		n.NotifyUser(userID, event, payload)
	}
}

// compile-time interface check
var _ Notifier = Multi(nil)
