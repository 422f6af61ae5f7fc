package notifier

import (
	"encoding/json"
	"log/slog"
	"sync"
)

// subscriberBuffer は購読者ごとのイベントバッファ長。
// 消費が追いつかない購読者へのイベントは破棄される（at-most-once）。
const subscriberBuffer = 16

// Event は購読者へ配信される1件のイベント。
type Event struct {
	Room    string          `json:"room"`
	Name    string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// Subscription はHubへの1つの購読を表す。
type Subscription struct {
	hub   *Hub
	rooms map[string]struct{}
	ch    chan Event
}

// Events は購読イベントの受信チャネルを返す。
func (s *Subscription) Events() <-chan Event {
	return s.ch
}

// Close は購読を解除する。以降Eventsへの配信は行われない。
func (s *Subscription) Close() {
	s.hub.unsubscribe(s)
}

// Hub はプロセス内の購読者へイベントをファンアウトするNotifier実装。
// 配信は非ブロッキングで行われ、バッファの埋まった購読者への
// イベントは破棄してログに記録する。
type Hub struct {
	mu     sync.RWMutex
	subs   map[*Subscription]struct{}
	logger *slog.Logger
}

// NewHub はHubの新しいインスタンスを生成する。
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		subs:   make(map[*Subscription]struct{}),
		logger: logger,
	}
}

// Subscribe は指定ルーム群の購読を開始する。
// 呼び出し側は不要になったらCloseを呼ぶこと。
func (h *Hub) Subscribe(rooms []string) *Subscription {
	sub := &Subscription{
		hub:   h,
		rooms: make(map[string]struct{}, len(rooms)),
		ch:    make(chan Event, subscriberBuffer),
	}
	for _, room := range rooms {
		sub.rooms[room] = struct{}{}
	}

	h.mu.Lock()
	h.subs[sub] = struct{}{}
	h.mu.Unlock()
	return sub
}

// SubscriberCount は現在の購読数を返す。
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

func (h *Hub) unsubscribe(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[sub]; ok {
		delete(h.subs, sub)
		close(sub.ch)
	}
}

// BroadcastToRoom はroomを購読中の全購読者へイベントを配信する。
// ペイロードのシリアライズ失敗・バッファ溢れはログに記録するのみで、
// 呼び出し元には影響しない。
func (h *Hub) BroadcastToRoom(room, event string, payload any) {
	h.deliver(room, event, payload)
}

// NotifyUser は指定利用者のルームへ配信する。
func (h *Hub) NotifyUser(userID, event string, payload any) {
	h.deliver(UserRoom(userID), event, payload)
}

func (h *Hub) deliver(room, event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		if h.logger != nil {
			h.logger.Warn("通知ペイロードのシリアライズに失敗しました",
				slog.String("room", room),
				slog.String("event", event),
				slog.String("error", err.Error()),
			)
		}
		return
	}

	ev := Event{Room: room, Name: event, Payload: data}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.subs {
		if _, ok := sub.rooms[room]; !ok {
			continue
		}
		select {
		case sub.ch <- ev:
		default:
			// 消費の遅い購読者はブロックさせずイベントを破棄する
			if h.logger != nil {
				h.logger.Warn("購読者のバッファが一杯のためイベントを破棄しました",
					slog.String("room", room),
					slog.String("event", event),
				)
			}
		}
	}
}

// compile-time interface check
var _ Notifier = (*Hub)(nil)
