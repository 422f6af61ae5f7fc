package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/hitoshi/slotman/internal/middleware"
	"github.com/hitoshi/slotman/internal/model"
	"github.com/hitoshi/slotman/internal/notifier"
)

// maxRoomsPerSubscription は1購読あたりのルーム数上限。
const maxRoomsPerSubscription = 20

// EventsHandler はServer-Sent Eventsによるリアルタイム配信のハンドラー。
// Hubの購読をSSEストリームとして公開する。配信はベストエフォートで
// あり、取りこぼしたクライアントは占有APIの再取得で追いつく。
type EventsHandler struct {
	hub *notifier.Hub
}

// NewEventsHandler はEventsHandlerを生成する。
func NewEventsHandler(hub *notifier.Hub) *EventsHandler {
	return &EventsHandler{hub: hub}
}

// Stream はSSEストリームを開始する。
// GET /api/events?rooms=slot:xxx:2026-09-01,league:yyy
//
// 認証済み利用者は自分のユーザールームを常に購読する。
// roomsパラメータで追加の公開ルーム（スロット・大会）を指定できる。
func (h *EventsHandler) Stream(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		handleServiceError(w, fmt.Errorf("response writer does not support flushing"))
		return
	}

	rooms := []string{notifier.UserRoom(userID)}
	if param := r.URL.Query().Get("rooms"); param != "" {
		requested := strings.Split(param, ",")
		if len(requested) > maxRoomsPerSubscription {
			handleServiceError(w, model.NewValidationError(
				fmt.Sprintf("購読できるルームは%d件までです", maxRoomsPerSubscription)))
			return
		}
		for _, room := range requested {
			room = strings.TrimSpace(room)
			if room == "" {
				continue
			}
			// 他利用者の個人ルームは購読させない
			if strings.HasPrefix(room, "user:") {
				continue
			}
			rooms = append(rooms, room)
		}
	}

	sub := h.hub.Subscribe(rooms)
	defer sub.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, ok := <-sub.Events():
			if !ok {
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Name, data)
			flusher.Flush()
		}
	}
}
