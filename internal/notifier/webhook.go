package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"
)

// webhookTimeout はWebhook配信1回あたりのタイムアウト。
const webhookTimeout = 5 * time.Second

// WebhookForwarder は管理者が構成した外部URLへイベントをPOSTする
// Notifier実装。館内掲示板や外部の集計システムとの連携に使用する。
// 配信はバックグラウンドで行われ、失敗はログに記録するのみ。
type WebhookForwarder struct {
	client *http.Client
	urls   []string
	logger *slog.Logger
}

// NewWebhookForwarder はWebhookForwarderを生成する。
// clientにはSSRF防止機能付きのHTTPクライアントを渡すこと
// （security.NewSafeClientを参照）。
func NewWebhookForwarder(client *http.Client, urls []string, logger *slog.Logger) *WebhookForwarder {
	return &WebhookForwarder{
		client: client,
		urls:   urls,
		logger: logger,
	}
}

// BroadcastToRoom はルームイベントを全Webhook URLへ転送する。
func (f *WebhookForwarder) BroadcastToRoom(room, event string, payload any) {
	f.forward(room, event, payload)
}

// NotifyUser は利用者個人のイベントを転送しない。
// Webhookは館内向けの集計用途であり、個人宛の通知は対象外。
func (f *WebhookForwarder) NotifyUser(userID, event string, payload any) {}

func (f *WebhookForwarder) forward(room, event string, payload any) {
	if len(f.urls) == 0 {
		return
	}

	data, err := json.Marshal(payload)
	if err != nil {
		f.logger.Warn("Webhookペイロードのシリアライズに失敗しました",
			slog.String("room", room),
			slog.String("error", err.Error()),
		)
		return
	}
	body, err := json.Marshal(Event{Room: room, Name: event, Payload: data})
	if err != nil {
		f.logger.Warn("Webhookメッセージの構築に失敗しました",
			slog.String("room", room),
			slog.String("error", err.Error()),
		)
		return
	}

	for _, url := range f.urls {
		url := url
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), webhookTimeout)
			defer cancel()

			req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
			if err != nil {
				f.logger.Warn("Webhookリクエストの構築に失敗しました",
					slog.String("url", url),
					slog.String("error", err.Error()),
				)
				return
			}
			req.Header.Set("Content-Type", "application/json")

			resp, err := f.client.Do(req)
			if err != nil {
				f.logger.Warn("Webhookの配信に失敗しました",
					slog.String("url", url),
					slog.String("event", event),
					slog.String("error", err.Error()),
				)
				return
			}
			resp.Body.Close()

			if resp.StatusCode >= 400 {
				f.logger.Warn("Webhook配信先がエラーを返しました",
					slog.String("url", url),
					slog.String("event", event),
					slog.Int("status", resp.StatusCode),
				)
			}
		}()
	}
}

// compile-time interface check
var _ Notifier = (*WebhookForwarder)(nil)
