package notifier

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// publishTimeout はRedisへの1回のPUBLISHに許容する時間。
const publishTimeout = 2 * time.Second

// RedisPublisher はRedis pub/subへイベントを転送するNotifier実装。
// 複数インスタンス構成でのファンアウトに使用する。
// 配信はバックグラウンドで行われ、失敗してもログに記録するのみ。
// ロックやコンセンサスには一切使用しない。
type RedisPublisher struct {
	client  *redis.Client
	channel string
	logger  *slog.Logger
}

// NewRedisPublisher はredisURL（例: "redis://localhost:6379/0"）から
// RedisPublisherを生成する。channelは全イベントを流すpub/subチャネル名。
func NewRedisPublisher(redisURL, channel string, logger *slog.Logger) (*RedisPublisher, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	return &RedisPublisher{
		client:  redis.NewClient(opts),
		channel: channel,
		logger:  logger,
	}, nil
}

// BroadcastToRoom はルームイベントをRedisへ転送する。
func (p *RedisPublisher) BroadcastToRoom(room, event string, payload any) {
	p.publish(room, event, payload)
}

// NotifyUser は利用者ルームのイベントをRedisへ転送する。
func (p *RedisPublisher) NotifyUser(userID, event string, payload any) {
	p.publish(UserRoom(userID), event, payload)
}

func (p *RedisPublisher) publish(room, event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		p.logger.Warn("Redis通知ペイロードのシリアライズに失敗しました",
			slog.String("room", room),
			slog.String("error", err.Error()),
		)
		return
	}

	msg, err := json.Marshal(Event{Room: room, Name: event, Payload: data})
	if err != nil {
		p.logger.Warn("Redis通知メッセージの構築に失敗しました",
			slog.String("room", room),
			slog.String("error", err.Error()),
		)
		return
	}

	// 変更操作の経路をブロックしないため、配信はバックグラウンドで行う
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()

		if err := p.client.Publish(ctx, p.channel, msg).Err(); err != nil {
			p.logger.Warn("Redisへのイベント配信に失敗しました",
				slog.String("room", room),
				slog.String("event", event),
				slog.String("error", err.Error()),
			)
		}
	}()
}

// Close はRedis接続を閉じる。
func (p *RedisPublisher) Close() error {
	return p.client.Close()
}

// compile-time interface check
var _ Notifier = (*RedisPublisher)(nil)
