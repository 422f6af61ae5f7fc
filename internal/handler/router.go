package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/slotman/internal/metrics"
	"github.com/hitoshi/slotman/internal/middleware"
	"github.com/hitoshi/slotman/internal/notifier"
)

// HealthChecker はヘルスチェックでの死活確認に必要なインターフェース。
// *sql.DB を受け付けることができる。
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	HealthChecker     HealthChecker
	SessionFinder     middleware.SessionFinder
	UserFinder        middleware.UserFinder
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	Logger            *slog.Logger
	Collector         metrics.MetricsCollector
	MetricsHandler    http.Handler

	// チェックイン
	CheckInService CheckInServiceInterface

	// スロット
	SlotService SlotServiceInterface
	VenueCode   string

	// 会員登録
	RegistrationService RegistrationServiceInterface

	// 大会
	LeagueService LeagueServiceInterface

	// リアルタイム配信
	Hub *notifier.Hub
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	CORSMiddleware → SecurityHeaders → Recovery → Logging
//	→ SessionMiddleware → RateLimitMiddleware(GeneralMiddleware)
//
// ヘルスチェック（/health）は認証チェーンの外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	// 全ルートに効くミドルウェア
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewLoggingMiddleware(deps.Logger, deps.Collector))

	checkinHandler := NewCheckInHandler(deps.CheckInService)
	slotHandler := NewSlotHandler(deps.SlotService, deps.VenueCode)
	registrationHandler := NewRegistrationHandler(deps.RegistrationService)
	leagueHandler := NewLeagueHandler(deps.LeagueService)
	eventsHandler := NewEventsHandler(deps.Hub)

	// --- 認証不要のルート ---

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if deps.HealthChecker != nil {
			if err := deps.HealthChecker.PingContext(r.Context()); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				w.Write([]byte(`{"status":"unavailable"}`))
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})

	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}

	// --- 認証が必要なルート ---
	// ミドルウェアスタック: Session → RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewSessionMiddleware(deps.SessionFinder))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		// チェックイン（専用レート制限を追加）
		r.With(deps.RateLimiter.CheckInMiddleware()).Post("/api/checkin", checkinHandler.CheckIn)

		// スロット・占有状況
		r.Route("/api/slots", func(r chi.Router) {
			r.Get("/", slotHandler.ListSlots)
			r.Get("/qr", slotHandler.GetQRCode)
			r.Get("/{id}/occupancy", slotHandler.GetOccupancy)
		})

		// 会員登録
		r.Route("/api/registrations", func(r chi.Router) {
			r.Post("/", registrationHandler.Create)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", registrationHandler.Get)
				r.Post("/verify", registrationHandler.VerifyPayment)
			})
		})

		// 大会
		r.Route("/api/leagues", func(r chi.Router) {
			r.Get("/", leagueHandler.List)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", leagueHandler.Get)
				r.Post("/join", leagueHandler.Join)
			})
		})

		// リアルタイム配信（SSE）
		r.Get("/api/events", eventsHandler.Stream)

		// 管理操作（管理者のみ）
		r.Route("/api/admin", func(r chi.Router) {
			r.Use(middleware.NewAdminOnlyMiddleware(deps.UserFinder))
			r.Delete("/attendance/{slotID}/{date}/{userID}", checkinHandler.RemoveCheckIn)
		})
	})

	return r
}
