// Package app はアプリケーションの起動と依存関係のワイヤリングを行う。
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/hitoshi/slotman/internal/checkin"
	"github.com/hitoshi/slotman/internal/config"
	"github.com/hitoshi/slotman/internal/database"
	"github.com/hitoshi/slotman/internal/handler"
	"github.com/hitoshi/slotman/internal/league"
	"github.com/hitoshi/slotman/internal/lock"
	"github.com/hitoshi/slotman/internal/logger"
	"github.com/hitoshi/slotman/internal/metrics"
	"github.com/hitoshi/slotman/internal/middleware"
	"github.com/hitoshi/slotman/internal/notifier"
	"github.com/hitoshi/slotman/internal/registration"
	"github.com/hitoshi/slotman/internal/repository"
	"github.com/hitoshi/slotman/internal/security"
	"github.com/hitoshi/slotman/internal/worker/cleanup"
	"github.com/hitoshi/slotman/internal/worker/expire"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, logger.ParseLevel(os.Getenv("LOG_LEVEL")))

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("venue_code", cfg.VenueCode),
	)

	switch cmd {
	case CommandServe:
		return runServe(cfg)
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// buildNotifier は設定に応じた通知経路を構築する。
// hubが指定された場合はプロセス内ファンアウトを常に含める。
// REDIS_URLが設定されていればRedis pub/subへ、WEBHOOK_URLSが
// 設定されていれば検証済みURLへのWebhook転送を追加する。
// 返り値のcloseはシャットダウン時に呼び出すこと。
func buildNotifier(cfg *config.Config, hub *notifier.Hub) (notifier.Notifier, func(), error) {
	var targets notifier.Multi
	closers := []func(){}

	if hub != nil {
		targets = append(targets, hub)
	}

	if cfg.RedisURL != "" {
		pub, err := notifier.NewRedisPublisher(cfg.RedisURL, "slotman:events", slog.Default())
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create redis publisher: %w", err)
		}
		targets = append(targets, pub)
		closers = append(closers, func() { pub.Close() })
	}

	if len(cfg.WebhookURLs) > 0 {
		valid := make([]string, 0, len(cfg.WebhookURLs))
		for _, u := range cfg.WebhookURLs {
			if err := security.ValidateWebhookURL(u); err != nil {
				slog.Warn("invalid webhook URL skipped",
					slog.String("url", u),
					slog.String("error", err.Error()),
				)
				continue
			}
			valid = append(valid, u)
		}
		if len(valid) > 0 {
			client := security.NewSafeClient(cfg.WebhookTimeout)
			targets = append(targets, notifier.NewWebhookForwarder(client, valid, slog.Default()))
		}
	}

	closeAll := func() {
		for _, c := range closers {
			c()
		}
	}

	if len(targets) == 0 {
		return notifier.Nop{}, closeAll, nil
	}
	return targets, closeAll, nil
}

// rateLimiterConfig は設定値（req/min）からレート制限設定を組み立てる。
func rateLimiterConfig(cfg *config.Config) middleware.RateLimiterConfig {
	rlCfg := middleware.DefaultRateLimiterConfig()
	if cfg.RateLimitGeneral > 0 {
		rlCfg.GeneralRate = rate.Limit(float64(cfg.RateLimitGeneral) / 60.0)
		rlCfg.GeneralBurst = cfg.RateLimitGeneral
	}
	if cfg.RateLimitCheckIn > 0 {
		rlCfg.CheckInRate = rate.Limit(float64(cfg.RateLimitCheckIn) / 60.0)
		rlCfg.CheckInBurst = cfg.RateLimitCheckIn
	}
	return rlCfg
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return fmt.Errorf("failed to load timezone: %w", err)
	}

	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established")

	// 2. リポジトリの初期化
	userRepo := repository.NewPostgresUserRepo(db)
	sessionRepo := repository.NewPostgresSessionRepo(db)
	slotRepo := repository.NewPostgresTimeSlotRepo(db)
	attendanceRepo := repository.NewPostgresAttendanceRepo(db)
	regRepo := repository.NewPostgresRegistrationRepo(db)
	leagueRepo := repository.NewPostgresLeagueRepo(db)

	// 3. ロックとメトリクスの初期化
	locks := lock.NewManager(slog.Default())
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	// 4. 通知経路の構築
	hub := notifier.NewHub(slog.Default())
	notif, closeNotifier, err := buildNotifier(cfg, hub)
	if err != nil {
		return err
	}
	defer closeNotifier()

	// 5. ドメインサービスの初期化
	checkinService := checkin.NewService(
		userRepo, slotRepo, attendanceRepo, locks, notif, collector, slog.Default(),
		checkin.Options{
			VenueCode:   cfg.VenueCode,
			LockTimeout: cfg.LockTimeout,
			Location:    loc,
		},
	)
	registrationService := registration.NewService(
		regRepo, notif, collector, slog.Default(),
		registration.Options{
			RegistrationFee: cfg.RegistrationFee,
			MonthlyFee:      cfg.MonthlyFee,
			BillingDay:      cfg.BillingDay,
			MaxRetries:      cfg.OptimisticMaxRetries,
		},
	)
	leagueService := league.NewService(
		leagueRepo, userRepo, locks, notif, slog.Default(),
		league.Options{LockTimeout: cfg.LockTimeout},
	)

	// 6. ルーターの構築
	deps := &handler.RouterDeps{
		HealthChecker:     db,
		SessionFinder:     sessionRepo,
		UserFinder:        userRepo,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       middleware.NewRateLimiter(rateLimiterConfig(cfg)),
		Logger:            slog.Default(),
		Collector:         collector,
		MetricsHandler:    metrics.SetupMetricsRoute(registry),

		CheckInService:      checkinService,
		SlotService:         checkinService,
		VenueCode:           cfg.VenueCode,
		RegistrationService: registrationService,
		LeagueService:       leagueService,
		Hub:                 hub,
	}

	router := handler.NewRouter(deps)

	// 7. HTTPサーバーの起動
	server := &http.Server{
		Addr:        ":" + cfg.ServerPort,
		Handler:     router,
		ReadTimeout: 15 * time.Second,
		// SSE接続が長時間継続するためWriteTimeoutは設定しない
		IdleTimeout: 60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	// 遊休ロックエントリの定期回収
	reclaimCtx, cancelReclaim := context.WithCancel(context.Background())
	defer cancelReclaim()
	go func() {
		ticker := time.NewTicker(cfg.LockReclaimInterval)
		defer ticker.Stop()
		for {
			select {
			case <-reclaimCtx.Done():
				return
			case <-ticker.C:
				if n := locks.Reclaim(48 * time.Hour); n > 0 {
					slog.Info("reclaimed idle lock entries", slog.Int("count", n))
				}
			}
		}
	}()

	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	<-stop
	slog.Info("shutting down API server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker はバックグラウンドワーカーモードで起動する。
// 期限切れ会員登録の自動処理と期限切れセッションの削除を定期実行する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established (worker)")

	// 2. リポジトリとメトリクスの初期化
	regRepo := repository.NewPostgresRegistrationRepo(db)
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	// 3. 通知経路の構築（ワーカーはプロセス内購読者を持たない）
	notif, closeNotifier, err := buildNotifier(cfg, nil)
	if err != nil {
		return err
	}
	defer closeNotifier()

	// 4. 期限切れ処理ジョブの初期化
	registrationService := registration.NewService(
		regRepo, notif, collector, slog.Default(),
		registration.Options{
			RegistrationFee: cfg.RegistrationFee,
			MonthlyFee:      cfg.MonthlyFee,
			BillingDay:      cfg.BillingDay,
			MaxRetries:      cfg.OptimisticMaxRetries,
		},
	)
	expireJob := expire.NewJob(
		regRepo, registrationService, nil, collector, slog.Default(),
		expire.Options{GraceDays: cfg.ExpiryGraceDays},
	)

	// 5. セッションクリーンアップジョブの初期化
	cleanupJob := cleanup.NewSessionCleanupJob(db, slog.Default())

	// グレースフルシャットダウンのためのシグナルハンドリング
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-stop
		slog.Info("shutting down worker...")
		cancel()
	}()

	slog.Info("worker starting",
		slog.Duration("expire_interval", cfg.ExpireInterval),
		slog.Int("grace_days", cfg.ExpiryGraceDays),
	)

	// セッションクリーンアップジョブを日次でバックグラウンド実行
	go func() {
		// 起動直後に1回実行
		if err := cleanupJob.Run(ctx); err != nil {
			slog.Error("session cleanup job failed", slog.String("error", err.Error()))
		}

		ticker := time.NewTicker(24 * time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := cleanupJob.Run(ctx); err != nil {
					slog.Error("session cleanup job failed", slog.String("error", err.Error()))
				}
			}
		}
	}()

	// 期限切れ処理ジョブをメインgoroutineで実行（ブロッキング）
	expireJob.Start(ctx, cfg.ExpireInterval)

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	version, err := database.RunMigrations(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully",
		slog.Uint64("schema_version", uint64(version)),
	)
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
