// Package app はroomcalの起動処理と依存関係のワイヤリングを提供する。
package app

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hitoshi/roomcal/internal/auth"
	"github.com/hitoshi/roomcal/internal/cache"
	"github.com/hitoshi/roomcal/internal/calendar"
	"github.com/hitoshi/roomcal/internal/config"
	"github.com/hitoshi/roomcal/internal/database"
	"github.com/hitoshi/roomcal/internal/device"
	"github.com/hitoshi/roomcal/internal/handler"
	"github.com/hitoshi/roomcal/internal/logger"
	"github.com/hitoshi/roomcal/internal/meeting"
	"github.com/hitoshi/roomcal/internal/metrics"
	"github.com/hitoshi/roomcal/internal/middleware"
	"github.com/hitoshi/roomcal/internal/repository"
	"github.com/hitoshi/roomcal/internal/security"
	"github.com/hitoshi/roomcal/internal/user"
	"github.com/hitoshi/roomcal/internal/worker/cleanup"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

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
		slog.String("base_url", cfg.BaseURL),
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

// openDatabase はDB接続を開き、疎通を確認する。
func openDatabase(cfg *config.Config) (*sql.DB, error) {
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// newRateLimiterConfig は設定値（req/min）からレート制限の設定を組み立てる。
// 0以下の値は既定値のまま使う。
func newRateLimiterConfig(cfg *config.Config) middleware.RateLimiterConfig {
	rlCfg := middleware.DefaultRateLimiterConfig()
	if cfg.RateLimitGeneral > 0 {
		rlCfg.GeneralRate, rlCfg.GeneralBurst = middleware.PerMinute(cfg.RateLimitGeneral)
	}
	if cfg.RateLimitMeeting > 0 {
		rlCfg.MeetingRate, rlCfg.MeetingBurst = middleware.PerMinute(cfg.RateLimitMeeting)
	}
	return rlCfg
}

// newRouterDeps はAPIサーバーの全依存関係を構築する。
func newRouterDeps(cfg *config.Config, db *sql.DB, reg *prometheus.Registry) *handler.RouterDeps {
	// 1. リポジトリの初期化
	credRepo := repository.NewPostgresCredentialRepo(db)
	deviceRepo := repository.NewPostgresDeviceRepo(db)
	sessionRepo := repository.NewPostgresSessionRepo(db)

	// 2. メトリクス
	collector := metrics.NewCollector(reg)

	// 3. 認証
	oauthProvider := auth.NewGoogleOAuthProvider(auth.GoogleOAuthConfig{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		RedirectURL:  cfg.GoogleRedirectURL,
	})
	authService := auth.NewService(
		oauthProvider, credRepo, sessionRepo,
		auth.ServiceConfig{
			SessionMaxAge:       cfg.SessionMaxAge,
			DeviceSessionMaxAge: cfg.DeviceSessionMaxAge,
		},
	)

	// 4. カレンダープロバイダ（プロセスで1つのキャッシュを共有）
	calendarCache := cache.New[any](cfg.CacheTTL)
	factory := calendar.NewFactory(oauthProvider.OAuthConfig(), calendarCache,
		calendar.WithFactoryEventsWindow(cfg.EventsWindow),
		calendar.WithFactoryMetrics(collector),
		calendar.WithTokenStore(credRepo),
	)
	resolver := calendar.NewResolver(factory, credRepo)

	// 5. ドメインサービスの初期化
	meetingService := meeting.NewService(resolver, deviceRepo, security.NewSummarySanitizer(),
		meeting.WithDefaultDuration(time.Duration(cfg.DefaultMeetingMinutes)*time.Minute),
		meeting.WithViewLimit(cfg.DeviceViewLimit),
		meeting.WithMaxConcurrentViews(cfg.CalendarFetchMaxConcurrent),
		meeting.WithActionRecorder(collector),
	)
	deviceService := device.NewService(deviceRepo, authService, meetingService, resolver, cfg.DeviceOnlineThreshold)
	userService := user.NewService(resolver, credRepo, sessionRepo)

	return &handler.RouterDeps{
		SessionFinder:     sessionRepo,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       middleware.NewRateLimiter(newRateLimiterConfig(cfg)),
		Logger:            slog.Default(),
		StatusRecorder:    collector,

		HealthChecker:  db,
		MetricsHandler: metrics.Handler(reg),

		AuthService: authService,
		AuthConfig: handler.AuthHandlerConfig{
			BaseURL:             cfg.BaseURL,
			CookieDomain:        cfg.CookieDomain,
			CookieSecure:        cfg.CookieSecure,
			SessionMaxAge:       cfg.SessionMaxAge,
			DeviceSessionMaxAge: cfg.DeviceSessionMaxAge,
		},

		DeviceService:  deviceService,
		MeetingService: meetingService,

		UserService:        userService,
		AdminDeviceService: deviceService,
	}
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established")

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	deps := newRouterDeps(cfg, db, reg)
	defer deps.RateLimiter.Stop()

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      handler.NewRouter(deps),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

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

// runWorker はワーカーモードで起動する。
// DB接続を開き、クリーンアップジョブを CLEANUP_INTERVAL ごとに実行する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established (worker)")

	cleanupJob := cleanup.NewCleanupJob(db, slog.Default(), cfg.UnconnectedDeviceTTL)

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
		slog.Duration("cleanup_interval", cfg.CleanupInterval),
		slog.Duration("unconnected_device_ttl", cfg.UnconnectedDeviceTTL),
	)

	// クリーンアップジョブをメインgoroutineで実行（ブロッキング）
	cleanupJob.RunEvery(ctx, cfg.CleanupInterval)

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
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
