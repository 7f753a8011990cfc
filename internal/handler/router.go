package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/roomcal/internal/middleware"
	"github.com/hitoshi/roomcal/internal/model"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	SessionFinder     middleware.SessionFinder
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	Logger            *slog.Logger
	StatusRecorder    middleware.StatusRecorder

	// 運用
	HealthChecker  HealthChecker
	MetricsHandler http.Handler

	// 認証
	AuthService AuthServiceInterface
	AuthConfig  AuthHandlerConfig

	// 会議室デバイス
	DeviceService  DeviceServiceInterface
	MeetingService MeetingServiceInterface

	// 管理画面
	UserService        UserServiceInterface
	AdminDeviceService AdminDeviceServiceInterface
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → SecurityHeaders → Logging → CORS → Session(scope) → RateLimit(General) [→ RateLimit(Meeting)]
//
// 認証ルート（/auth/*）、デバイス登録、/health、/metrics はセッション検証の外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewLoggingMiddleware(logger, deps.StatusRecorder))
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	authHandler := NewAuthHandler(deps.AuthService, deps.AuthConfig)
	deviceHandler := NewDeviceHandler(deps.DeviceService, deps.MeetingService, deps.AuthConfig)
	adminHandler := NewAdminHandler(deps.UserService, deps.AdminDeviceService, deps.AuthConfig)
	healthHandler := NewHealthHandler(deps.HealthChecker)

	// --- 認証不要のルート ---

	r.Get("/health", healthHandler.Health)
	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}

	// 認証ルート（OAuthフロー）
	r.Route("/auth", func(r chi.Router) {
		r.Get("/google/login", authHandler.Login)
		r.Get("/google/callback", authHandler.Callback)
		r.Post("/logout", authHandler.Logout)
	})

	// --- 会議室デバイス ---
	r.Route("/api/device", func(r chi.Router) {
		// 未登録のデバイスはセッションを持たない
		r.Post("/register", deviceHandler.Register)

		r.Group(func(r chi.Router) {
			r.Use(middleware.NewSessionMiddleware(deps.SessionFinder, model.SessionScopeDevice))
			r.Use(deps.RateLimiter.GeneralMiddleware())

			r.Get("/", deviceHandler.GetState)

			// 会議の変更系は会議操作用のレート制限を追加
			r.Route("/meeting", func(r chi.Router) {
				r.Use(deps.RateLimiter.MeetingMiddleware())
				r.Post("/", deviceHandler.CreateMeeting)
				r.Put("/{meetingID}", deviceHandler.ModifyMeeting)
				r.Delete("/{meetingID}", deviceHandler.DeleteMeeting)
			})
		})
	})

	// --- 管理画面 ---
	r.Route("/api/admin", func(r chi.Router) {
		r.Use(middleware.NewSessionMiddleware(deps.SessionFinder, model.SessionScopeAdmin))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		r.Get("/user", adminHandler.GetUser)
		r.Delete("/user", adminHandler.Withdraw)
		r.Get("/token", adminHandler.GetTokenStatus)
		r.Get("/calendar", adminHandler.ListCalendars)

		r.Route("/device", func(r chi.Router) {
			r.Get("/", adminHandler.ListDevices)
			r.Post("/", adminHandler.ConnectDevice)
			r.Put("/{deviceID}", adminHandler.UpdateDevice)
			r.Delete("/{deviceID}", adminHandler.RemoveDevice)
		})
	})

	return r
}
