package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/tenantry/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger            *slog.Logger
	TokenVerifier     middleware.TokenVerifier
	RateLimiter       *middleware.RateLimiter
	CORSAllowedOrigin string
	HTTPMetrics       middleware.HTTPMetrics

	// レート制限の上限（ウィンドウあたり）
	GeneralLimit int
	AuthLimit    int

	// サービス
	AuthService         AuthServiceInterface
	ResetService        ResetServiceInterface
	OrganizationService OrganizationServiceInterface
	UserService         UserServiceInterface

	AuthConfig  AuthHandlerConfig
	AuthMetrics AuthMetrics
	UserMetrics UserMetrics

	// Prometheusスクレイプ用ハンドラー
	MetricsHandler http.Handler
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → Logging → SecurityHeaders → CORS → Metrics
//
// レート制限は/v1配下にのみ適用し、認証系エンドポイントには
// より厳しい上限を重ねる。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewLoggingMiddleware(deps.Logger))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	if deps.HTTPMetrics != nil {
		r.Use(middleware.NewMetricsMiddleware(deps.HTTPMetrics))
	}

	authHandler := NewAuthHandler(deps.AuthService, deps.ResetService, deps.AuthMetrics, deps.AuthConfig)
	orgHandler := NewOrganizationHandler(deps.OrganizationService)
	userHandler := NewUserHandler(deps.UserService, deps.UserMetrics)

	// --- 運用系エンドポイント（レート制限・認証の対象外） ---
	r.Get("/health", Health)
	r.Get("/ping", Ping)
	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}

	r.Route("/v1", func(r chi.Router) {
		r.Use(deps.RateLimiter.Middleware("general", deps.GeneralLimit))

		// 認証系（未認証でアクセス可。厳しいレート制限を重ねる）
		r.Route("/auth", func(r chi.Router) {
			strict := deps.RateLimiter.Middleware("auth", deps.AuthLimit)

			r.With(strict).Post("/login", authHandler.Login)
			r.With(strict).Post("/reset-password", authHandler.RequestReset)
			r.With(strict).Post("/set-password", authHandler.SetPassword)
			r.Post("/logout", authHandler.Logout)

			// OAuthフロー
			r.Get("/google", authHandler.GoogleLogin)
			r.Get("/google/callback", authHandler.GoogleCallback)
		})

		// --- 認証が必要なルート ---
		r.Group(func(r chi.Router) {
			r.Use(middleware.NewAuthMiddleware(deps.TokenVerifier))

			r.Route("/organizations", func(r chi.Router) {
				r.Get("/", orgHandler.List)
				r.Post("/", orgHandler.Create)
			})

			r.Post("/users", userHandler.Create)
		})
	})

	return r
}
