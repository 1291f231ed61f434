// Package app はアプリケーションの起動と依存関係のワイヤリングを提供する。
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
	"github.com/redis/go-redis/v9"

	"github.com/hitoshi/tenantry/internal/auth"
	"github.com/hitoshi/tenantry/internal/bootstrap"
	"github.com/hitoshi/tenantry/internal/config"
	"github.com/hitoshi/tenantry/internal/database"
	"github.com/hitoshi/tenantry/internal/handler"
	"github.com/hitoshi/tenantry/internal/logger"
	"github.com/hitoshi/tenantry/internal/mailer"
	"github.com/hitoshi/tenantry/internal/metrics"
	"github.com/hitoshi/tenantry/internal/middleware"
	"github.com/hitoshi/tenantry/internal/organization"
	"github.com/hitoshi/tenantry/internal/repository"
	"github.com/hitoshi/tenantry/internal/reset"
	"github.com/hitoshi/tenantry/internal/user"
	"github.com/hitoshi/tenantry/internal/worker/cleanup"
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
	case CommandMigrate:
		return runMigrate(cfg)
	case CommandBootstrap:
		return runBootstrap(cfg)
	default:
		return runServe(cfg)
	}
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
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
	orgRepo := repository.NewPostgresOrganizationRepo(db)
	userRepo := repository.NewPostgresUserRepo(db)

	// 3. ドメインサービスの初期化
	orgService := organization.NewService(orgRepo, cfg.StoreTimeout)
	userService := user.NewService(userRepo, orgService, cfg.StoreTimeout)

	var oauthProvider auth.OAuthProvider
	if cfg.OAuthEnabled() {
		oauthProvider = auth.NewGoogleOAuthProvider(auth.GoogleOAuthConfig{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			RedirectURL:  cfg.GoogleRedirectURL,
		})
	}
	authService := auth.NewService(userRepo, oauthProvider, userService, auth.ServiceConfig{
		JWTSecret:    cfg.JWTSecret,
		TokenTTL:     cfg.TokenTTL,
		StoreTimeout: cfg.StoreTimeout,
	})

	var m mailer.Mailer
	if cfg.SMTPAddr != "" {
		m = mailer.NewSMTPMailer(cfg.SMTPAddr, cfg.SMTPFrom)
	} else {
		slog.Warn("SMTP_ADDR not set, reset mails are logged only")
		m = mailer.NewLogMailer()
	}
	resetService := reset.NewService(userRepo, m, reset.ServiceConfig{
		FrontendURL:  cfg.FrontendURL,
		StoreTimeout: cfg.StoreTimeout,
	})

	// 4. レート制限ストア（Redis設定時は共有、未設定時はインメモリ）
	var store middleware.RateLimitStore
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("failed to parse redis url: %w", err)
		}
		store = middleware.NewRedisRateLimitStore(redis.NewClient(opts))
		slog.Info("rate limit store: redis")
	} else {
		memStore := middleware.NewMemoryRateLimitStore()
		defer memStore.Stop()
		store = memStore
		slog.Info("rate limit store: memory")
	}

	// 5. メトリクス
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	// 6. ルーターの構築
	deps := &handler.RouterDeps{
		Logger:            slog.Default(),
		TokenVerifier:     authService,
		RateLimiter:       middleware.NewRateLimiter(store, cfg.RateLimitWindow).WithMetrics(collector),
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		HTTPMetrics:       collector,

		GeneralLimit: cfg.RateLimitGeneral,
		AuthLimit:    cfg.RateLimitAuth,

		AuthService:         authService,
		ResetService:        resetService,
		OrganizationService: orgService,
		UserService:         userService,

		AuthConfig: handler.AuthHandlerConfig{
			OAuthEnabled: cfg.OAuthEnabled(),
			CookieDomain: cfg.CookieDomain,
			CookieSecure: cfg.CookieSecure,
			CookieMaxAge: cfg.CookieMaxAge,
		},
		AuthMetrics: collector,
		UserMetrics: collector,

		MetricsHandler: metrics.Handler(registry),
	}

	router := handler.NewRouter(deps)

	// 7. 期限切れリセットトークンのクリーンアップジョブをバックグラウンドで起動
	jobCtx, cancelJobs := context.WithCancel(context.Background())
	defer cancelJobs()
	go cleanup.NewCleanupJob(db, slog.Default()).Start(jobCtx)

	// 8. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
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

// runBootstrap はSUPERADMINユーザーの初期作成を実行する。
// SUPERADMIN_NAME、SUPERADMIN_EMAIL、SUPERADMIN_PASSWORD環境変数を使用する。
func runBootstrap(cfg *config.Config) error {
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	orgRepo := repository.NewPostgresOrganizationRepo(db)
	userRepo := repository.NewPostgresUserRepo(db)
	orgService := organization.NewService(orgRepo, cfg.StoreTimeout)
	userService := user.NewService(userRepo, orgService, cfg.StoreTimeout)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	return bootstrap.SuperAdmin(ctx, userRepo, userService, bootstrap.Params{
		Name:     os.Getenv("SUPERADMIN_NAME"),
		Email:    os.Getenv("SUPERADMIN_EMAIL"),
		Password: os.Getenv("SUPERADMIN_PASSWORD"),
	})
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
