// Package app はアプリケーションの起動とワイヤリングを提供する。
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

	"github.com/hitoshi/authbridge/internal/auth"
	"github.com/hitoshi/authbridge/internal/config"
	"github.com/hitoshi/authbridge/internal/database"
	"github.com/hitoshi/authbridge/internal/handler"
	"github.com/hitoshi/authbridge/internal/identity"
	"github.com/hitoshi/authbridge/internal/logger"
	"github.com/hitoshi/authbridge/internal/metrics"
	"github.com/hitoshi/authbridge/internal/middleware"
	"github.com/hitoshi/authbridge/internal/notify"
	"github.com/hitoshi/authbridge/internal/repository"
	"github.com/hitoshi/authbridge/internal/session"
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
	)

	switch cmd {
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. ユーザーストア接続
	connectCtx, connectCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer connectCancel()

	db, err := database.OpenAndVerify(connectCtx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	slog.Info("database connection established")

	userRepo := repository.NewPostgresUserRepo(db)

	// 2. セッション戦略の選択（デプロイ内で排他）
	issuer, sessionDB, err := buildIssuer(connectCtx, cfg)
	if err != nil {
		return err
	}
	if sessionDB != nil {
		defer sessionDB.Close()
	}

	slog.Info("session strategy selected",
		slog.String("strategy", issuer.Strategy()),
	)

	// 3. メトリクスの初期化
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	// 4. IdPクライアントの初期化
	provider := identity.NewHTTPProvider(
		&http.Client{},
		slog.Default(),
		cfg.ProviderLoginURL,
		cfg.ProviderTimeout,
	)

	// バックグラウンドゴルーチンの停止制御
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 5. 通知ディスパッチャの初期化（トークン未設定時は無効）
	var notifier auth.ProfileNotifier
	dispatcherDone := make(chan struct{})
	if cfg.NotifyEnabled() {
		notifyClient := notify.NewClient(
			&http.Client{Timeout: 10 * time.Second},
			slog.Default(),
			cfg.CourierAPIURL,
			cfg.CourierToken,
		)
		dispatcher := notify.NewDispatcher(
			notifyClient, slog.Default(), collector,
			cfg.NotifyQueueSize, cfg.NotifyMaxRetries,
		)
		go func() {
			defer close(dispatcherDone)
			dispatcher.Start(ctx)
		}()
		notifier = dispatcher
	} else {
		close(dispatcherDone)
		slog.Info("notification dispatch disabled (no courier token)")
	}

	// 6. 認証サービスの初期化
	authService := auth.NewService(
		provider, userRepo, issuer, notifier, collector,
		auth.ServiceConfig{DisableLogin: cfg.DisableLogin},
	)

	// 7. ルーターの構築
	rateLimiter := middleware.NewRateLimiter(
		middleware.DefaultRateLimiterConfig(cfg.RateLimitLogin),
	)
	defer rateLimiter.Stop()

	router := handler.NewRouter(&handler.RouterDeps{
		AuthService:       authService,
		TokenResolver:     issuer,
		DB:                db,
		Logger:            slog.Default(),
		Gatherer:          registry,
		RateLimiter:       rateLimiter,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
	})

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

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	// ディスパッチャを停止し、キューに残った通知の送信完了を待つ
	cancel()
	select {
	case <-dispatcherDone:
	case <-time.After(10 * time.Second):
		slog.Warn("通知ディスパッチャの停止がタイムアウトしました")
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// buildIssuer は設定に応じてセッション発行戦略を構築する。
// SESSION_DATABASE_URLが設定されている場合はストア型、未設定の場合は署名付きトークン。
// ストア型の場合は第2戻り値で接続を返す（呼び出し元がCloseする）。
func buildIssuer(ctx context.Context, cfg *config.Config) (session.Issuer, *sql.DB, error) {
	if !cfg.SessionStoreEnabled() {
		return session.NewTokenIssuer(cfg.TokenSecret, cfg.TokenTTL), nil, nil
	}

	sessionDB, err := database.OpenAndVerify(ctx, cfg.SessionDatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open session database: %w", err)
	}

	sessionRepo := repository.NewPostgresSessionRepo(sessionDB)
	maxAge := time.Duration(cfg.SessionMaxAge) * time.Second

	return session.NewStoreIssuer(sessionRepo, maxAge), sessionDB, nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
// セッションストアが別DBの場合はそちらにも適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	if cfg.SessionStoreEnabled() && cfg.SessionDatabaseURL != cfg.DatabaseURL {
		slog.Info("running session store migrations",
			slog.String("database_url", maskDatabaseURL(cfg.SessionDatabaseURL)),
		)
		if err := database.RunMigrations(cfg.SessionDatabaseURL); err != nil {
			return fmt.Errorf("session store migration failed: %w", err)
		}
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
