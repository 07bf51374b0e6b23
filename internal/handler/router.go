package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/authbridge/internal/metrics"
	"github.com/hitoshi/authbridge/internal/middleware"
	"github.com/hitoshi/authbridge/internal/model"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	AuthService       AuthServiceInterface
	TokenResolver     middleware.TokenResolver
	DB                Pinger
	Logger            *slog.Logger
	Gatherer          prometheus.Gatherer
	RateLimiter       *middleware.RateLimiter
	CORSAllowedOrigin string
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → SecurityHeaders → CORS → Logging
//
// レート制限は /auth/login のみに適用する（認証前のためIPキー）。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewLoggingMiddleware(deps.Logger))

	// 許可されていないメソッドには統一エラーフォーマットで405を返す
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		middleware.WriteErrorResponse(w, http.StatusMethodNotAllowed,
			model.NewMethodNotAllowedError(req.Method))
	})

	authHandler := NewAuthHandler(deps.AuthService)
	healthHandler := NewHealthHandler(deps.DB)

	r.Route("/auth", func(r chi.Router) {
		r.With(deps.RateLimiter.Middleware()).Post("/login", authHandler.Login)
		r.Post("/logout", authHandler.Logout)

		// 認証が必要なルート
		r.Group(func(r chi.Router) {
			r.Use(middleware.NewAuthMiddleware(deps.TokenResolver))
			r.Get("/me", authHandler.Me)
		})
	})

	r.Get("/health", healthHandler.Health)
	r.Get("/metrics", metrics.Handler(deps.Gatherer).ServeHTTP)

	return r
}
