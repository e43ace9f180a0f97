package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hitoshi/minichat/internal/middleware"
	"github.com/hitoshi/minichat/internal/ws"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger            *slog.Logger
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter

	// 認証
	AuthService AuthServiceInterface

	// チャット
	ChatService ChatServiceInterface

	// WebSocket
	Hub          *ws.Hub
	SessionDeps  ws.SessionDeps
	ClientConfig ws.ClientConfig

	// ヘルスチェック
	DB Pinger

	// メトリクス
	MetricsRegistry *prometheus.Registry
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → SecurityHeaders → CORS → Logging → RateLimit(General)
//
// /healthと/metricsはレート制限の外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewLoggingMiddleware(deps.Logger))

	authHandler := NewAuthHandler(deps.AuthService)
	messageHandler := NewMessageHandler(deps.ChatService)
	healthHandler := NewHealthHandler(deps.DB)
	wsHandler := NewWSHandler(deps.Hub, deps.SessionDeps, deps.ClientConfig, deps.CORSAllowedOrigin)

	// --- 運用系ルート（レート制限なし） ---
	r.Get("/health", healthHandler.Check)
	if deps.MetricsRegistry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(deps.MetricsRegistry, promhttp.HandlerOpts{}))
	}

	// --- APIルート ---
	r.Group(func(r chi.Router) {
		r.Use(deps.RateLimiter.GeneralMiddleware())

		// POST /auth - initData認証（総当たり対策の専用レート制限を追加）
		r.With(deps.RateLimiter.AuthMiddleware()).Post("/auth", authHandler.Authenticate)

		// GET /messages[/{roomID}] - チャット履歴（roomID省略時はグローバルルーム）
		r.Get("/messages", messageHandler.History)
		r.Get("/messages/{roomID}", messageHandler.History)
	})

	// WebSocketはロングライブ接続のためレート制限の外
	r.Get("/ws", wsHandler.Serve)

	return r
}
