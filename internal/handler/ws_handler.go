package handler

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/hitoshi/minichat/internal/middleware"
	"github.com/hitoshi/minichat/internal/ws"
)

// WSHandler はWebSocket接続のアップグレードとセッション登録を行う。
type WSHandler struct {
	hub      *ws.Hub
	deps     ws.SessionDeps
	config   ws.ClientConfig
	upgrader websocket.Upgrader
}

// NewWSHandler はWSHandlerを生成する。
// allowedOriginが空の場合はオリジン検証を行わない（開発用）。
func NewWSHandler(hub *ws.Hub, deps ws.SessionDeps, config ws.ClientConfig, allowedOrigin string) *WSHandler {
	return &WSHandler{
		hub:    hub,
		deps:   deps,
		config: config,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				if allowedOrigin == "" {
					return true
				}
				origin := r.Header.Get("Origin")
				return origin == "" || origin == allowedOrigin
			},
		},
	}
}

// Serve はHTTP接続をWebSocketへアップグレードし、セッションをハブへ登録する。
// GET /ws
func (h *WSHandler) Serve(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgradeが失敗した場合はレスポンス済みのためログのみ
		slog.Warn("websocket upgrade failed",
			slog.String("remote_addr", middleware.ClientIP(r)),
			slog.String("error", err.Error()),
		)
		return
	}

	client := ws.NewClient(conn, h.hub, middleware.ClientIP(r), h.deps, h.config)
	h.hub.Register(client)
}
