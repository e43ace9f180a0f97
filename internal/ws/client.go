package ws

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/hitoshi/minichat/internal/metrics"
	"github.com/hitoshi/minichat/internal/model"
)

const (
	// writeWait は1回の書き込みに許容する時間。
	writeWait = 10 * time.Second
	// pongWait はpong応答を待つ時間。超過した接続は死んだとみなす。
	pongWait = 60 * time.Second
	// pingPeriod はping送信間隔。pongWaitより短くなければならない。
	pingPeriod = (pongWait * 9) / 10
	// sendBufferSize はクライアントごとの送信バッファ長。
	// 満杯になったクライアントは低速とみなし切断される。
	sendBufferSize = 256
)

// UserFinder はauthイベント処理が必要とするユーザー検索インターフェース。
type UserFinder interface {
	FindByID(ctx context.Context, id string) (*model.User, error)
}

// ChatService はセッションが必要とするチャット操作のインターフェース。
type ChatService interface {
	GlobalRoom(ctx context.Context) (*model.Room, error)
	History(ctx context.Context, roomID string, limit int) ([]model.MessageWithAuthor, error)
	Post(ctx context.Context, userID, roomID, content string) (*model.MessageWithAuthor, error)
}

// ClientConfig はセッションごとの制限設定。
type ClientConfig struct {
	SendRate       rate.Limit // send_messageイベントの許容レート（回/秒）
	SendBurst      int        // send_messageイベントのバーストサイズ
	MaxMessageSize int64      // 受信フレームの最大バイト数
}

// DefaultClientConfig はデフォルトのセッション制限設定を返す。
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		SendRate:       rate.Limit(2),
		SendBurst:      5,
		MaxMessageSize: 16384,
	}
}

// SessionDeps はClientが依存する外部コラボレーターをまとめた構造体。
type SessionDeps struct {
	Users     UserFinder
	Chat      ChatService
	Collector metrics.ChatMetrics
}

// Client は1つのWebSocket接続のセッション状態機械を表す。
//
// 状態は「未認証」で始まり、authイベントでユーザーが束縛される。
// 束縛時にユーザーの承認状態のスナップショットを取り、以後は参照しない。
// 認証後にユーザーの状態が帯域外で変更されても、このセッションの
// キャッシュには反映されない（接続が生きている間は古い状態が有効）。
// 切断はどの状態からも終端であり、セッション状態は永続化されない。
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	deps SessionDeps
	addr string

	send    chan []byte
	limiter *rate.Limiter

	stateMu       sync.RWMutex
	userID        string
	status        model.UserStatus
	authenticated bool
	closed        bool
}

// NewClient はClientを生成する。ハブへの登録は呼び出し側が行う。
func NewClient(conn *websocket.Conn, hub *Hub, addr string, deps SessionDeps, cfg ClientConfig) *Client {
	if conn != nil {
		conn.SetReadLimit(cfg.MaxMessageSize)
	}
	return &Client{
		hub:     hub,
		conn:    conn,
		deps:    deps,
		addr:    addr,
		send:    make(chan []byte, sendBufferSize),
		limiter: rate.NewLimiter(cfg.SendRate, cfg.SendBurst),
	}
}

// eligibleForBroadcast はブロードキャスト配信対象かを返す。
// 条件: ユーザーが束縛済み かつ キャッシュされた状態がapproved。
func (c *Client) eligibleForBroadcast() bool {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.authenticated && c.userID != "" && c.status == model.StatusApproved
}

// bindUser はセッションへユーザーを束縛し、承認状態のスナップショットを取る。
func (c *Client) bindUser(user *model.User) {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	c.userID = user.ID
	c.status = user.Status
	c.authenticated = user.Status == model.StatusApproved
}

// boundUserID は束縛済みユーザーIDを返す。未束縛の場合は空文字列。
func (c *Client) boundUserID() string {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.userID
}

// markClosed は送信チャネルがcloseされたことを記録する。ハブのみが呼ぶ。
func (c *Client) markClosed() {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	c.closed = true
}

// trySend は送信バッファへのノンブロッキング送信を試みる。
// バッファ満杯またはクローズ済みの場合はfalseを返す。
// ハブはmarkClosedの後にチャネルをcloseするため、ロックを保持したまま
// 送信することでclose済みチャネルへの送信を防ぐ。
func (c *Client) trySend(payload []byte) bool {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	if c.closed {
		return false
	}

	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

// sendEvent はイベントをこのセッションに送信する。
// マーシャル失敗・バッファ満杯はログに記録して破棄する（ベストエフォート）。
func (c *Client) sendEvent(payload []byte, err error) {
	if err != nil {
		slog.Error("failed to marshal event", slog.String("error", err.Error()))
		return
	}
	if !c.trySend(payload) {
		slog.Warn("dropping event for slow or closed client", slog.String("addr", c.addr))
	}
}

// readPump は受信フレームを読み続け、イベントとして処理する。
// 終了時にハブからの登録解除と接続クローズを行う。
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.ctx.Done():
		}
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseAbnormalClosure,
			) {
				slog.Warn("unexpected websocket close", slog.String("addr", c.addr), slog.String("error", err.Error()))
			}
			return
		}
		c.handleEvent(raw)
	}
}

// writePump は送信バッファの内容を接続へ書き続け、定期的にpingを送る。
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// ハブがこのセッションを登録解除した
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleEvent は受信イベントを種別ごとに処理する。
// ハンドラー内のあらゆるpanicは回収してerrorイベントへ変換し、
// 接続自体は閉じない。
func (c *Client) handleEvent(raw []byte) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("panic in event handler",
				slog.Any("panic", rec),
				slog.String("addr", c.addr),
			)
			c.sendEvent(marshalError(model.NewInternalError().Message))
		}
	}()

	event, err := decodeInbound(raw)
	if err != nil {
		c.sendEvent(marshalError("イベントをJSONとして解析できません。"))
		return
	}

	ctx := c.hub.ctx

	switch event.Type {
	case EventTypeAuth:
		c.handleAuth(ctx, event)
	case EventTypeSendMessage:
		c.handleSendMessage(ctx, event)
	case EventTypeJoinRoom:
		c.handleJoinRoom(ctx)
	default:
		c.sendEvent(marshalError(model.NewUnknownEventTypeError(event.Type).Message))
	}
}

// handleAuth はauthイベントを処理する。
// ユーザーを検索して束縛し、承認済みであればauth_successと
// chat_history（時系列昇順の直近メッセージ）を順に送信する。
func (c *Client) handleAuth(ctx context.Context, event *inboundEvent) {
	if event.UserID == "" {
		c.deps.Collector.RecordAuthFailure()
		c.sendEvent(marshalAuthError(model.NewMissingPayloadError().Message))
		return
	}

	user, err := c.deps.Users.FindByID(ctx, event.UserID)
	if err != nil {
		slog.Error("failed to look up user for auth", slog.String("error", err.Error()))
		c.deps.Collector.RecordAuthFailure()
		c.sendEvent(marshalAuthError(model.NewInternalError().Message))
		return
	}
	if user == nil {
		c.deps.Collector.RecordAuthFailure()
		c.sendEvent(marshalAuthError(model.NewUserNotFoundError().Message))
		return
	}

	c.bindUser(user)

	if user.Status != model.StatusApproved {
		// 束縛はするがブロードキャスト対象にはならない（終端分岐）
		c.deps.Collector.RecordAuthFailure()
		c.sendEvent(marshalAuthError(model.NewNotApprovedError(user.Status).Message))
		return
	}

	room, err := c.deps.Chat.GlobalRoom(ctx)
	if err != nil {
		slog.Error("failed to resolve global room", slog.String("error", err.Error()))
		c.deps.Collector.RecordAuthFailure()
		c.sendEvent(marshalAuthError(model.NewInternalError().Message))
		return
	}

	c.deps.Collector.RecordAuthSuccess()
	c.sendEvent(marshalAuthSuccess(user.Public(), room.ID))

	history, err := c.deps.Chat.History(ctx, room.ID, 0)
	if err != nil {
		slog.Error("failed to load chat history", slog.String("error", err.Error()))
		c.sendEvent(marshalError(model.NewInternalError().Message))
		return
	}
	c.sendEvent(marshalChatHistory(history))
}

// handleSendMessage はsend_messageイベントを処理する。
// 承認済みセッションのみ許可し、永続化成功後にハブへファンアウトを依頼する。
func (c *Client) handleSendMessage(ctx context.Context, event *inboundEvent) {
	if !c.eligibleForBroadcast() {
		c.stateMu.RLock()
		bound := c.userID != ""
		status := c.status
		c.stateMu.RUnlock()

		if !bound {
			c.sendEvent(marshalError(model.NewNotAuthenticatedError().Message))
		} else {
			c.sendEvent(marshalError(model.NewNotApprovedError(status).Message))
		}
		return
	}

	if !c.limiter.Allow() {
		c.sendEvent(marshalError(model.NewTooManyMessagesError().Message))
		return
	}

	result, err := c.deps.Chat.Post(ctx, c.boundUserID(), event.RoomID, event.Content)
	if err != nil {
		var apiErr *model.APIError
		if errors.As(err, &apiErr) {
			c.sendEvent(marshalError(apiErr.Message))
			return
		}
		slog.Error("failed to post message", slog.String("error", err.Error()))
		c.sendEvent(marshalError(model.NewInternalError().Message))
		return
	}

	c.deps.Collector.RecordMessageCreated()
	c.hub.Broadcast(result)
}

// handleJoinRoom はjoin_roomイベントを処理する。
// 単一ルームシステムのため、グローバルルームの情報を返すだけで状態は変えない。
func (c *Client) handleJoinRoom(ctx context.Context) {
	room, err := c.deps.Chat.GlobalRoom(ctx)
	if err != nil {
		slog.Error("failed to resolve global room", slog.String("error", err.Error()))
		c.sendEvent(marshalError(model.NewInternalError().Message))
		return
	}
	c.sendEvent(marshalJoinedRoom(room.ID, room.Name))
}
