package ws

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/minichat/internal/metrics"
	"github.com/hitoshi/minichat/internal/model"
)

// Hub は全WebSocketセッションのレジストリとメッセージのファンアウトを管理する。
// レジストリはmutexで保護され、接続・切断と並行してブロードキャストの
// スナップショット走査が安全に行える。
type Hub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	broadcast  chan *model.MessageWithAuthor

	mutex sync.RWMutex
	wg    sync.WaitGroup

	collector metrics.ChatMetrics

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewHub はHubを生成する。Runを別ゴルーチンで起動してから使用すること。
func NewHub(collector metrics.ChatMetrics) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *model.MessageWithAuthor, 64),
		collector:  collector,
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
}

// Register はクライアントをレジストリに登録し、読み書きポンプを起動する。
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// Broadcast は永続化済みメッセージを全承認済みセッションへ配信するよう依頼する。
// 配信はRunループが単一スレッドで処理する。
func (h *Hub) Broadcast(message *model.MessageWithAuthor) {
	select {
	case h.broadcast <- message:
	case <-h.ctx.Done():
	}
}

// Run はハブのメインイベントループを起動する。
// 登録・登録解除・ブロードキャストを単一ゴルーチンで逐次処理する。
// 別ゴルーチンで呼び出すこと。
func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case <-h.ctx.Done():
			h.shutdownClients()
			return

		case client := <-h.register:
			h.mutex.Lock()
			h.clients[client] = true
			clientCount := len(h.clients)
			h.mutex.Unlock()

			h.collector.RecordConnectionOpened()
			slog.Info("client connected",
				slog.String("addr", client.addr),
				slog.Int("total_clients", clientCount),
			)

			h.wg.Add(2)
			go func() {
				defer h.wg.Done()
				client.writePump()
			}()
			go func() {
				defer h.wg.Done()
				client.readPump()
			}()

		case client := <-h.unregister:
			h.removeClient(client, "disconnected")

		case message := <-h.broadcast:
			h.fanOut(message)
		}
	}
}

// fanOut はメッセージを承認済みかつ認証済みの全セッションへ配信する。
// 条件を満たさないセッションはエラーなしで読み飛ばす。
// 送信バッファが満杯のクライアントは切断対象とし、他セッションへの
// 配信を妨げない（ベストエフォート・再送なし）。
func (h *Hub) fanOut(message *model.MessageWithAuthor) {
	start := time.Now()

	payload, err := marshalNewMessage(*message)
	if err != nil {
		slog.Error("failed to marshal new_message event", slog.String("error", err.Error()))
		return
	}

	h.mutex.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mutex.RUnlock()

	delivered := 0
	var slowClients []*Client
	for _, client := range clients {
		if !client.eligibleForBroadcast() {
			continue
		}
		if client.trySend(payload) {
			delivered++
		} else {
			slowClients = append(slowClients, client)
		}
	}

	for _, client := range slowClients {
		slog.Warn("evicting slow client", slog.String("addr", client.addr))
		h.collector.RecordSlowClientEviction()
		h.removeClient(client, "send buffer full")
	}

	h.collector.RecordBroadcast(delivered)
	h.collector.RecordBroadcastLatency(time.Since(start))
}

// removeClient はクライアントをレジストリから外し、送信チャネルを閉じる。
// 未登録のクライアントに対しては何もしない（多重呼び出しに安全）。
func (h *Hub) removeClient(client *Client, reason string) {
	h.mutex.Lock()
	if _, ok := h.clients[client]; !ok {
		h.mutex.Unlock()
		return
	}
	delete(h.clients, client)
	client.markClosed()
	clientCount := len(h.clients)
	h.mutex.Unlock()

	// チャネルのcloseはロック解放後に行う
	close(client.send)

	h.collector.RecordConnectionClosed()
	slog.Info("client removed",
		slog.String("addr", client.addr),
		slog.String("reason", reason),
		slog.Int("total_clients", clientCount),
	)
}

// shutdownClients は全クライアントを登録解除し、接続を閉じる。
// 送信チャネルのcloseでwritePumpを、接続のcloseでreadPumpを終了させる。
func (h *Hub) shutdownClients() {
	h.mutex.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mutex.Unlock()

	for _, client := range clients {
		h.removeClient(client, "server shutdown")
		if client.conn != nil {
			client.conn.Close()
		}
	}

	slog.Info("closed all client connections", slog.Int("count", len(clients)))
}

// Shutdown はハブのグレースフルシャットダウンを行う。
// Runループの終了と全クライアントゴルーチンの完了を待ち、
// timeoutを超えた場合はcontext.DeadlineExceededを返す。
func (h *Hub) Shutdown(timeout time.Duration) error {
	h.cancel()
	<-h.done

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		slog.Info("hub shutdown completed")
		return nil
	case <-time.After(timeout):
		slog.Warn("hub shutdown timeout reached")
		return context.DeadlineExceeded
	}
}
