package ws

import (
	"context"
	"encoding/json"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/time/rate"

	"github.com/hitoshi/minichat/internal/model"
)

// mockUserFinder はUserFinderのモック実装。
type mockUserFinder struct {
	findByIDFunc func(ctx context.Context, id string) (*model.User, error)
}

func (m *mockUserFinder) FindByID(ctx context.Context, id string) (*model.User, error) {
	return m.findByIDFunc(ctx, id)
}

// mockChatService はChatServiceのモック実装。
type mockChatService struct {
	globalRoomFunc func(ctx context.Context) (*model.Room, error)
	historyFunc    func(ctx context.Context, roomID string, limit int) ([]model.MessageWithAuthor, error)
	postFunc       func(ctx context.Context, userID, roomID, content string) (*model.MessageWithAuthor, error)
}

func (m *mockChatService) GlobalRoom(ctx context.Context) (*model.Room, error) {
	return m.globalRoomFunc(ctx)
}

func (m *mockChatService) History(ctx context.Context, roomID string, limit int) ([]model.MessageWithAuthor, error) {
	return m.historyFunc(ctx, roomID, limit)
}

func (m *mockChatService) Post(ctx context.Context, userID, roomID, content string) (*model.MessageWithAuthor, error) {
	return m.postFunc(ctx, userID, roomID, content)
}

// mockCollector はmetrics.ChatMetricsのモック実装。呼び出し回数のみ記録する。
type mockCollector struct {
	connectionsOpened atomic.Int64
	connectionsClosed atomic.Int64
	authSuccesses     atomic.Int64
	authFailures      atomic.Int64
	messagesCreated   atomic.Int64
	broadcasts        atomic.Int64
	lastRecipients    atomic.Int64
	slowEvictions     atomic.Int64
}

func (m *mockCollector) RecordConnectionOpened() { m.connectionsOpened.Add(1) }
func (m *mockCollector) RecordConnectionClosed() { m.connectionsClosed.Add(1) }
func (m *mockCollector) RecordAuthSuccess()      { m.authSuccesses.Add(1) }
func (m *mockCollector) RecordAuthFailure()      { m.authFailures.Add(1) }
func (m *mockCollector) RecordMessageCreated()   { m.messagesCreated.Add(1) }
func (m *mockCollector) RecordBroadcast(recipients int) {
	m.broadcasts.Add(1)
	m.lastRecipients.Store(int64(recipients))
}
func (m *mockCollector) RecordBroadcastLatency(time.Duration) {}
func (m *mockCollector) RecordSlowClientEviction()            { m.slowEvictions.Add(1) }

func approvedUser(id string) *model.User {
	return &model.User{
		ID:         id,
		TelegramID: 12345,
		AnonName:   "Guest0001",
		Status:     model.StatusApproved,
		CreatedAt:  time.Now(),
	}
}

func testRoom() *model.Room {
	return &model.Room{ID: "room-1", Name: model.GlobalRoomName}
}

func defaultDeps() SessionDeps {
	return SessionDeps{
		Users: &mockUserFinder{
			findByIDFunc: func(ctx context.Context, id string) (*model.User, error) {
				return approvedUser(id), nil
			},
		},
		Chat: &mockChatService{
			globalRoomFunc: func(ctx context.Context) (*model.Room, error) {
				return testRoom(), nil
			},
			historyFunc: func(ctx context.Context, roomID string, limit int) ([]model.MessageWithAuthor, error) {
				return nil, nil
			},
			postFunc: func(ctx context.Context, userID, roomID, content string) (*model.MessageWithAuthor, error) {
				return &model.MessageWithAuthor{ID: "msg-1", RoomID: roomID, Content: content}, nil
			},
		},
		Collector: &mockCollector{},
	}
}

func newTestClient(t *testing.T, deps SessionDeps) *Client {
	t.Helper()
	hub := NewHub(deps.Collector)
	t.Cleanup(hub.cancel)
	return NewClient(nil, hub, "test-addr", deps, DefaultClientConfig())
}

// nextEvent はクライアントの送信バッファから次のイベントを取り出す。
func nextEvent(t *testing.T, c *Client) map[string]any {
	t.Helper()
	select {
	case payload := <-c.send:
		var event map[string]any
		if err := json.Unmarshal(payload, &event); err != nil {
			t.Fatalf("イベントのJSON解析に失敗しました: %v", err)
		}
		return event
	case <-time.After(time.Second):
		t.Fatal("イベントが送信されませんでした")
		return nil
	}
}

func assertNoEvent(t *testing.T, c *Client) {
	t.Helper()
	select {
	case payload := <-c.send:
		t.Fatalf("イベントが送信されないはずが送信されました: %s", payload)
	default:
	}
}

func authenticate(t *testing.T, c *Client, userID string) {
	t.Helper()
	c.handleEvent([]byte(`{"type":"auth","userId":"` + userID + `"}`))
	if event := nextEvent(t, c); event["type"] != EventTypeAuthSuccess {
		t.Fatalf("auth_successを期待しましたが %v でした", event)
	}
	nextEvent(t, c) // chat_history
}

func TestHandleEvent_InvalidJSON(t *testing.T) {
	c := newTestClient(t, defaultDeps())

	c.handleEvent([]byte(`{not json`))

	event := nextEvent(t, c)
	if event["type"] != EventTypeError {
		t.Errorf("type = %v, want %s", event["type"], EventTypeError)
	}
}

func TestHandleEvent_UnknownType(t *testing.T) {
	c := newTestClient(t, defaultDeps())

	c.handleEvent([]byte(`{"type":"subscribe"}`))

	event := nextEvent(t, c)
	if event["type"] != EventTypeError {
		t.Errorf("type = %v, want %s", event["type"], EventTypeError)
	}
	if msg, _ := event["message"].(string); !strings.Contains(msg, "subscribe") {
		t.Errorf("エラーメッセージに不明なイベント種別が含まれていません: %v", event["message"])
	}
}

func TestHandleAuth_MissingUserID(t *testing.T) {
	c := newTestClient(t, defaultDeps())

	c.handleEvent([]byte(`{"type":"auth"}`))

	event := nextEvent(t, c)
	if event["type"] != EventTypeAuthError {
		t.Errorf("type = %v, want %s", event["type"], EventTypeAuthError)
	}
	if c.eligibleForBroadcast() {
		t.Error("userId未指定のセッションが配信対象になっています")
	}
}

func TestHandleAuth_UnknownUser(t *testing.T) {
	deps := defaultDeps()
	deps.Users = &mockUserFinder{
		findByIDFunc: func(ctx context.Context, id string) (*model.User, error) {
			return nil, nil
		},
	}
	c := newTestClient(t, deps)

	c.handleEvent([]byte(`{"type":"auth","userId":"nonexistent"}`))

	event := nextEvent(t, c)
	if event["type"] != EventTypeAuthError {
		t.Errorf("type = %v, want %s", event["type"], EventTypeAuthError)
	}
	if c.eligibleForBroadcast() {
		t.Error("存在しないユーザーのセッションが配信対象になっています")
	}
	if c.boundUserID() != "" {
		t.Error("存在しないユーザーがセッションに束縛されています")
	}
	if got := deps.Collector.(*mockCollector).authFailures.Load(); got != 1 {
		t.Errorf("authFailures = %d, want 1", got)
	}
}

func TestHandleAuth_PendingUser(t *testing.T) {
	deps := defaultDeps()
	deps.Users = &mockUserFinder{
		findByIDFunc: func(ctx context.Context, id string) (*model.User, error) {
			user := approvedUser(id)
			user.Status = model.StatusPending
			return user, nil
		},
	}
	c := newTestClient(t, deps)

	c.handleEvent([]byte(`{"type":"auth","userId":"user-1"}`))

	event := nextEvent(t, c)
	if event["type"] != EventTypeAuthError {
		t.Errorf("type = %v, want %s", event["type"], EventTypeAuthError)
	}
	// 未承認でもユーザーは束縛される（ただし配信対象にはならない）
	if c.boundUserID() != "user-1" {
		t.Errorf("boundUserID = %q, want user-1", c.boundUserID())
	}
	if c.eligibleForBroadcast() {
		t.Error("pending状態のセッションが配信対象になっています")
	}
}

func TestHandleAuth_ApprovedUser(t *testing.T) {
	deps := defaultDeps()
	deps.Chat = &mockChatService{
		globalRoomFunc: func(ctx context.Context) (*model.Room, error) {
			return testRoom(), nil
		},
		historyFunc: func(ctx context.Context, roomID string, limit int) ([]model.MessageWithAuthor, error) {
			if roomID != "room-1" {
				t.Errorf("History roomID = %q, want room-1", roomID)
			}
			return []model.MessageWithAuthor{{ID: "msg-1", RoomID: roomID, Content: "こんにちは"}}, nil
		},
	}
	c := newTestClient(t, deps)

	c.handleEvent([]byte(`{"type":"auth","userId":"user-1"}`))

	success := nextEvent(t, c)
	if success["type"] != EventTypeAuthSuccess {
		t.Fatalf("type = %v, want %s", success["type"], EventTypeAuthSuccess)
	}
	if success["roomId"] != "room-1" {
		t.Errorf("roomId = %v, want room-1", success["roomId"])
	}
	user, ok := success["user"].(map[string]any)
	if !ok {
		t.Fatalf("userフィールドがオブジェクトではありません: %v", success["user"])
	}
	if user["anonName"] != "Guest0001" {
		t.Errorf("anonName = %v, want Guest0001", user["anonName"])
	}

	history := nextEvent(t, c)
	if history["type"] != EventTypeChatHistory {
		t.Fatalf("type = %v, want %s", history["type"], EventTypeChatHistory)
	}
	messages, ok := history["messages"].([]any)
	if !ok {
		t.Fatalf("messagesフィールドが配列ではありません: %v", history["messages"])
	}
	if len(messages) != 1 {
		t.Errorf("len(messages) = %d, want 1", len(messages))
	}

	if !c.eligibleForBroadcast() {
		t.Error("承認済みセッションが配信対象になっていません")
	}
	if got := deps.Collector.(*mockCollector).authSuccesses.Load(); got != 1 {
		t.Errorf("authSuccesses = %d, want 1", got)
	}
}

func TestHandleAuth_EmptyHistoryIsArray(t *testing.T) {
	c := newTestClient(t, defaultDeps())

	c.handleEvent([]byte(`{"type":"auth","userId":"user-1"}`))

	nextEvent(t, c) // auth_success
	select {
	case payload := <-c.send:
		if !strings.Contains(string(payload), `"messages":[]`) {
			t.Errorf("空の履歴が空配列になっていません: %s", payload)
		}
	case <-time.After(time.Second):
		t.Fatal("chat_historyが送信されませんでした")
	}
}

func TestHandleSendMessage_Unauthenticated(t *testing.T) {
	deps := defaultDeps()
	posted := false
	deps.Chat.(*mockChatService).postFunc = func(ctx context.Context, userID, roomID, content string) (*model.MessageWithAuthor, error) {
		posted = true
		return nil, nil
	}
	c := newTestClient(t, deps)

	c.handleEvent([]byte(`{"type":"send_message","content":"hello"}`))

	event := nextEvent(t, c)
	if event["type"] != EventTypeError {
		t.Errorf("type = %v, want %s", event["type"], EventTypeError)
	}
	if posted {
		t.Error("未認証セッションのメッセージが永続化されました")
	}
	assertNoEvent(t, c)
}

func TestHandleSendMessage_PendingUser(t *testing.T) {
	deps := defaultDeps()
	deps.Users = &mockUserFinder{
		findByIDFunc: func(ctx context.Context, id string) (*model.User, error) {
			user := approvedUser(id)
			user.Status = model.StatusPending
			return user, nil
		},
	}
	posted := false
	deps.Chat.(*mockChatService).postFunc = func(ctx context.Context, userID, roomID, content string) (*model.MessageWithAuthor, error) {
		posted = true
		return nil, nil
	}
	c := newTestClient(t, deps)

	c.handleEvent([]byte(`{"type":"auth","userId":"user-1"}`))
	nextEvent(t, c) // auth_error

	c.handleEvent([]byte(`{"type":"send_message","content":"hello"}`))

	event := nextEvent(t, c)
	if event["type"] != EventTypeError {
		t.Errorf("type = %v, want %s", event["type"], EventTypeError)
	}
	if posted {
		t.Error("未承認セッションのメッセージが永続化されました")
	}
}

func TestHandleSendMessage_Approved(t *testing.T) {
	deps := defaultDeps()
	deps.Chat.(*mockChatService).postFunc = func(ctx context.Context, userID, roomID, content string) (*model.MessageWithAuthor, error) {
		if userID != "user-1" {
			t.Errorf("Post userID = %q, want user-1", userID)
		}
		if content != "hello" {
			t.Errorf("Post content = %q, want hello", content)
		}
		return &model.MessageWithAuthor{ID: "msg-1", RoomID: roomID, Content: content}, nil
	}
	c := newTestClient(t, deps)
	authenticate(t, c, "user-1")

	c.handleEvent([]byte(`{"type":"send_message","content":"hello"}`))

	// 成功時は送信者への直接応答はなく、ハブ経由で配信される
	assertNoEvent(t, c)
	select {
	case message := <-c.hub.broadcast:
		if message.ID != "msg-1" {
			t.Errorf("broadcast message ID = %q, want msg-1", message.ID)
		}
	case <-time.After(time.Second):
		t.Fatal("ハブへブロードキャストが依頼されませんでした")
	}
	if got := deps.Collector.(*mockCollector).messagesCreated.Load(); got != 1 {
		t.Errorf("messagesCreated = %d, want 1", got)
	}
}

// 認証時のスナップショットが有効な間は、帯域外の状態変更は反映されない。
func TestHandleSendMessage_StaleStatusSnapshot(t *testing.T) {
	deps := defaultDeps()
	status := model.StatusApproved
	deps.Users = &mockUserFinder{
		findByIDFunc: func(ctx context.Context, id string) (*model.User, error) {
			user := approvedUser(id)
			user.Status = status
			return user, nil
		},
	}
	c := newTestClient(t, deps)
	authenticate(t, c, "user-1")

	// 認証後にユーザーがrejectedへ変更されてもセッションは承認済みのまま
	status = model.StatusRejected

	c.handleEvent([]byte(`{"type":"send_message","content":"hello"}`))

	assertNoEvent(t, c)
	select {
	case <-c.hub.broadcast:
	case <-time.After(time.Second):
		t.Fatal("スナップショット済みセッションからの送信が拒否されました")
	}
}

func TestHandleSendMessage_RateLimited(t *testing.T) {
	deps := defaultDeps()
	hub := NewHub(deps.Collector)
	t.Cleanup(hub.cancel)
	cfg := DefaultClientConfig()
	cfg.SendRate = rate.Limit(0.001)
	cfg.SendBurst = 1
	c := NewClient(nil, hub, "test-addr", deps, cfg)
	authenticate(t, c, "user-1")

	c.handleEvent([]byte(`{"type":"send_message","content":"first"}`))
	<-c.hub.broadcast

	c.handleEvent([]byte(`{"type":"send_message","content":"second"}`))

	event := nextEvent(t, c)
	if event["type"] != EventTypeError {
		t.Errorf("type = %v, want %s", event["type"], EventTypeError)
	}
	if msg, _ := event["message"].(string); !strings.Contains(msg, "頻度") {
		t.Errorf("レート超過のエラーメッセージではありません: %v", event["message"])
	}
}

func TestHandleSendMessage_ServiceError(t *testing.T) {
	deps := defaultDeps()
	deps.Chat.(*mockChatService).postFunc = func(ctx context.Context, userID, roomID, content string) (*model.MessageWithAuthor, error) {
		return nil, model.NewEmptyMessageError()
	}
	c := newTestClient(t, deps)
	authenticate(t, c, "user-1")

	c.handleEvent([]byte(`{"type":"send_message","content":"   "}`))

	event := nextEvent(t, c)
	if event["type"] != EventTypeError {
		t.Errorf("type = %v, want %s", event["type"], EventTypeError)
	}
	if msg, _ := event["message"].(string); !strings.Contains(msg, "空") {
		t.Errorf("空メッセージのエラーが返っていません: %v", event["message"])
	}
}

// イベントハンドラー内のpanicは回収され、接続は維持される。
func TestHandleEvent_PanicRecovered(t *testing.T) {
	deps := defaultDeps()
	deps.Chat.(*mockChatService).postFunc = func(ctx context.Context, userID, roomID, content string) (*model.MessageWithAuthor, error) {
		panic("boom")
	}
	c := newTestClient(t, deps)
	authenticate(t, c, "user-1")

	c.handleEvent([]byte(`{"type":"send_message","content":"hello"}`))

	event := nextEvent(t, c)
	if event["type"] != EventTypeError {
		t.Errorf("type = %v, want %s", event["type"], EventTypeError)
	}

	// 後続イベントは引き続き処理される
	c.handleEvent([]byte(`{"type":"join_room"}`))
	if event := nextEvent(t, c); event["type"] != EventTypeJoinedRoom {
		t.Errorf("panic後のイベントが処理されていません: %v", event)
	}
}

func TestHandleJoinRoom(t *testing.T) {
	c := newTestClient(t, defaultDeps())

	c.handleEvent([]byte(`{"type":"join_room","roomId":"whatever"}`))

	event := nextEvent(t, c)
	if event["type"] != EventTypeJoinedRoom {
		t.Fatalf("type = %v, want %s", event["type"], EventTypeJoinedRoom)
	}
	if event["roomId"] != "room-1" {
		t.Errorf("roomId = %v, want room-1", event["roomId"])
	}
	if event["roomName"] != model.GlobalRoomName {
		t.Errorf("roomName = %v, want %s", event["roomName"], model.GlobalRoomName)
	}
}

func TestTrySend_ClosedClient(t *testing.T) {
	c := newTestClient(t, defaultDeps())

	c.markClosed()

	if c.trySend([]byte("payload")) {
		t.Error("クローズ済みクライアントへの送信が成功しました")
	}
}

func TestTrySend_BufferFull(t *testing.T) {
	c := newTestClient(t, defaultDeps())

	for i := 0; i < sendBufferSize; i++ {
		if !c.trySend([]byte("fill")) {
			t.Fatalf("バッファが満杯になる前に送信が失敗しました: i=%d", i)
		}
	}

	if c.trySend([]byte("overflow")) {
		t.Error("満杯のバッファへの送信が成功しました")
	}
}
