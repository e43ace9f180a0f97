package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/minichat/internal/metrics"
	"github.com/hitoshi/minichat/internal/middleware"
	"github.com/hitoshi/minichat/internal/model"
	"github.com/hitoshi/minichat/internal/ws"
)

// mockPinger はPingerのモック実装。
type mockPinger struct {
	err error
}

func (m *mockPinger) PingContext(ctx context.Context) error {
	return m.err
}

// mockUserFinder はws.UserFinderのモック実装。
type mockUserFinder struct{}

func (m *mockUserFinder) FindByID(ctx context.Context, id string) (*model.User, error) {
	return nil, nil
}

// mockWSChatService はws.ChatServiceのモック実装。
type mockWSChatService struct{}

func (m *mockWSChatService) GlobalRoom(ctx context.Context) (*model.Room, error) {
	return &model.Room{ID: "room-1", Name: model.GlobalRoomName}, nil
}

func (m *mockWSChatService) History(ctx context.Context, roomID string, limit int) ([]model.MessageWithAuthor, error) {
	return nil, nil
}

func (m *mockWSChatService) Post(ctx context.Context, userID, roomID, content string) (*model.MessageWithAuthor, error) {
	return nil, nil
}

func newTestRouter(t *testing.T, pingErr error) http.Handler {
	t.Helper()

	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	hub := ws.NewHub(collector)
	go hub.Run()
	t.Cleanup(func() { hub.Shutdown(time.Second) })

	rl := middleware.NewRateLimiter(middleware.DefaultRateLimiterConfig())
	t.Cleanup(rl.Stop)

	return NewRouter(&RouterDeps{
		Logger:            slog.New(slog.NewJSONHandler(io.Discard, nil)),
		CORSAllowedOrigin: "http://localhost:3000",
		RateLimiter:       rl,
		AuthService: &mockAuthService{
			authenticateFunc: func(ctx context.Context, initData string) (*model.User, error) {
				return &model.User{ID: "user-1", AnonName: "Guest0001", Status: model.StatusPending}, nil
			},
		},
		ChatService: &mockChatService{
			resolveRoomFunc: func(ctx context.Context, roomID string) (*model.Room, error) {
				return &model.Room{ID: "room-1", Name: model.GlobalRoomName}, nil
			},
			historyFunc: func(ctx context.Context, roomID string, limit int) ([]model.MessageWithAuthor, error) {
				return nil, nil
			},
		},
		Hub: hub,
		SessionDeps: ws.SessionDeps{
			Users:     &mockUserFinder{},
			Chat:      &mockWSChatService{},
			Collector: collector,
		},
		ClientConfig:    ws.DefaultClientConfig(),
		DB:              &mockPinger{err: pingErr},
		MetricsRegistry: registry,
	})
}

func TestRouter_Health(t *testing.T) {
	router := newTestRouter(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("レスポンスのJSON解析に失敗しました: %v", err)
	}
	if body["ok"] != true {
		t.Errorf("ok = %v, want true", body["ok"])
	}
	if body["timestamp"] == "" {
		t.Error("timestampが空です")
	}
}

func TestRouter_HealthDBDown(t *testing.T) {
	router := newTestRouter(t, context.DeadlineExceeded)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
}

func TestRouter_Metrics(t *testing.T) {
	router := newTestRouter(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if !strings.Contains(rec.Body.String(), "minichat_") {
		t.Error("minichatのメトリクスが出力されていません")
	}
}

func TestRouter_AuthEndpoint(t *testing.T) {
	router := newTestRouter(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/auth", strings.NewReader(`{"initData":"query_id=abc&hash=def"}`))
	req.RemoteAddr = "203.0.113.1:52100"
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d\nbody: %s", rec.Code, http.StatusOK, rec.Body.String())
	}

	// ミドルウェアチェーンが効いていること
	if got := rec.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q", got)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Errorf("Access-Control-Allow-Origin = %q", got)
	}
}

func TestRouter_UnknownRoute(t *testing.T) {
	router := newTestRouter(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/nonexistent", nil)
	req.RemoteAddr = "203.0.113.1:52100"
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}
