package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/minichat/internal/middleware"
	"github.com/hitoshi/minichat/internal/model"
)

// ChatServiceInterface はメッセージハンドラーが必要とするサービスインターフェース。
type ChatServiceInterface interface {
	ResolveRoom(ctx context.Context, roomID string) (*model.Room, error)
	History(ctx context.Context, roomID string, limit int) ([]model.MessageWithAuthor, error)
}

// MessageHandler はチャット履歴のHTTPハンドラー。
type MessageHandler struct {
	service ChatServiceInterface
}

// NewMessageHandler はMessageHandlerを生成する。
func NewMessageHandler(service ChatServiceInterface) *MessageHandler {
	return &MessageHandler{service: service}
}

// historyResponse はGET /messages/{roomID}の成功レスポンス。
type historyResponse struct {
	RoomID   string                    `json:"roomId"`
	Messages []model.MessageWithAuthor `json:"messages"`
}

// History はルームの直近のメッセージを時系列昇順で返す。
// limitクエリパラメータで件数を指定できる（デフォルトと上限はサービス側で決まる）。
// GET /messages/{roomID}?limit=N
func (h *MessageHandler) History(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomID")

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			middleware.WriteErrorResponse(w, http.StatusBadRequest,
				model.NewInvalidPayloadError("limitは整数で指定してください"))
			return
		}
		limit = parsed
	}

	room, err := h.service.ResolveRoom(r.Context(), roomID)
	if err != nil {
		var apiErr *model.APIError
		if errors.As(err, &apiErr) && apiErr.Code == model.ErrCodeRoomNotFound {
			middleware.WriteErrorResponse(w, http.StatusNotFound, apiErr)
			return
		}
		slog.Error("failed to resolve room", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return
	}

	messages, err := h.service.History(r.Context(), room.ID, limit)
	if err != nil {
		slog.Error("failed to load history", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return
	}
	if messages == nil {
		messages = []model.MessageWithAuthor{}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(historyResponse{RoomID: room.ID, Messages: messages})
}
