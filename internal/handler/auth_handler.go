// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/minichat/internal/middleware"
	"github.com/hitoshi/minichat/internal/model"
)

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	Authenticate(ctx context.Context, initData string) (*model.User, error)
}

// AuthHandler はTelegram initData認証のHTTPハンドラー。
type AuthHandler struct {
	service AuthServiceInterface
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface) *AuthHandler {
	return &AuthHandler{service: service}
}

// authRequest はPOST /authのリクエストボディ。
type authRequest struct {
	InitData string `json:"initData"`
}

// authResponse はPOST /authの成功レスポンス。
// statusはuser.statusと同値だが、クライアントが承認待ち画面へ分岐しやすい
// ようトップレベルにも載せる。
type authResponse struct {
	User   model.PublicUser `json:"user"`
	Status model.UserStatus `json:"status"`
}

// Authenticate はinitDataを検証し、対応するユーザーを返す。
// 初回アクセス時はpending状態のユーザーを遅延作成する。
// POST /auth
func (h *AuthHandler) Authenticate(w http.ResponseWriter, r *http.Request) {
	var req authRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest,
			model.NewInvalidPayloadError("リクエストボディをJSONとして解析できません"))
		return
	}

	user, err := h.service.Authenticate(r.Context(), req.InitData)
	if err != nil {
		var apiErr *model.APIError
		if errors.As(err, &apiErr) {
			middleware.WriteErrorResponse(w, authErrorStatus(apiErr), apiErr)
			return
		}
		slog.Error("authentication failed", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(authResponse{User: user.Public(), Status: user.Status})
}

// authErrorStatus は認証エラーコードをHTTPステータスコードへ対応付ける。
func authErrorStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeMissingPayload, model.ErrCodeInvalidPayload:
		return http.StatusBadRequest
	case model.ErrCodeInvalidSignature:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}
