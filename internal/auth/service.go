package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/minichat/internal/model"
	"github.com/hitoshi/minichat/internal/repository"
)

// telegramUser はinitDataのuserフィールドに含まれるJSONの構造。
type telegramUser struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
}

// Service は署名付きinitDataによる認証ゲートウェイを提供する。
// 検証成功時にTelegram IDに紐付くユーザーを検索し、未登録なら
// pending状態＋自動生成の匿名表示名で遅延作成する。
type Service struct {
	botToken string
	verifier *Verifier
	userRepo repository.UserRepository
}

// NewService はServiceを生成する。
// botTokenが空の場合、Authenticateは常にSECRET_NOT_CONFIGUREDを返す。
func NewService(botToken string, userRepo repository.UserRepository) *Service {
	return &Service{
		botToken: botToken,
		verifier: NewVerifier(botToken),
		userRepo: userRepo,
	}
}

// Authenticate はinitDataを検証し、対応するユーザーを返す。
// ユーザーが存在しない場合はpending状態で作成する。同一Telegram IDでの
// 再呼び出しは既存レコードを返し、重複作成しない（冪等）。
// 失敗は*model.APIErrorとして返し、呼び出し側がステータスコードへ変換する。
func (s *Service) Authenticate(ctx context.Context, initData string) (*model.User, error) {
	if initData == "" {
		return nil, model.NewMissingPayloadError()
	}

	if s.botToken == "" {
		return nil, model.NewSecretNotConfiguredError()
	}

	if !s.verifier.Verify(initData) {
		slog.Warn("initData signature verification failed")
		return nil, model.NewInvalidSignatureError()
	}

	tgUser, err := parseTelegramUser(initData)
	if err != nil {
		slog.Warn("failed to parse user field from initData", slog.String("error", err.Error()))
		return nil, model.NewInvalidPayloadError("userフィールドを解析できません")
	}

	user, err := s.userRepo.FindByTelegramID(ctx, tgUser.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user by telegram ID: %w", err)
	}
	if user != nil {
		return user, nil
	}

	anonName, err := GeneratePseudonym()
	if err != nil {
		return nil, fmt.Errorf("failed to generate pseudonym: %w", err)
	}

	newUser := &model.User{
		ID:         uuid.New().String(),
		TelegramID: tgUser.ID,
		AnonName:   anonName,
		Status:     model.StatusPending,
		CreatedAt:  time.Now(),
	}

	if err := s.userRepo.Create(ctx, newUser); err != nil {
		// 並行リクエストで同一Telegram IDが先に作成された場合は
		// 一意制約違反になるため、再検索して既存レコードを返す。
		existing, findErr := s.userRepo.FindByTelegramID(ctx, tgUser.ID)
		if findErr == nil && existing != nil {
			return existing, nil
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	slog.Info("new user created",
		slog.String("user_id", newUser.ID),
		slog.String("anon_name", newUser.AnonName),
	)

	return newUser, nil
}

// parseTelegramUser は検証済みinitDataからuserフィールドを取り出して解析する。
func parseTelegramUser(initData string) (*telegramUser, error) {
	fields := ParseFields(initData)
	raw, ok := fields["user"]
	if !ok || raw == "" {
		return nil, fmt.Errorf("user field is missing")
	}

	var tgUser telegramUser
	if err := json.Unmarshal([]byte(raw), &tgUser); err != nil {
		return nil, fmt.Errorf("user field is not valid JSON: %w", err)
	}
	if tgUser.ID == 0 {
		return nil, fmt.Errorf("user field has no numeric id")
	}

	return &tgUser, nil
}
