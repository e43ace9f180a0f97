// Package chat はルーム・履歴・メッセージ投稿のビジネスロジックを提供する。
package chat

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/hitoshi/minichat/internal/model"
	"github.com/hitoshi/minichat/internal/repository"
	"github.com/hitoshi/minichat/internal/security"
)

// ServiceConfig はチャットサービスの設定。
type ServiceConfig struct {
	// HistoryLimit は履歴取得のデフォルト件数かつ上限件数。
	HistoryLimit int
	// MessageMaxLength はサニタイズ後の本文の最大文字数（rune数）。
	MessageMaxLength int
}

// Service はチャットに関するビジネスロジックを提供する。
// 接続層（WebSocket）とHTTPハンドラーの双方から利用される。
type Service struct {
	roomRepo  repository.RoomRepository
	msgRepo   repository.MessageRepository
	userRepo  repository.UserRepository
	sanitizer security.MessageSanitizerService
	config    ServiceConfig
}

// NewService はServiceを生成する。
func NewService(
	roomRepo repository.RoomRepository,
	msgRepo repository.MessageRepository,
	userRepo repository.UserRepository,
	sanitizer security.MessageSanitizerService,
	config ServiceConfig,
) *Service {
	return &Service{
		roomRepo:  roomRepo,
		msgRepo:   msgRepo,
		userRepo:  userRepo,
		sanitizer: sanitizer,
		config:    config,
	}
}

// GlobalRoom はグローバルルームを取得する。初回アクセス時に遅延作成する（冪等）。
func (s *Service) GlobalRoom(ctx context.Context) (*model.Room, error) {
	room, err := s.roomRepo.GetOrCreateByName(ctx, model.GlobalRoomName)
	if err != nil {
		return nil, fmt.Errorf("failed to get or create global room: %w", err)
	}
	return room, nil
}

// ResolveRoom はroomIDからルームを解決する。
// roomIDが空の場合はグローバルルームを返す。
// 存在しないroomIDの場合は*model.APIError（ROOM_NOT_FOUND）を返す。
func (s *Service) ResolveRoom(ctx context.Context, roomID string) (*model.Room, error) {
	if roomID == "" {
		return s.GlobalRoom(ctx)
	}

	room, err := s.roomRepo.FindByID(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("failed to find room: %w", err)
	}
	if room == nil {
		return nil, model.NewRoomNotFoundError(roomID)
	}
	return room, nil
}

// History はルームの直近のメッセージを時系列昇順で返す。
// limitが0以下の場合はデフォルト件数を使用し、上限件数を超える指定は切り詰める。
func (s *Service) History(ctx context.Context, roomID string, limit int) ([]model.MessageWithAuthor, error) {
	if limit <= 0 || limit > s.config.HistoryLimit {
		limit = s.config.HistoryLimit
	}

	messages, err := s.msgRepo.ListByRoomID(ctx, roomID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	return messages, nil
}

// Post は本文をサニタイズしてメッセージを永続化し、投稿者の公開情報付きで返す。
// 本文がサニタイズ後に空の場合はEMPTY_MESSAGE、上限超過の場合は
// MESSAGE_TOO_LONGの*model.APIErrorを返す。
func (s *Service) Post(ctx context.Context, userID, roomID, content string) (*model.MessageWithAuthor, error) {
	author, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to find author: %w", err)
	}
	if author == nil {
		return nil, model.NewUserNotFoundError()
	}

	room, err := s.ResolveRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}

	clean := s.sanitizer.Sanitize(content)
	if clean == "" {
		return nil, model.NewEmptyMessageError()
	}
	if utf8.RuneCountInString(clean) > s.config.MessageMaxLength {
		return nil, model.NewMessageTooLongError(s.config.MessageMaxLength)
	}

	message := &model.Message{
		ID:        uuid.New().String(),
		RoomID:    room.ID,
		UserID:    author.ID,
		Content:   clean,
		CreatedAt: time.Now(),
	}
	if err := s.msgRepo.Create(ctx, message); err != nil {
		return nil, fmt.Errorf("failed to create message: %w", err)
	}

	return &model.MessageWithAuthor{
		ID:        message.ID,
		RoomID:    message.RoomID,
		Content:   message.Content,
		CreatedAt: message.CreatedAt,
		Author:    author.Public(),
	}, nil
}
