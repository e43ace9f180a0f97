// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"

	"github.com/hitoshi/minichat/internal/model"
)

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByTelegramID はTelegramの数値IDでユーザーを検索する。
	// 見つからない場合はnilを返す。
	FindByTelegramID(ctx context.Context, telegramID int64) (*model.User, error)

	// Create はユーザーを作成する。telegram_idの一意制約に違反した場合はエラーを返す。
	Create(ctx context.Context, user *model.User) error
}

// RoomRepository はルームデータの永続化インターフェース。
type RoomRepository interface {
	// GetOrCreateByName は指定名のルームを取得し、存在しない場合は作成する。
	// 冪等: 並行呼び出しでも同一ルームを返す。
	GetOrCreateByName(ctx context.Context, name string) (*model.Room, error)

	// FindByID は指定IDのルームを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Room, error)
}

// MessageRepository はメッセージデータの永続化インターフェース。
type MessageRepository interface {
	// Create はメッセージを作成する。
	Create(ctx context.Context, message *model.Message) error

	// ListByRoomID はルームの直近limit件のメッセージを投稿者の公開情報付きで返す。
	// 返却順は時系列昇順（チャット履歴リプレイが期待する順序）。
	ListByRoomID(ctx context.Context, roomID string, limit int) ([]model.MessageWithAuthor, error)

	// DeleteOlderThan は保持日数を超過したメッセージを削除し、削除件数を返す。
	DeleteOlderThan(ctx context.Context, retentionDays int) (int64, error)
}
