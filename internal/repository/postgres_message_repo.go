package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/minichat/internal/model"
)

// PostgresMessageRepo はPostgreSQLを使用したメッセージリポジトリ。
type PostgresMessageRepo struct {
	db *sql.DB
}

// NewPostgresMessageRepo はPostgresMessageRepoを生成する。
func NewPostgresMessageRepo(db *sql.DB) *PostgresMessageRepo {
	return &PostgresMessageRepo{db: db}
}

// Create はメッセージを作成する。
func (r *PostgresMessageRepo) Create(ctx context.Context, message *model.Message) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO messages (id, room_id, user_id, content, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		message.ID, message.RoomID, message.UserID, message.Content, message.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert message: %w", err)
	}

	return nil
}

// ListByRoomID はルームの直近limit件のメッセージを投稿者の公開情報付きで返す。
// 直近limit件を降順で切り出した上で昇順に並べ直し、時系列昇順で返す。
// created_atが同値の場合はidで順序を安定させる。
func (r *PostgresMessageRepo) ListByRoomID(ctx context.Context, roomID string, limit int) ([]model.MessageWithAuthor, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT m.id, m.room_id, m.content, m.created_at,
		        u.id, u.anon_name, u.status, u.created_at
		 FROM (
		     SELECT id, room_id, user_id, content, created_at
		     FROM messages
		     WHERE room_id = $1
		     ORDER BY created_at DESC, id DESC
		     LIMIT $2
		 ) m
		 JOIN users u ON u.id = m.user_id
		 ORDER BY m.created_at ASC, m.id ASC`,
		roomID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	var messages []model.MessageWithAuthor
	for rows.Next() {
		var m model.MessageWithAuthor
		if err := rows.Scan(
			&m.ID, &m.RoomID, &m.Content, &m.CreatedAt,
			&m.Author.ID, &m.Author.AnonName, &m.Author.Status, &m.Author.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan message row: %w", err)
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate message rows: %w", err)
	}

	return messages, nil
}

// DeleteOlderThan は保持日数を超過したメッセージを削除し、削除件数を返す。
func (r *PostgresMessageRepo) DeleteOlderThan(ctx context.Context, retentionDays int) (int64, error) {
	interval := fmt.Sprintf("%d days", retentionDays)

	result, err := r.db.ExecContext(ctx,
		`DELETE FROM messages WHERE created_at < now() - $1::interval`,
		interval,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired messages: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return deleted, nil
}

// compile-time interface check
var _ MessageRepository = (*PostgresMessageRepo)(nil)
