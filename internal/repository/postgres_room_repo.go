package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/minichat/internal/model"
)

// PostgresRoomRepo はPostgreSQLを使用したルームリポジトリ。
type PostgresRoomRepo struct {
	db *sql.DB
}

// NewPostgresRoomRepo はPostgresRoomRepoを生成する。
func NewPostgresRoomRepo(db *sql.DB) *PostgresRoomRepo {
	return &PostgresRoomRepo{db: db}
}

// GetOrCreateByName は指定名のルームを取得し、存在しない場合は作成する。
// INSERT ... ON CONFLICT DO NOTHINGの後に必ずSELECTするため、
// 並行呼び出しでも同一ルームが返る（冪等）。
func (r *PostgresRoomRepo) GetOrCreateByName(ctx context.Context, name string) (*model.Room, error) {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO rooms (id, name, created_at)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (name) DO NOTHING`,
		uuid.New().String(), name, time.Now(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert room: %w", err)
	}

	room := &model.Room{}
	err = r.db.QueryRowContext(ctx,
		`SELECT id, name, created_at FROM rooms WHERE name = $1`,
		name,
	).Scan(&room.ID, &room.Name, &room.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to find room by name: %w", err)
	}

	return room, nil
}

// FindByID は指定IDのルームを取得する。見つからない場合はnilを返す。
func (r *PostgresRoomRepo) FindByID(ctx context.Context, id string) (*model.Room, error) {
	room := &model.Room{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, created_at FROM rooms WHERE id = $1`,
		id,
	).Scan(&room.ID, &room.Name, &room.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find room by ID: %w", err)
	}

	return room, nil
}

// compile-time interface check
var _ RoomRepository = (*PostgresRoomRepo)(nil)
