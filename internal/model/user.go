// Package model はドメインモデルを定義する。
package model

import "time"

// UserStatus はユーザーの承認状態を表す。
// 状態の変更は運用側が帯域外で行い、本サービスは読み取りのみ行う。
type UserStatus string

const (
	// StatusPending は承認待ち状態。チャット参加は不可。
	StatusPending UserStatus = "pending"
	// StatusApproved は承認済み状態。チャット参加が可能。
	StatusApproved UserStatus = "approved"
	// StatusRejected は拒否状態。チャット参加は不可。
	StatusRejected UserStatus = "rejected"
)

// User はチャット利用ユーザーを表す。
// TelegramIDは外部IdP（Telegram）の数値IDと1:1で紐付き、作成後は不変。
type User struct {
	ID         string
	TelegramID int64
	AnonName   string
	Status     UserStatus
	CreatedAt  time.Time
}

// PublicUser はクライアントへ公開してよいユーザー情報のみを持つ。
// TelegramIDや生のinitDataは決して含めない。
type PublicUser struct {
	ID        string     `json:"id"`
	AnonName  string     `json:"anonName"`
	Status    UserStatus `json:"status"`
	CreatedAt time.Time  `json:"createdAt"`
}

// Public はクライアント公開用のユーザー表現を返す。
func (u *User) Public() PublicUser {
	return PublicUser{
		ID:        u.ID,
		AnonName:  u.AnonName,
		Status:    u.Status,
		CreatedAt: u.CreatedAt,
	}
}
