// Package model はドメインモデルを定義する。
package model

import "time"

// GlobalRoomName は単一ルームMVPで使用する暗黙のグローバルルーム名。
const GlobalRoomName = "global"

// Room はメッセージの入れ物となるルームを表す。
// 本MVPではグローバルルーム1つのみを初回アクセス時に遅延作成して使い回す。
type Room struct {
	ID        string
	Name      string
	CreatedAt time.Time
}

// Message はルームに投稿されたメッセージを表す。
// 作成後は不変で、並び順は作成時刻（挿入順＝時系列順）。
type Message struct {
	ID        string
	RoomID    string
	UserID    string
	Content   string
	CreatedAt time.Time
}

// MessageWithAuthor はメッセージと投稿者の公開情報を結合した構造体。
// チャット履歴およびブロードキャストのペイロードとして使用する。
type MessageWithAuthor struct {
	ID        string     `json:"id"`
	RoomID    string     `json:"roomId"`
	Content   string     `json:"content"`
	CreatedAt time.Time  `json:"createdAt"`
	Author    PublicUser `json:"author"`
}
