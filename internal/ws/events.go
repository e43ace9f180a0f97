// Package ws はWebSocket接続のセッション管理とブロードキャストを提供する。
package ws

import (
	"encoding/json"

	"github.com/hitoshi/minichat/internal/model"
)

// クライアント→サーバーのイベント種別
const (
	EventTypeAuth        = "auth"
	EventTypeSendMessage = "send_message"
	EventTypeJoinRoom    = "join_room"
)

// サーバー→クライアントのイベント種別
const (
	EventTypeAuthSuccess = "auth_success"
	EventTypeAuthError   = "auth_error"
	EventTypeChatHistory = "chat_history"
	EventTypeNewMessage  = "new_message"
	EventTypeJoinedRoom  = "joined_room"
	EventTypeError       = "error"
)

// inboundEvent はクライアントから受信するイベントの共通エンベロープ。
// typeで判別し、種別ごとに必要なフィールドのみを参照する。
type inboundEvent struct {
	Type    string `json:"type"`
	UserID  string `json:"userId,omitempty"`
	Content string `json:"content,omitempty"`
	RoomID  string `json:"roomId,omitempty"`
}

// decodeInbound は受信フレームをイベントエンベロープとして解析する。
func decodeInbound(raw []byte) (*inboundEvent, error) {
	var event inboundEvent
	if err := json.Unmarshal(raw, &event); err != nil {
		return nil, err
	}
	return &event, nil
}

type authSuccessEvent struct {
	Type   string           `json:"type"`
	User   model.PublicUser `json:"user"`
	RoomID string           `json:"roomId"`
}

type authErrorEvent struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type chatHistoryEvent struct {
	Type     string                    `json:"type"`
	Messages []model.MessageWithAuthor `json:"messages"`
}

type newMessageEvent struct {
	Type    string                  `json:"type"`
	Message model.MessageWithAuthor `json:"message"`
}

type joinedRoomEvent struct {
	Type     string `json:"type"`
	RoomID   string `json:"roomId"`
	RoomName string `json:"roomName"`
}

type errorEvent struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func marshalAuthSuccess(user model.PublicUser, roomID string) ([]byte, error) {
	return json.Marshal(authSuccessEvent{Type: EventTypeAuthSuccess, User: user, RoomID: roomID})
}

func marshalAuthError(message string) ([]byte, error) {
	return json.Marshal(authErrorEvent{Type: EventTypeAuthError, Message: message})
}

func marshalChatHistory(messages []model.MessageWithAuthor) ([]byte, error) {
	// 履歴が空の場合でもJSONではnullではなく空配列を返す
	if messages == nil {
		messages = []model.MessageWithAuthor{}
	}
	return json.Marshal(chatHistoryEvent{Type: EventTypeChatHistory, Messages: messages})
}

func marshalNewMessage(message model.MessageWithAuthor) ([]byte, error) {
	return json.Marshal(newMessageEvent{Type: EventTypeNewMessage, Message: message})
}

func marshalJoinedRoom(roomID, roomName string) ([]byte, error) {
	return json.Marshal(joinedRoomEvent{Type: EventTypeJoinedRoom, RoomID: roomID, RoomName: roomName})
}

func marshalError(message string) ([]byte, error) {
	return json.Marshal(errorEvent{Type: EventTypeError, Message: message})
}
