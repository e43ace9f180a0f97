// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, chat, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeMissingPayload      = "MISSING_PAYLOAD"
	ErrCodeInvalidPayload      = "INVALID_PAYLOAD"
	ErrCodeInvalidSignature    = "INVALID_SIGNATURE"
	ErrCodeSecretNotConfigured = "SECRET_NOT_CONFIGURED"
	ErrCodeUserNotFound        = "USER_NOT_FOUND"
	ErrCodeRoomNotFound        = "ROOM_NOT_FOUND"
	ErrCodeNotApproved         = "NOT_APPROVED"
	ErrCodeNotAuthenticated    = "NOT_AUTHENTICATED"
	ErrCodeEmptyMessage        = "EMPTY_MESSAGE"
	ErrCodeMessageTooLong      = "MESSAGE_TOO_LONG"
	ErrCodeUnknownEventType    = "UNKNOWN_EVENT_TYPE"
	ErrCodeTooManyMessages     = "TOO_MANY_MESSAGES"
	ErrCodeInternal            = "INTERNAL_ERROR"
)

// NewMissingPayloadError はinitData未指定エラーを生成する。
func NewMissingPayloadError() *APIError {
	return &APIError{
		Code:     ErrCodeMissingPayload,
		Message:  "initDataが指定されていません。",
		Category: "validation",
		Action:   "Telegramクライアントから発行されたinitDataを指定してください。",
	}
}

// NewInvalidPayloadError はinitDataの形式不正エラーを生成する。
func NewInvalidPayloadError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidPayload,
		Message:  fmt.Sprintf("initDataの形式が不正です: %s", reason),
		Category: "validation",
		Action:   "initDataを改変せずそのまま送信してください。",
	}
}

// NewInvalidSignatureError は署名検証失敗エラーを生成する。
func NewInvalidSignatureError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidSignature,
		Message:  "initDataの署名検証に失敗しました。",
		Category: "auth",
		Action:   "Telegramクライアントからログインし直してください。",
	}
}

// NewSecretNotConfiguredError はボットトークン未設定エラーを生成する。
func NewSecretNotConfiguredError() *APIError {
	return &APIError{
		Code:     ErrCodeSecretNotConfigured,
		Message:  "サーバーに共有シークレットが設定されていません。",
		Category: "system",
		Action:   "管理者に連絡してください。",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "ユーザーが見つかりません。",
		Category: "auth",
		Action:   "先に /auth で認証してください。",
	}
}

// NewRoomNotFoundError はルームが見つからない場合のエラーを生成する。
func NewRoomNotFoundError(roomID string) *APIError {
	return &APIError{
		Code:     ErrCodeRoomNotFound,
		Message:  fmt.Sprintf("指定されたルームが見つかりません: %s", roomID),
		Category: "chat",
		Action:   "ルームIDを確認してください。",
	}
}

// NewNotApprovedError は未承認ユーザーの参加拒否エラーを生成する。
func NewNotApprovedError(status UserStatus) *APIError {
	return &APIError{
		Code:     ErrCodeNotApproved,
		Message:  fmt.Sprintf("チャットへの参加が承認されていません（現在の状態: %s）。", status),
		Category: "auth",
		Action:   "承認されるまでお待ちください。",
	}
}

// NewNotAuthenticatedError は未認証セッションからの操作エラーを生成する。
func NewNotAuthenticatedError() *APIError {
	return &APIError{
		Code:     ErrCodeNotAuthenticated,
		Message:  "認証されていないセッションです。",
		Category: "auth",
		Action:   "先にauthイベントを送信してください。",
	}
}

// NewEmptyMessageError は空メッセージエラーを生成する。
func NewEmptyMessageError() *APIError {
	return &APIError{
		Code:     ErrCodeEmptyMessage,
		Message:  "メッセージ本文が空です。",
		Category: "validation",
		Action:   "本文を入力してから送信してください。",
	}
}

// NewMessageTooLongError はメッセージ長超過エラーを生成する。
func NewMessageTooLongError(maxLength int) *APIError {
	return &APIError{
		Code:     ErrCodeMessageTooLong,
		Message:  fmt.Sprintf("メッセージが長すぎます（上限: %d文字）。", maxLength),
		Category: "validation",
		Action:   "本文を短くしてから送信してください。",
	}
}

// NewUnknownEventTypeError は未知のイベント種別エラーを生成する。
func NewUnknownEventTypeError(eventType string) *APIError {
	return &APIError{
		Code:     ErrCodeUnknownEventType,
		Message:  fmt.Sprintf("未知のイベント種別です: %s", eventType),
		Category: "validation",
		Action:   "クライアントのバージョンを確認してください。",
	}
}

// NewTooManyMessagesError は送信レート超過エラーを生成する。
func NewTooManyMessagesError() *APIError {
	return &APIError{
		Code:     ErrCodeTooManyMessages,
		Message:  "メッセージの送信頻度が高すぎます。",
		Category: "system",
		Action:   "しばらく待ってから再度送信してください。",
	}
}

// NewInternalError は内部エラーを生成する。詳細はログのみに記録する。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}
