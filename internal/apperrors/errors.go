package apperrors

import (
	"errors"
	"fmt"
)

// Code はエラー種別を表す安定した識別子です。
// クライアントへのエラーレスポンスにそのまま含まれます。
type Code string

const (
	CodeValidation              Code = "VALIDATION"
	CodeRoomNotFound            Code = "ROOM_NOT_FOUND"
	CodeRoomNotAcceptingPlayers Code = "ROOM_NOT_ACCEPTING_PLAYERS"
	CodeRoomFull                Code = "ROOM_FULL"
	CodeCannotStart             Code = "CANNOT_START"
	CodePlayerNotFound          Code = "PLAYER_NOT_FOUND"
	CodePlayerAlreadyInGame     Code = "PLAYER_ALREADY_IN_GAME"
	CodeInvalidGameState        Code = "INVALID_GAME_STATE"
	CodeInvalidAction           Code = "INVALID_ACTION"
	CodeTetrisLogic             Code = "TETRIS_LOGIC"
	CodeStoreError              Code = "STORE_ERROR"
	CodeInternal                Code = "INTERNAL_ERROR"
)

// Error はコードと人間可読なメッセージを持つアプリケーションエラーです。
// バリデーションエラーはフィールド単位の詳細を Details に持ちます。
type Error struct {
	Code    Code              `json:"code"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap はラップされた原因エラーを返します。
func (e *Error) Unwrap() error {
	return e.cause
}

// New は指定したコードとメッセージのエラーを作成します。
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap は原因エラーをラップしたアプリケーションエラーを作成します。
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, cause: cause}
}

// Validation はフィールド単位の詳細付きバリデーションエラーを作成します。
func Validation(message string, details map[string]string) *Error {
	return &Error{Code: CodeValidation, Message: message, Details: details}
}

func RoomNotFound(roomID string) *Error {
	return New(CodeRoomNotFound, fmt.Sprintf("room %s not found", roomID))
}

func RoomFull(roomID string) *Error {
	return New(CodeRoomFull, fmt.Sprintf("room %s is full", roomID))
}

func RoomNotAcceptingPlayers(roomID string) *Error {
	return New(CodeRoomNotAcceptingPlayers, fmt.Sprintf("room %s is not accepting players", roomID))
}

func CannotStart(roomID, status string) *Error {
	return New(CodeCannotStart, fmt.Sprintf("room %s cannot start in status %s", roomID, status))
}

func PlayerNotFound(playerID string) *Error {
	return New(CodePlayerNotFound, fmt.Sprintf("player %s not found", playerID))
}

func InvalidAction(action string) *Error {
	return New(CodeInvalidAction, fmt.Sprintf("invalid action: %s", action))
}

func StoreError(cause error) *Error {
	return Wrap(CodeStoreError, "state store operation failed", cause)
}

// FromError は任意のエラーをアプリケーションエラーに変換します。
// 分類できないエラーは INTERNAL_ERROR にマップされます。
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return Wrap(CodeInternal, "internal server error", err)
}
