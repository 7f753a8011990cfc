// Package model はドメインモデルを定義する。
package model

import (
	"errors"
	"fmt"
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, calendar, device, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeInvalidRequest         = "INVALID_REQUEST"
	ErrCodeCalendarNotFound       = "CALENDAR_NOT_FOUND"
	ErrCodeMeetingNotFound        = "MEETING_NOT_FOUND"
	ErrCodeProviderUnavailable    = "PROVIDER_UNAVAILABLE"
	ErrCodeMalformedTimeValue     = "MALFORMED_TIME_VALUE"
	ErrCodeInvalidMeetingWindow   = "INVALID_MEETING_WINDOW"
	ErrCodeDeviceNotFound         = "DEVICE_NOT_FOUND"
	ErrCodeNoCalendarSelected     = "NO_CALENDAR_SELECTED"
	ErrCodeConnectionCodeNotFound = "CONNECTION_CODE_NOT_FOUND"
	ErrCodeCredentialsNotFound    = "CREDENTIALS_NOT_FOUND"
	ErrCodeInvalidDeviceSettings  = "INVALID_DEVICE_SETTINGS"
)

// ErrProviderUnavailable はカレンダープロバイダとの通信・認可に失敗したことを表す。
// errors.Is で ProviderError と一致する。
var ErrProviderUnavailable = errors.New("calendar provider unavailable")

// ErrMalformedTimeValue はプロバイダが返した日時を分解できなかったことを表す。
var ErrMalformedTimeValue = errors.New("malformed time value")

// ErrInvalidEvent はイベントレコードの構造が不正（IDなし）であることを表す。
var ErrInvalidEvent = errors.New("invalid event record")

// ProviderError はカレンダープロバイダ呼び出しの失敗を表す。
type ProviderError struct {
	Op  string // 失敗した操作名（例: events.list）
	Err error
}

// Error はerrorインターフェースを実装する。
func (e *ProviderError) Error() string {
	return fmt.Sprintf("calendar provider %s failed: %v", e.Op, e.Err)
}

// Unwrap は元のエラーを返す。
func (e *ProviderError) Unwrap() error {
	return e.Err
}

// Is は ErrProviderUnavailable との比較に一致する。
func (e *ProviderError) Is(target error) bool {
	return target == ErrProviderUnavailable
}

// NewInvalidRequestError はリクエスト内容が不正な場合のエラーを生成する。
func NewInvalidRequestError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  fmt.Sprintf("リクエストが不正です: %s", reason),
		Category: "validation",
		Action:   "リクエスト内容を確認してください。",
	}
}

// NewCalendarNotFoundError はカレンダー未検出エラーを生成する。
func NewCalendarNotFoundError(calendarID string) *APIError {
	return &APIError{
		Code:     ErrCodeCalendarNotFound,
		Message:  fmt.Sprintf("指定されたカレンダーが見つかりません: %s", calendarID),
		Category: "calendar",
		Action:   "デバイスに設定されたカレンダーを確認してください。",
	}
}

// NewMeetingNotFoundError は会議未検出エラーを生成する。
func NewMeetingNotFoundError(meetingID string) *APIError {
	return &APIError{
		Code:     ErrCodeMeetingNotFound,
		Message:  fmt.Sprintf("指定された会議が見つかりません: %s", meetingID),
		Category: "calendar",
		Action:   "画面を更新してから再度お試しください。",
	}
}

// NewProviderUnavailableError はカレンダープロバイダ通信失敗エラーを生成する。
func NewProviderUnavailableError() *APIError {
	return &APIError{
		Code:     ErrCodeProviderUnavailable,
		Message:  "カレンダーサービスとの通信に失敗しました。",
		Category: "calendar",
		Action:   "しばらく待ってから再度お試しください。解決しない場合は管理者がGoogleアカウントを再接続してください。",
	}
}

// NewMalformedTimeValueError はプロバイダの日時形式不正エラーを生成する。
func NewMalformedTimeValueError() *APIError {
	return &APIError{
		Code:     ErrCodeMalformedTimeValue,
		Message:  "カレンダーイベントの日時を解析できませんでした。",
		Category: "calendar",
		Action:   "カレンダー上のイベントを確認してください。",
	}
}

// NewInvalidMeetingWindowError は会議時間が0分以下になる場合のエラーを生成する。
func NewInvalidMeetingWindowError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidMeetingWindow,
		Message:  "次の予定と重なるため、会議時間を確保できません。",
		Category: "calendar",
		Action:   "次の予定が終わってから再度お試しください。",
	}
}

// NewDeviceNotFoundError はデバイス未検出エラーを生成する。
func NewDeviceNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeDeviceNotFound,
		Message:  "デバイスが見つかりません。",
		Category: "device",
		Action:   "デバイスを再登録してください。",
	}
}

// NewNoCalendarSelectedError はデバイスにカレンダーが未設定の場合のエラーを生成する。
func NewNoCalendarSelectedError() *APIError {
	return &APIError{
		Code:     ErrCodeNoCalendarSelected,
		Message:  "デバイスにカレンダーが設定されていません。",
		Category: "device",
		Action:   "管理画面でデバイスにカレンダーを設定してください。",
	}
}

// NewConnectionCodeNotFoundError は接続コードに一致するデバイスがない場合のエラーを生成する。
func NewConnectionCodeNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeConnectionCodeNotFound,
		Message:  "接続コードに一致するデバイスが見つかりません。",
		Category: "device",
		Action:   "デバイスに表示されている接続コードを確認してください。",
	}
}

// NewCredentialsNotFoundError はカレンダー認証情報が未登録の場合のエラーを生成する。
func NewCredentialsNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeCredentialsNotFound,
		Message:  "カレンダーアカウントの認証情報が見つかりません。",
		Category: "auth",
		Action:   "管理者がGoogleアカウントでログインし直してください。",
	}
}

// NewInvalidDeviceSettingsError はデバイス設定値が不正な場合のエラーを生成する。
func NewInvalidDeviceSettingsError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidDeviceSettings,
		Message:  fmt.Sprintf("デバイス設定が不正です: %s", reason),
		Category: "validation",
		Action:   "設定値を確認してください。",
	}
}
