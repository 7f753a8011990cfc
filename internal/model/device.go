package model

import "time"

// DeviceType はデバイスの表示モードを表す。
type DeviceType string

const (
	// DeviceTypeCalendar は1つの会議室カレンダーを表示するデバイス。
	DeviceTypeCalendar DeviceType = "calendar"
	// DeviceTypeDashboard はユーザーの全カレンダーを一覧表示するデバイス。
	DeviceTypeDashboard DeviceType = "dashboard"
)

// IsValid は定義済みのデバイス種別かどうかを返す。
func (t DeviceType) IsValid() bool {
	return t == DeviceTypeCalendar || t == DeviceTypeDashboard
}

// デバイス設定の既定値
const (
	DefaultDeviceLanguage  = "en-US"
	DefaultDeviceClockType = 24
)

// Device は会議室に設置された表示端末を表す。
// UserID が空の間は未接続で、ConnectionCode を管理者が入力すると接続される。
// UpdatedAt は端末からの最終アクセス時刻（ハートビート）を兼ねる。
type Device struct {
	ID                string
	ConnectionCode    string
	UserID            string
	DeviceType        DeviceType
	CalendarID        string
	Language          string
	ClockType         int
	MinutesForCheckIn int
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// IsConnected は管理者のアカウントに接続済みかどうかを返す。
func (d *Device) IsConnected() bool {
	return d.UserID != ""
}

// DeviceSettings は管理者が変更できるデバイス設定。
type DeviceSettings struct {
	CalendarID        string
	DeviceType        DeviceType
	Language          string
	ClockType         int
	MinutesForCheckIn int
}

// SessionScope はセッションの利用範囲を表す。
type SessionScope string

const (
	// SessionScopeAdmin は管理画面用のセッション。
	SessionScopeAdmin SessionScope = "admin"
	// SessionScopeDevice は会議室デバイス用のセッション。
	SessionScopeDevice SessionScope = "device"
)

// Session はログインセッションを表す。
// 管理者セッションは UserID を、デバイスセッションは DeviceID を持つ。
type Session struct {
	ID        string
	Scope     SessionScope
	UserID    string
	DeviceID  string
	ExpiresAt time.Time
	CreatedAt time.Time
}
