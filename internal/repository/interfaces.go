// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/roomcal/internal/model"
)

// DeviceRepository はデバイスデータの永続化インターフェース。
type DeviceRepository interface {
	// FindByID は指定IDのデバイスを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Device, error)

	// FindByConnectionCode は未接続デバイスを接続コードで検索する。見つからない場合はnilを返す。
	FindByConnectionCode(ctx context.Context, code string) (*model.Device, error)

	// ListByUserID はユーザーに接続された全デバイスを作成日時の昇順で返す。
	ListByUserID(ctx context.Context, userID string) ([]*model.Device, error)

	// Create はデバイスを作成する。
	Create(ctx context.Context, device *model.Device) error

	// Connect は未接続のデバイスをユーザーに接続し、接続コードを無効化する。
	// 既に接続済みの場合はfalseを返す。
	Connect(ctx context.Context, deviceID, userID string) (bool, error)

	// UpdateSettings はデバイス設定を更新する。
	UpdateSettings(ctx context.Context, deviceID string, settings model.DeviceSettings) error

	// Touch はデバイスの最終アクセス時刻（updated_at）を更新する。
	Touch(ctx context.Context, deviceID string, at time.Time) error

	// Delete は指定IDのデバイスを削除する。関連するセッションはCASCADE削除される。
	Delete(ctx context.Context, id string) error
}

// CredentialRepository はOAuth認証情報の永続化インターフェース。
type CredentialRepository interface {
	// FindByUserID はユーザーの認証情報を取得する。見つからない場合はnilを返す。
	FindByUserID(ctx context.Context, userID string) (*model.Credentials, error)

	// Upsert は認証情報を作成または更新する。
	// リフレッシュトークンが空の場合は既存のリフレッシュトークンを維持する。
	Upsert(ctx context.Context, creds *model.Credentials) error

	// DeleteByUserID はユーザーの認証情報を削除する。
	// 接続済みデバイスとセッションはCASCADE削除される。
	DeleteByUserID(ctx context.Context, userID string) error
}

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// DeleteByID は指定IDのセッションを削除する。
	DeleteByID(ctx context.Context, id string) error
	// DeleteByUserID は指定ユーザーの全管理者セッションを削除する。
	DeleteByUserID(ctx context.Context, userID string) error
}
