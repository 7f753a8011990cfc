// Package user は管理者アカウントのドメインロジックを提供する。
// プロフィールとカレンダー一覧の取得、認証情報の有効性確認、退会処理を含む。
package user

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hitoshi/roomcal/internal/calendar"
	"github.com/hitoshi/roomcal/internal/model"
	"github.com/hitoshi/roomcal/internal/repository"
)

// ProviderSource はユーザーIDから認証済みのカレンダープロバイダを取得するインターフェース。
type ProviderSource interface {
	ForUser(ctx context.Context, userID string) (calendar.Provider, error)
}

// Service は管理者アカウントのサービス層。
type Service struct {
	providers   ProviderSource
	credRepo    repository.CredentialRepository
	sessionRepo repository.SessionRepository
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	providers ProviderSource,
	credRepo repository.CredentialRepository,
	sessionRepo repository.SessionRepository,
) *Service {
	return &Service{
		providers:   providers,
		credRepo:    credRepo,
		sessionRepo: sessionRepo,
	}
}

// GetDetails はカレンダーアカウントのプロフィールを返す。
func (s *Service) GetDetails(ctx context.Context, userID string) (*model.UserDetails, error) {
	provider, err := s.providers.ForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return provider.GetUserDetails(ctx)
}

// ListCalendars はアカウントのカレンダー一覧を返す。
func (s *Service) ListCalendars(ctx context.Context, userID string) ([]*model.Calendar, error) {
	provider, err := s.providers.ForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return provider.GetCalendars(ctx)
}

// IsAccessTokenValid は保存済みの認証情報でカレンダーにアクセスできるかを返す。
// 認証情報がない場合も含め、失敗の理由は区別しない。
func (s *Service) IsAccessTokenValid(ctx context.Context, userID string) bool {
	provider, err := s.providers.ForUser(ctx, userID)
	if err != nil {
		slog.Warn("calendar provider is not available",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		return false
	}
	return provider.IsAccessTokenValid(ctx)
}

// Withdraw はユーザーの退会処理を実行する。
// 削除順序: 管理者セッション → 認証情報（+ CASCADE: devices, デバイスセッション）
func (s *Service) Withdraw(ctx context.Context, userID string) error {
	// 認証情報の存在確認
	creds, err := s.credRepo.FindByUserID(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to find credentials: %w", err)
	}
	if creds == nil {
		return model.NewCredentialsNotFoundError()
	}

	slog.Info("withdrawal started", slog.String("user_id", userID))

	// 1. 管理者セッションを削除
	if err := s.sessionRepo.DeleteByUserID(ctx, userID); err != nil {
		return fmt.Errorf("failed to delete sessions: %w", err)
	}

	// 2. 認証情報を削除（接続済みデバイスとそのセッションはCASCADE削除）
	if err := s.credRepo.DeleteByUserID(ctx, userID); err != nil {
		return fmt.Errorf("failed to delete credentials: %w", err)
	}

	slog.Info("withdrawal completed", slog.String("user_id", userID))
	return nil
}
