// Package auth はOAuth認証フロー、セッション管理を提供する。
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/roomcal/internal/model"
	"github.com/hitoshi/roomcal/internal/repository"
)

// OAuthProvider はOAuth認証プロバイダーのインターフェース。
type OAuthProvider interface {
	// GetLoginURL はOAuth認証URLを生成する。forceConsent で同意画面を強制する。
	GetLoginURL(state string, forceConsent bool) string
	// ExchangeCode は認可コードをトークンに交換し、認証情報を返す。
	ExchangeCode(ctx context.Context, code string) (*model.Credentials, error)
}

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	SessionMaxAge       int // 管理者セッション有効期間（秒）
	DeviceSessionMaxAge int // デバイスセッション有効期間（秒）
}

// CallbackResult はOAuthコールバック処理の結果。
// ReconsentRequired が true の場合、リフレッシュトークンが保存されていないため
// 同意画面を強制した再認可が必要で、Session は nil となる。
type CallbackResult struct {
	Session           *model.Session
	ReconsentRequired bool
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	oauth       OAuthProvider
	credRepo    repository.CredentialRepository
	sessionRepo repository.SessionRepository
	config      ServiceConfig
	now         func() time.Time
}

// NewService はServiceを生成する。
func NewService(
	oauth OAuthProvider,
	credRepo repository.CredentialRepository,
	sessionRepo repository.SessionRepository,
	config ServiceConfig,
) *Service {
	return &Service{
		oauth:       oauth,
		credRepo:    credRepo,
		sessionRepo: sessionRepo,
		config:      config,
		now:         time.Now,
	}
}

// GetLoginURL はOAuth認証URLを生成する。
func (s *Service) GetLoginURL(state string, forceConsent bool) string {
	return s.oauth.GetLoginURL(state, forceConsent)
}

// HandleCallback はOAuthコールバックを処理し、管理者セッションを発行する。
// 認可コードの交換に失敗した場合は ErrExchangeFailed をラップしたエラーを返す。
func (s *Service) HandleCallback(ctx context.Context, code string) (*CallbackResult, error) {
	// 1. 認可コードを認証情報に交換
	creds, err := s.oauth.ExchangeCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExchangeFailed, err)
	}

	// 2. 認証情報を保存（空のリフレッシュトークンでは既存の値を上書きしない）
	if err := s.credRepo.Upsert(ctx, creds); err != nil {
		return nil, fmt.Errorf("failed to save credentials: %w", err)
	}

	// 3. 保存済みのリフレッシュトークンを確認
	saved, err := s.credRepo.FindByUserID(ctx, creds.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to find credentials: %w", err)
	}
	if saved == nil || saved.RefreshToken == "" {
		slog.Warn("refresh token is missing, consent is required again",
			slog.String("user_id", creds.UserID),
		)
		return &CallbackResult{ReconsentRequired: true}, nil
	}

	// 4. 管理者セッションを発行
	session, err := s.createSession(ctx, &model.Session{
		Scope:  model.SessionScopeAdmin,
		UserID: creds.UserID,
	}, s.config.SessionMaxAge)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	slog.Info("admin logged in", slog.String("user_id", creds.UserID))
	return &CallbackResult{Session: session}, nil
}

// CreateDeviceSession はデバイス用のセッションを発行する。
func (s *Service) CreateDeviceSession(ctx context.Context, deviceID string) (*model.Session, error) {
	if deviceID == "" {
		return nil, fmt.Errorf("device ID is required")
	}

	session, err := s.createSession(ctx, &model.Session{
		Scope:    model.SessionScopeDevice,
		DeviceID: deviceID,
	}, s.config.DeviceSessionMaxAge)
	if err != nil {
		return nil, fmt.Errorf("failed to create device session: %w", err)
	}
	return session, nil
}

// Logout はセッションを破棄する。
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("session ID is required")
	}

	if err := s.sessionRepo.DeleteByID(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	slog.Info("session closed", slog.String("session_id", sessionID))
	return nil
}

// GetSession は有効なセッションを取得する。
func (s *Service) GetSession(ctx context.Context, sessionID string) (*model.Session, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("session ID is required")
	}

	session, err := s.sessionRepo.FindByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	if session == nil {
		return nil, fmt.Errorf("session not found or expired")
	}
	return session, nil
}

// createSession はセッションIDと有効期限を設定して永続化する。
func (s *Service) createSession(ctx context.Context, session *model.Session, maxAge int) (*model.Session, error) {
	sessionID, err := generateSessionID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session ID: %w", err)
	}

	now := s.now()
	session.ID = sessionID
	session.ExpiresAt = now.Add(time.Duration(maxAge) * time.Second)
	session.CreatedAt = now

	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	return session, nil
}

// generateSessionID は暗号的に安全なセッションIDを生成する。
func generateSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
