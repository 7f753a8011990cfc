package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/hitoshi/roomcal/internal/model"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/idtoken"
	"google.golang.org/api/people/v1"
)

// GoogleOAuthConfig はGoogle OAuthプロバイダーの設定。
type GoogleOAuthConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string

	// テスト用にオーバーライド可能なURL
	AuthURL  string
	TokenURL string
}

// IDTokenValidator はIDトークンの署名と audience を検証する関数。
type IDTokenValidator func(ctx context.Context, idToken, audience string) (*idtoken.Payload, error)

// GoogleOAuthProvider はGoogle OAuth 2.0による認証とカレンダー権限の取得を提供する。
type GoogleOAuthProvider struct {
	config   *oauth2.Config
	validate IDTokenValidator
	now      func() time.Time
}

// NewGoogleOAuthProvider はGoogleOAuthProviderを生成する。
// スコープにはカレンダーの読み書き、プロフィール、メールアドレスを含む。
func NewGoogleOAuthProvider(cfg GoogleOAuthConfig) *GoogleOAuthProvider {
	endpoint := google.Endpoint
	if cfg.AuthURL != "" {
		endpoint.AuthURL = cfg.AuthURL
	}
	if cfg.TokenURL != "" {
		endpoint.TokenURL = cfg.TokenURL
	}

	return &GoogleOAuthProvider{
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     endpoint,
			Scopes: []string{
				"openid",
				gcal.CalendarScope,
				people.UserinfoProfileScope,
				people.UserinfoEmailScope,
			},
		},
		validate: idtoken.Validate,
		now:      time.Now,
	}
}

// WithIDTokenValidator はIDトークンの検証関数を差し替える。テスト用。
func (p *GoogleOAuthProvider) WithIDTokenValidator(v IDTokenValidator) *GoogleOAuthProvider {
	p.validate = v
	return p
}

// OAuthConfig はカレンダークライアントの生成に使うOAuth設定を返す。
func (p *GoogleOAuthProvider) OAuthConfig() *oauth2.Config {
	return p.config
}

// GetLoginURL はGoogle OAuthの認証URLを生成する。
// リフレッシュトークンを得るため常にオフラインアクセスを要求する。
// forceConsent が true の場合は同意画面を必ず表示させ、リフレッシュトークンを再発行させる。
func (p *GoogleOAuthProvider) GetLoginURL(state string, forceConsent bool) string {
	opts := []oauth2.AuthCodeOption{oauth2.AccessTypeOffline}
	if forceConsent {
		opts = append(opts, oauth2.ApprovalForce)
	}
	return p.config.AuthCodeURL(state, opts...)
}

// ExchangeCode は認可コードをトークンに交換し、IDトークンを検証して認証情報を返す。
// ユーザーIDにはIDトークンの sub を使用する。
func (p *GoogleOAuthProvider) ExchangeCode(ctx context.Context, code string) (*model.Credentials, error) {
	// 1. 認可コードをトークンに交換
	token, err := p.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange token: %w", err)
	}

	// 2. IDトークンを検証（audience はクライアントID）
	rawIDToken, _ := token.Extra("id_token").(string)
	if rawIDToken == "" {
		return nil, fmt.Errorf("empty id_token in token response")
	}
	payload, err := p.validate(ctx, rawIDToken, p.config.ClientID)
	if err != nil {
		return nil, fmt.Errorf("failed to verify id token: %w", err)
	}
	if payload.Subject == "" {
		return nil, fmt.Errorf("empty sub in id token")
	}

	return &model.Credentials{
		UserID:       payload.Subject,
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		IDToken:      rawIDToken,
		Expiry:       token.Expiry,
		UpdatedAt:    p.now(),
	}, nil
}

// compile-time interface check
var _ OAuthProvider = (*GoogleOAuthProvider)(nil)
